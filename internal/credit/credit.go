// Package credit meters paid actions. Every chat turn, illustration batch and
// notes batch spends credits from the caller's balance; plans and monthly
// refills grant them.
package credit

import (
	"context"
	"errors"
	"fmt"
)

// ErrInsufficient is returned by Spend when the balance would go negative.
var ErrInsufficient = errors.New("insufficient credits")

// ErrInvalidAmount is returned for zero or negative grants and spends.
var ErrInvalidAmount = errors.New("credit amount must be positive")

// Store persists per-user credit balances. Implementations must make Spend
// atomic: two concurrent spends never both succeed against a balance that
// only covers one.
type Store interface {
	Balance(ctx context.Context, userID string) (int, error)
	Grant(ctx context.Context, userID string, n int) (int, error)
	Spend(ctx context.Context, userID string, n int) (int, error)
}

// Action names a metered operation.
type Action string

// Metered actions.
const (
	ActionChat         Action = "chat"
	ActionIllustration Action = "illustration"
	ActionNotes        Action = "notes"
)

// Costs maps each action to its price in credits.
type Costs map[Action]int

// DefaultCosts is the price list used when none is configured.
func DefaultCosts() Costs {
	return Costs{
		ActionChat:         1,
		ActionIllustration: 3,
		ActionNotes:        2,
	}
}

// Of returns the cost of an action. Unknown actions fall back to the
// default price list, and to 1 if the action is not known at all.
func (c Costs) Of(a Action) int {
	if n, ok := c[a]; ok && n > 0 {
		return n
	}
	if n, ok := DefaultCosts()[a]; ok {
		return n
	}
	return 1
}

// Validate rejects negative prices.
func (c Costs) Validate() error {
	var errs []error
	for a, n := range c {
		if n < 0 {
			errs = append(errs, fmt.Errorf("cost of %q must not be negative", a))
		}
	}
	return errors.Join(errs...)
}

func checkAmount(userID string, n int) error {
	if userID == "" {
		return errors.New("credit: empty user id")
	}
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, n)
	}
	return nil
}
