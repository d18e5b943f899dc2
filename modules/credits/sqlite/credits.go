package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flemzord/substackulous/internal/credit"
)

// creditStore implements credit.Store.
type creditStore struct {
	db     *sql.DB
	signup int
}

const nowExpr = "strftime('%Y-%m-%dT%H:%M:%fZ','now')"

// ensure creates the user's row with the signup grant if it does not exist.
func (s *creditStore) ensure(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO credits (user_id, balance) VALUES (?, ?)", userID, s.signup)
	if err != nil {
		return fmt.Errorf("sqlite: ensure credits row: %w", err)
	}
	return nil
}

// Balance implements credit.Store.
func (s *creditStore) Balance(ctx context.Context, userID string) (int, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	var bal int
	err := s.db.QueryRowContext(ctx, "SELECT balance FROM credits WHERE user_id = ?", userID).Scan(&bal)
	if err != nil {
		return 0, fmt.Errorf("sqlite: read balance: %w", err)
	}
	return bal, nil
}

// Grant implements credit.Store.
func (s *creditStore) Grant(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", credit.ErrInvalidAmount, n)
	}
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	var bal int
	err := s.db.QueryRowContext(ctx,
		"UPDATE credits SET balance = balance + ?, updated_at = "+nowExpr+" WHERE user_id = ? RETURNING balance",
		n, userID,
	).Scan(&bal)
	if err != nil {
		return 0, fmt.Errorf("sqlite: grant credits: %w", err)
	}
	return bal, nil
}

// Spend implements credit.Store. The balance check and decrement happen in
// one statement, so concurrent spends cannot overdraw.
func (s *creditStore) Spend(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", credit.ErrInvalidAmount, n)
	}
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	var bal int
	err := s.db.QueryRowContext(ctx,
		"UPDATE credits SET balance = balance - ?, updated_at = "+nowExpr+" WHERE user_id = ? AND balance >= ? RETURNING balance",
		n, userID, n,
	).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		cur, berr := s.Balance(ctx, userID)
		if berr != nil {
			return 0, berr
		}
		return cur, fmt.Errorf("%w: balance %d, need %d", credit.ErrInsufficient, cur, n)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: spend credits: %w", err)
	}
	return bal, nil
}
