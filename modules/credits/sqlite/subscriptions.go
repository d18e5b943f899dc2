package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/substackulous/internal/billing"
)

// billingStore implements billing.SubscriptionStore and billing.EventLog.
type billingStore struct {
	db *sql.DB
}

// UpsertSubscription implements billing.SubscriptionStore.
func (s *billingStore) UpsertSubscription(ctx context.Context, sub billing.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, customer_id, plan_id, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id     = excluded.user_id,
			customer_id = excluded.customer_id,
			plan_id     = excluded.plan_id,
			status      = excluded.status,
			updated_at  = excluded.updated_at`,
		sub.ID, sub.UserID, sub.CustomerID, sub.PlanID, string(sub.Status),
		sub.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert subscription: %w", err)
	}
	return nil
}

const subscriptionColumns = "id, user_id, customer_id, plan_id, status, updated_at"

// SubscriptionByID implements billing.SubscriptionStore.
func (s *billingStore) SubscriptionByID(ctx context.Context, id string) (billing.Subscription, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id)
	return scanSubscription(row)
}

// SubscriptionByUser implements billing.SubscriptionStore.
func (s *billingStore) SubscriptionByUser(ctx context.Context, userID string) (billing.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1", userID)
	return scanSubscription(row)
}

// ActiveSubscriptions implements billing.SubscriptionStore.
func (s *billingStore) ActiveSubscriptions(ctx context.Context) ([]billing.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE status IN (?, ?) ORDER BY id",
		string(billing.StatusActive), string(billing.StatusTrialing))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []billing.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list subscriptions rows: %w", err)
	}
	return out, nil
}

// MarkProcessed implements billing.EventLog.
func (s *billingStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO processed_events (id) VALUES (?)", id)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: mark event: %w", err)
	}
	return n == 1, nil
}

// Forget implements billing.EventLog.
func (s *billingStore) Forget(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM processed_events WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: forget event: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(s scanner) (billing.Subscription, error) {
	var (
		sub       billing.Subscription
		status    string
		updatedAt string
	)
	err := s.Scan(&sub.ID, &sub.UserID, &sub.CustomerID, &sub.PlanID, &status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Subscription{}, billing.ErrNotFound
	}
	if err != nil {
		return billing.Subscription{}, fmt.Errorf("sqlite: scan subscription: %w", err)
	}
	sub.Status = billing.SubscriptionStatus(status)
	if t, perr := time.Parse(timeLayout, updatedAt); perr == nil {
		sub.UpdatedAt = t
	}
	return sub, nil
}
