package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flemzord/substackulous/pkg/message"
)

// conversationStore implements history.Store.
type conversationStore struct {
	db *sql.DB
}

// Append implements history.Store.
func (c *conversationStore) Append(ctx context.Context, conversationID string, msgs ...message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&next); err != nil {
		return fmt.Errorf("sqlite: next seq: %w", err)
	}

	for _, m := range msgs {
		next++
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			conversationID, next, string(m.Role), m.Content, ts.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("sqlite: append message: %w", err)
		}
	}
	return tx.Commit()
}

// Load implements history.Store.
func (c *conversationStore) Load(ctx context.Context, conversationID string) (message.Transcript, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq ASC", conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := message.Transcript{}
	for rows.Next() {
		var (
			m       message.Message
			role    string
			created string
		)
		if err := rows.Scan(&role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.Role = message.Role(role)
		if t, perr := time.Parse(timeLayout, created); perr == nil {
			m.Timestamp = t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load conversation rows: %w", err)
	}
	return out, nil
}

// Purge implements history.Store.
func (c *conversationStore) Purge(ctx context.Context, conversationID string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("sqlite: purge conversation: %w", err)
	}
	return nil
}
