package store

import (
	"context"
	"fmt"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

// InitUsage creates the zeroed counter row; existing rows are left alone.
func (s *Store) InitUsage(ctx context.Context, userID string) error {
	q := `INSERT INTO usage (user_id, total_tokens, total_conversations, total_messages)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, s.rebind(q), userID); err != nil {
		return errx.WrapStore(fmt.Errorf("init usage: %w", err))
	}
	return nil
}

func (s *Store) IncrementTokens(ctx context.Context, userID string, tokens int) error {
	return s.increment(ctx, "total_tokens", userID, tokens)
}

func (s *Store) IncrementConversations(ctx context.Context, userID string) error {
	return s.increment(ctx, "total_conversations", userID, 1)
}

func (s *Store) IncrementMessages(ctx context.Context, userID string) error {
	return s.increment(ctx, "total_messages", userID, 1)
}

// increment adds by in the database so concurrent requests never lose
// updates. column is one of the fixed counter names above.
func (s *Store) increment(ctx context.Context, column, userID string, by int) error {
	q := `UPDATE usage SET ` + column + ` = ` + column + ` + $1, last_used = CURRENT_TIMESTAMP WHERE user_id = $2`
	if _, err := s.db.ExecContext(ctx, s.rebind(q), by, userID); err != nil {
		return errx.WrapStore(fmt.Errorf("increment %s: %w", column, err))
	}
	return nil
}

func (s *Store) FindUsage(ctx context.Context, userID string) (*model.Usage, error) {
	q := `SELECT user_id, total_tokens, total_conversations, total_messages, last_used
		FROM usage WHERE user_id = $1`
	var u model.Usage
	err := s.db.QueryRowContext(ctx, s.rebind(q), userID).
		Scan(&u.UserID, &u.TotalTokens, &u.TotalConversations, &u.TotalMessages, timestamp{&u.LastUsed})
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("find usage: %w", err))
	}
	return &u, nil
}
