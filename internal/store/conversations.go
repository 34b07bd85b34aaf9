package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

const conversationColumns = "id, user_id, title, started_at, last_updated"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		c     model.Conversation
		title sql.NullString
	)
	if err := row.Scan(&c.ID, &c.UserID, &title, timestamp{&c.StartedAt}, timestamp{&c.LastUpdated}); err != nil {
		return nil, err
	}
	c.Title = title.String
	return &c, nil
}

func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	q := `INSERT INTO conversations (user_id, title) VALUES ($1, $2) RETURNING ` + conversationColumns
	c, err := scanConversation(s.db.QueryRowContext(ctx, s.rebind(q), userID, title))
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("create conversation: %w", err))
	}
	return c, nil
}

func (s *Store) FindConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	c, err := scanConversation(s.db.QueryRowContext(ctx, s.rebind(q), id))
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("find conversation %d: %w", id, err))
	}
	return c, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE user_id = $1
		ORDER BY last_updated DESC, id DESC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), userID, limit)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("list conversations: %w", err))
	}
	defer rows.Close()

	out := []model.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errx.WrapStore(fmt.Errorf("scan conversation: %w", err))
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return out, nil
}

func (s *Store) TouchConversation(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE conversations SET last_updated = CURRENT_TIMESTAMP WHERE id = $1`), id); err != nil {
		return errx.WrapStore(fmt.Errorf("touch conversation %d: %w", id, err))
	}
	return nil
}

// DeleteConversation removes the messages explicitly; sqlite only cascades
// with foreign_keys enabled.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapStore(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM messages WHERE conversation_id = $1`), id); err != nil {
		return errx.WrapStore(fmt.Errorf("delete messages of %d: %w", id, err))
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = $1`), id); err != nil {
		return errx.WrapStore(fmt.Errorf("delete conversation %d: %w", id, err))
	}
	if err := tx.Commit(); err != nil {
		return errx.WrapStore(err)
	}
	return nil
}

const messageColumns = "id, conversation_id, role, content, metadata, created_at"

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m    model.Message
		role string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, metadata{&m.Metadata}, timestamp{&m.CreatedAt}); err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID int64, role model.Role, content string, meta map[string]any) (*model.Message, error) {
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO messages (conversation_id, role, content, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + messageColumns
	m, err := scanMessage(tx.QueryRowContext(ctx, s.rebind(q), conversationID, string(role), content, encoded))
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("add message: %w", err))
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE conversations SET last_updated = CURRENT_TIMESTAMP WHERE id = $1`), conversationID); err != nil {
		return nil, errx.WrapStore(fmt.Errorf("touch conversation %d: %w", conversationID, err))
	}
	if err := tx.Commit(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), conversationID, limit)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("list messages: %w", err))
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errx.WrapStore(fmt.Errorf("scan message: %w", err))
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return out, nil
}
