package conversations

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const (
	DefaultTitle     = "New Conversation"
	DefaultListLimit = 50
	historyLimit     = 500
)

// ErrNotOwned hides conversations of other users behind a 404.
var ErrNotOwned = errx.New(errors.New("conversation not owned by caller"), http.StatusNotFound, errx.NotFoundMessage).WithKind(errx.KindPersistence)

// Store is the persistence the manager works on.
type Store interface {
	model.ConversationRepository
	model.UsageRepository
}

// MessagesManager owns conversation bookkeeping outside the pipeline: the
// assistant's answer after streaming and the conversation endpoints.
type MessagesManager struct {
	store Store
}

func NewMessagesManager(store Store) *MessagesManager {
	return &MessagesManager{store: store}
}

// SaveResponse records the assistant's answer, counts it and touches the
// conversation.
func (m *MessagesManager) SaveResponse(ctx context.Context, userID string, conversationID int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if _, err := m.store.AddMessage(ctx, conversationID, model.RoleAssistant, content, nil); err != nil {
		return err
	}
	if err := m.store.IncrementMessages(ctx, userID); err != nil {
		return err
	}
	return m.store.TouchConversation(ctx, conversationID)
}

// Create opens an empty conversation and counts it.
func (m *MessagesManager) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	conv, err := m.store.CreateConversation(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	if err := m.store.IncrementConversations(ctx, userID); err != nil {
		logx.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Failed to count conversation")
	}
	return conv, nil
}

func (m *MessagesManager) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	return m.store.ListConversations(ctx, userID, DefaultListLimit)
}

// Owned loads a conversation, failing with ErrNotOwned for other users'.
func (m *MessagesManager) Owned(ctx context.Context, userID string, id int64) (*model.Conversation, error) {
	conv, err := m.store.FindConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotOwned
	}
	return conv, nil
}

// History returns an owned conversation with its messages in order.
func (m *MessagesManager) History(ctx context.Context, userID string, id int64) (*model.Conversation, []model.Message, error) {
	conv, err := m.Owned(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := m.store.ListMessages(ctx, id, historyLimit)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (m *MessagesManager) Delete(ctx context.Context, userID string, id int64) error {
	if _, err := m.Owned(ctx, userID, id); err != nil {
		return err
	}
	return m.store.DeleteConversation(ctx, id)
}

func (m *MessagesManager) Usage(ctx context.Context, userID string) (*model.Usage, error) {
	return m.store.FindUsage(ctx, userID)
}
