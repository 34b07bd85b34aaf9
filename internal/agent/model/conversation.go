package model

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Conversation struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
}

type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

type Usage struct {
	UserID             string    `json:"user_id"`
	TotalTokens        int64     `json:"total_tokens"`
	TotalConversations int64     `json:"total_conversations"`
	TotalMessages      int64     `json:"total_messages"`
	LastUsed           time.Time `json:"last_used"`
}

type ConversationRepository interface {
	// CreateConversation starts a new conversation owned by userID.
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)

	// FindConversation loads a conversation; a missing row is a not-found error.
	FindConversation(ctx context.Context, id int64) (*Conversation, error)

	// ListConversations returns the user's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error)

	// TouchConversation bumps last_updated.
	TouchConversation(ctx context.Context, id int64) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id int64) error

	// AddMessage appends a message and touches its conversation.
	AddMessage(ctx context.Context, conversationID int64, role Role, content string, metadata map[string]any) (*Message, error)

	// ListMessages returns messages in chronological order.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
}

// UsageRepository keeps per-user counters. Increments are atomic in the store.
type UsageRepository interface {
	InitUsage(ctx context.Context, userID string) error
	IncrementTokens(ctx context.Context, userID string, tokens int) error
	IncrementConversations(ctx context.Context, userID string) error
	IncrementMessages(ctx context.Context, userID string) error
	FindUsage(ctx context.Context, userID string) (*Usage, error)
}

type UserRepository interface {
	UpsertUser(ctx context.Context, user User) (*User, error)
	FindUser(ctx context.Context, id string) (*User, error)
}
