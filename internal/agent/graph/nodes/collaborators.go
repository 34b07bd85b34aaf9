package nodes

import (
	"context"

	"github.com/repairfix-assistant/server/internal/agent/model"
)

// Catalog looks up devices and official repair guides.
type Catalog interface {
	SearchDevices(ctx context.Context, query string) ([]model.Device, error)
	DeviceGuides(ctx context.Context, deviceTitle string) ([]model.GuideSummary, error)
	// GuideDetails returns nil without error when the guide does not exist.
	GuideDetails(ctx context.Context, guideID int) (*model.Guide, error)
}

// WebSearch is the fallback source when no official guide applies.
type WebSearch interface {
	Search(ctx context.Context, query string, opts model.SearchOptions) (*model.SearchResults, error)
}

// RecordStore is the slice of persistence the saveRecord step needs.
type RecordStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error)
	AddMessage(ctx context.Context, conversationID int64, role model.Role, content string, metadata map[string]any) (*model.Message, error)
	IncrementConversations(ctx context.Context, userID string) error
	IncrementMessages(ctx context.Context, userID string) error
	IncrementTokens(ctx context.Context, userID string, tokens int) error
}
