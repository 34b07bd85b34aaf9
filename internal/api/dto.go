package api

// ChatStreamQuery is the query string of GET /api/chat/stream.
type ChatStreamQuery struct {
	Message        string `query:"message" validate:"required,max=4000"`
	ConversationID string `query:"conversationId" validate:"omitempty,numeric"`
}

type CreateConversationRequest struct {
	Title string `json:"title" validate:"omitempty,max=200"`
}
