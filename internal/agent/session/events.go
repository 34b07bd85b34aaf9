package session

import (
	"encoding/json"

	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
)

type EventType string

const (
	EventStatus EventType = "status"
	EventToken  EventType = "token"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Fixed texts relayed to the caller.
const (
	StatusAnalyzing  = "Analyzing your question..."
	StatusGenerating = "Generating response..."

	NoResponseText  = "I could not generate a response for that question. Please try rephrasing or be more specific about your device and issue."
	StreamErrorText = "An error occurred while generating the response. Please try again."
)

// NodeStatus is the progress message sent after each pipeline step.
var NodeStatus = map[string]string{
	nodes.NodeIdentifyDevice: "Device identified. Searching for guides...",
	nodes.NodeSearchCatalog:  "Search completed. Checking availability...",
	nodes.NodeGetGuides:      "Guides found. Selecting the best one...",
	nodes.NodeSelectGuide:    "Guide selected. Reading details...",
	nodes.NodeGetDetails:     "Reading guide details...",
	nodes.NodeFallback:       "Searching alternative sources...",
	nodes.NodeGenerate:       "Drafting response...",
	nodes.NodeSaveRecord:     "Saving conversation...",
}

// Event is one message of the chat stream.
type Event struct {
	Type EventType

	// Message is set on status and error events.
	Message string
	// Content is set on token events.
	Content string
	// Details carries diagnostics on error events when verbose errors are on.
	Details string

	// Set on done events; ConversationID is nil when nothing was saved.
	ConversationID *int64
	TokensUsed     int
}

func Status(msg string) Event { return Event{Type: EventStatus, Message: msg} }
func Token(text string) Event { return Event{Type: EventToken, Content: text} }

// MarshalJSON renders the wire shape of each event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventToken:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	case EventDone:
		return json.Marshal(struct {
			Type           EventType `json:"type"`
			ConversationID *int64    `json:"conversationId"`
			TokensUsed     int       `json:"tokensUsed"`
		}{e.Type, e.ConversationID, e.TokensUsed})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
			Details string    `json:"details,omitempty"`
		}{e.Type, e.Message, e.Details})
	default:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	}
}
