package nodes

import (
	"context"

	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const defaultConversationTitle = "General Repair"

func conversationTitle(device string) string {
	if device == "" {
		return defaultConversationTitle
	}
	return device + " Repair"
}

// SaveRecord stores the user's message, creating the conversation on first
// use, and accounts approximate tokens. Store failures are logged and
// swallowed so the answer still reaches the user.
func (n *Nodes) SaveRecord(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeSaveRecord).Str("user_id", s.UserID).Logger()

	if s.UserID == "" {
		log.Error().Msg("Missing user id, cannot save conversation")
		return model.Patch{ConversationID: model.Some[*int64](nil)}
	}

	failed := func(err error, msg string) model.Patch {
		log.Error().Err(err).Msg(msg)
		return model.Patch{
			ConversationID: model.Some[*int64](nil),
			TokensUsed:     model.Some(0),
		}
	}

	convID := s.ConversationID
	if convID == nil {
		title := conversationTitle(s.Device)
		conv, err := n.records.CreateConversation(ctx, s.UserID, title)
		if err != nil {
			return failed(err, "Error creating conversation")
		}
		id := conv.ID
		convID = &id
		log.Info().Int64("conversation_id", id).Str("title", title).Msg("Conversation created")

		if err := n.records.IncrementConversations(ctx, s.UserID); err != nil {
			return failed(err, "Error counting conversation")
		}
	}

	var meta map[string]any
	if s.Device != "" {
		meta = map[string]any{"device": s.Device, "issue": s.Issue}
	}
	if _, err := n.records.AddMessage(ctx, *convID, model.RoleUser, s.UserMessage, meta); err != nil {
		return failed(err, "Error saving user message")
	}
	if err := n.records.IncrementMessages(ctx, s.UserID); err != nil {
		return failed(err, "Error counting message")
	}

	tokens := model.ApproxTokens(s.UserMessage)
	if err := n.records.IncrementTokens(ctx, s.UserID, tokens); err != nil {
		return failed(err, "Error counting tokens")
	}

	log.Debug().Int64("conversation_id", *convID).Int("tokens", tokens).Msg("Conversation saved")
	return model.Patch{
		ConversationID: model.Some(convID),
		TokensUsed:     model.Some(tokens),
	}
}
