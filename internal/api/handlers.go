package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/repairfix-assistant/server/internal/agent/session"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

func (a *API) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "RepairFix Assistant API is running",
	})
}

// ChatStream runs the repair workflow and streams its events as SSE.
func (a *API) ChatStream(c fiber.Ctx) error {
	var q ChatStreamQuery
	if err := c.Bind().Query(&q); err != nil {
		return badRequest(c, "invalid query string")
	}
	if err := a.validator.Struct(q); err != nil {
		return badRequest(c, validationDetail(err))
	}

	req := session.Request{UserID: UserID(c), Message: q.Message}
	if q.ConversationID != "" {
		id, err := strconv.ParseInt(q.ConversationID, 10, 64)
		if err != nil {
			return badRequest(c, "conversationId is invalid")
		}
		// Only the owner may continue a conversation.
		if _, err := a.deps.Conversations.Owned(c.Context(), req.UserID, id); err != nil {
			return handleServiceError(c, err, "conversation")
		}
		req.ConversationID = &id
	}

	// The fiber ctx is recycled once the handler returns, so the writer
	// only sees values captured here.
	log := *logx.Ctx(c.Context())

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(log.WithContext(context.Background()))
		defer cancel()

		emit := func(ev session.Event) error {
			return writeEvent(w, ev)
		}
		_ = a.deps.Chat.Run(ctx, req, emit)
	})
}

// writeEvent writes one SSE frame. A flush error means the client is gone.
func writeEvent(w *bufio.Writer, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func (a *API) CreateConversation(c fiber.Ctx) error {
	var req CreateConversationRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}
	if err := a.validator.Struct(req); err != nil {
		return badRequest(c, validationDetail(err))
	}

	conv, err := a.deps.Conversations.Create(c.Context(), UserID(c), req.Title)
	if err != nil {
		return internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conv})
}

func (a *API) ListConversations(c fiber.Ctx) error {
	convs, err := a.deps.Conversations.List(c.Context(), UserID(c))
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

func (a *API) GetConversation(c fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return badRequest(c, "conversation id is invalid")
	}

	conv, msgs, err := a.deps.Conversations.History(c.Context(), UserID(c), id)
	if err != nil {
		return handleServiceError(c, err, "conversation")
	}
	return c.JSON(fiber.Map{"conversation": conv, "messages": msgs})
}

func (a *API) DeleteConversation(c fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return badRequest(c, "conversation id is invalid")
	}

	if err := a.deps.Conversations.Delete(c.Context(), UserID(c), id); err != nil {
		return handleServiceError(c, err, "conversation")
	}
	return c.JSON(fiber.Map{"message": "Conversation deleted"})
}

func (a *API) Usage(c fiber.Ctx) error {
	usage, err := a.deps.Conversations.Usage(c.Context(), UserID(c))
	if err != nil {
		return handleServiceError(c, err, "usage")
	}
	return c.JSON(fiber.Map{"usage": usage})
}

func conversationID(c fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
