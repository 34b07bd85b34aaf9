package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// Identity headers set by the fronting gateway.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

const userIDKey = "userID"

// requestLogger attaches a request scoped zerolog logger to the request
// context and logs one line per request.
func requestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		l := logx.With("request_id", requestid.FromContext(c))
		c.SetContext(l.WithContext(c.Context()))

		err := c.Next()

		l.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
		return err
	}
}

// authenticator trusts the gateway's identity header. The first request of
// a user creates the user and its usage row.
type authenticator struct {
	users UserStore
	known sync.Map
}

func (a *authenticator) handler(c fiber.Ctx) error {
	userID := strings.TrimSpace(c.Get(HeaderUserID))
	if userID == "" {
		return unauthorized(c)
	}

	if _, ok := a.known.Load(userID); !ok {
		ctx := c.Context()
		user := model.User{
			ID:       userID,
			Email:    strings.TrimSpace(c.Get(HeaderUserEmail)),
			FullName: strings.TrimSpace(c.Get(HeaderUserName)),
		}
		if _, err := a.users.UpsertUser(ctx, user); err != nil {
			return internalError(c, err)
		}
		if err := a.users.InitUsage(ctx, userID); err != nil {
			return internalError(c, err)
		}
		a.known.Store(userID, struct{}{})
		logx.Ctx(ctx).Info().Str("user_id", userID).Msg("User registered")
	}

	c.Locals(userIDKey, userID)
	return c.Next()
}

// UserID returns the authenticated caller.
func UserID(c fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
