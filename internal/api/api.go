// Package api exposes the chat service over HTTP with fiber.
package api

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"

	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/session"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// ChatRunner runs one chat request and emits its events.
type ChatRunner interface {
	Run(ctx context.Context, req session.Request, emit session.Emit) error
}

// Conversations serves the conversation endpoints.
type Conversations interface {
	Create(ctx context.Context, userID, title string) (*model.Conversation, error)
	List(ctx context.Context, userID string) ([]model.Conversation, error)
	Owned(ctx context.Context, userID string, id int64) (*model.Conversation, error)
	History(ctx context.Context, userID string, id int64) (*model.Conversation, []model.Message, error)
	Delete(ctx context.Context, userID string, id int64) error
	Usage(ctx context.Context, userID string) (*model.Usage, error)
}

// UserStore registers callers on first sight.
type UserStore interface {
	UpsertUser(ctx context.Context, user model.User) (*model.User, error)
	InitUsage(ctx context.Context, userID string) error
}

type Deps struct {
	Chat          ChatRunner
	Conversations Conversations
	Users         UserStore
	// Ready probes backing services for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

type API struct {
	deps      Deps
	validator *validator.Validate
	auth      *authenticator
}

func New(deps Deps) *API {
	return &API{
		deps:      deps,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		auth:      &authenticator{users: deps.Users},
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "repairfix-assistant",
		ErrorHandler: errorHandler,
	})

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", HeaderUserID, HeaderUserEmail, HeaderUserName},
	}))
	app.Use(requestLogger())

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: a.ready,
	}))

	api := app.Group("/api")
	api.Get("/health", a.Health)

	chat := api.Group("/chat", a.auth.handler)
	chat.Get("/stream", a.ChatStream)
	chat.Post("/conversations", a.CreateConversation)
	chat.Get("/conversations", a.ListConversations)
	chat.Get("/conversations/:id", a.GetConversation)
	chat.Delete("/conversations/:id", a.DeleteConversation)

	api.Get("/user/usage", a.auth.handler, a.Usage)

	return app
}

func (a *API) ready(c fiber.Ctx) bool {
	if a.deps.Ready == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready(ctx); err != nil {
		logx.Warn().Err(err).Msg("Readiness probe failed")
		return false
	}
	return true
}

// Listen serves until ctx ends, then shuts down gracefully.
func Listen(ctx context.Context, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	logx.Info().Str("addr", addr).Msg("HTTP server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logx.Info().Msg("Shutting down HTTP server")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}
