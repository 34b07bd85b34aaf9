package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/repairfix-assistant/server/internal/agent/catalog"
	"github.com/repairfix-assistant/server/internal/agent/conversations"
	"github.com/repairfix-assistant/server/internal/agent/graph"
	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/repo"
	"github.com/repairfix-assistant/server/internal/agent/retry"
	"github.com/repairfix-assistant/server/internal/agent/session"
	"github.com/repairfix-assistant/server/internal/agent/websearch"
	"github.com/repairfix-assistant/server/internal/store"
	logx "github.com/repairfix-assistant/server/pkg/logger"
	"github.com/repairfix-assistant/server/pkg/telemetry"
)

// application holds the wired service and what must be released on exit.
type application struct {
	store         *store.Store
	rdb           *redis.Client
	conversations *conversations.MessagesManager
	driver        *session.Driver
	shutdown      telemetry.Shutdown
}

func openStore(ctx context.Context, cfg *AppConfig) (*store.Store, error) {
	db, err := cfg.Database.Open(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func build(ctx context.Context, cfg *AppConfig) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	tracer, shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	app.shutdown = shutdown

	if app.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}

	var lookup nodes.Catalog = catalog.New(cfg.Catalog)
	if cfg.Redis.Enabled() {
		if app.rdb, err = cfg.Redis.New(ctx); err != nil {
			return nil, err
		}
		lookup = repo.NewRedisCatalogCache(lookup, app.rdb, cfg.Redis.CacheTTL)
	} else {
		logx.Warn().Msg("REDIS_URL not set, catalog cache disabled")
	}

	if cfg.Search.APIKey == "" {
		logx.Warn().Msg("TAVILY_API_KEY not set, web search fallback will return no results")
	}

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Extraction: &cfg.Extraction,
		Response:   &cfg.Response,
	})
	if err != nil {
		return nil, err
	}

	steps, err := nodes.New(nodes.Config{
		Extractor: models.Extraction,
		Responder: models.Response,
		Catalog:   lookup,
		Search:    websearch.New(cfg.Search),
		Records:   app.store,
		Retry:     retry.FromConfig(cfg.Retry),
	})
	if err != nil {
		return nil, err
	}

	workflow, err := graph.New(ctx, graph.Config{Nodes: steps, Tracer: tracer})
	if err != nil {
		return nil, err
	}

	app.conversations = conversations.NewMessagesManager(app.store)
	app.driver = session.NewDriver(workflow, app.conversations, session.Options{
		Timeout:       cfg.Chat.Timeout,
		VerboseErrors: cfg.Environment.VerboseErrors(),
	})

	logx.Info().
		Str("extraction_model", models.ExtractionModelName).
		Str("response_model", models.ResponseModelName).
		Msg("Repair workflow ready")
	return app, nil
}

// ready probes the database and, when configured, redis.
func (a *application) ready(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return err
	}
	if a.rdb != nil {
		return a.rdb.Ping(ctx).Err()
	}
	return nil
}

// registerUser makes sure a user row and its usage counters exist.
func (a *application) registerUser(ctx context.Context, userID string) error {
	if _, err := a.store.UpsertUser(ctx, model.User{ID: userID}); err != nil {
		return err
	}
	return a.store.InitUsage(ctx, userID)
}

func (a *application) Close() {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
	}
	if err := errors.Join(errs...); err != nil {
		logx.Error().Err(err).Msg("Failed to release resources")
	}
}
