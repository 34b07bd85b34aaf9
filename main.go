package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	cli "github.com/urfave/cli/v3"

	"github.com/repairfix-assistant/server/internal/agent/session"
	"github.com/repairfix-assistant/server/internal/api"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

func main() {
	cmd := &cli.Command{
		Name:                  "repairfix",
		Usage:                 "Device repair assistant backed by iFixit guides",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path of the .env file to load",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			askCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("repairfix failed")
	}
}

// setup loads config and initialises logging for every command.
func setup(command *cli.Command) (*AppConfig, error) {
	cfg, err := loadConfig(command.String("env-file"))
	if err != nil {
		return nil, err
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on (overrides PORT)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := setup(command)
			if err != nil {
				return err
			}
			if p := command.Int("port"); p > 0 {
				cfg.Port = p
			}

			app, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			server := api.New(api.Deps{
				Chat:          app.driver,
				Conversations: app.conversations,
				Users:         app.store,
				Ready:         app.ready,
			})

			logx.Info().
				Str("environment", cfg.Environment.String()).
				Str("database", app.store.Driver()).
				Bool("catalog_cache", app.rdb != nil).
				Msg("Starting RepairFix Assistant API")
			return api.Listen(ctx, server.App(), fmt.Sprintf(":%d", cfg.Port))
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := setup(command)
			if err != nil {
				return err
			}
			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			logx.Info().Str("database", db.Driver()).Msg("Migrations applied")
			return nil
		},
	}
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Run one question through the pipeline and stream the answer",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "User ID the conversation is recorded for",
				Value: "cli",
			},
			&cli.Int64Flag{
				Name:  "conversation",
				Usage: "Existing conversation ID to continue",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			question := strings.TrimSpace(strings.Join(command.Args().Slice(), " "))
			if question == "" {
				return fmt.Errorf("a question is required")
			}

			cfg, err := setup(command)
			if err != nil {
				return err
			}
			app, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			userID := command.String("user")
			if err := app.registerUser(ctx, userID); err != nil {
				return err
			}

			req := session.Request{UserID: userID, Message: question}
			if id := command.Int64("conversation"); id > 0 {
				if _, err := app.conversations.Owned(ctx, userID, id); err != nil {
					return fmt.Errorf("conversation %d: %w", id, err)
				}
				req.ConversationID = &id
			}
			return app.driver.Run(ctx, req, printEvent)
		},
	}
}

// printEvent writes statuses to stderr and the answer to stdout.
func printEvent(ev session.Event) error {
	switch ev.Type {
	case session.EventStatus:
		_, err := fmt.Fprintf(os.Stderr, "» %s\n", ev.Message)
		return err
	case session.EventToken:
		_, err := fmt.Fprint(os.Stdout, ev.Content)
		return err
	case session.EventDone:
		conv := "none"
		if ev.ConversationID != nil {
			conv = fmt.Sprint(*ev.ConversationID)
		}
		_, err := fmt.Fprintf(os.Stderr, "\n» done (conversation %s, %d tokens)\n", conv, ev.TokensUsed)
		return err
	case session.EventError:
		msg := ev.Message
		if ev.Details != "" {
			msg += ": " + ev.Details
		}
		_, err := fmt.Fprintf(os.Stderr, "\n» error: %s\n", msg)
		return err
	}
	return nil
}
