package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	logx "github.com/repairfix-assistant/server/pkg/logger"
)

type startedAtKey struct{}

// newNodeHandler logs start and duration of every pipeline step.
func newNodeHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if info.Component != compose.ComponentOfLambda {
				return ctx
			}
			logx.Ctx(ctx).Debug().Str("node", info.Name).Msg("Node started")
			return context.WithValue(ctx, startedAtKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			if info.Component != compose.ComponentOfLambda {
				return ctx
			}
			ev := logx.Ctx(ctx).Debug().Str("node", info.Name)
			if started, ok := ctx.Value(startedAtKey{}).(time.Time); ok {
				ev = ev.Dur("elapsed", time.Since(started))
			}
			ev.Msg("Node finished")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Error().Err(err).Str("node", info.Name).Str("component", string(info.Component)).Msg("Graph error")
			return ctx
		}).
		Build()
}
