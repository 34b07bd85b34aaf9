package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// newPromptHandler logs how many messages each template rendered.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			ev := logx.Ctx(ctx).Debug().Str("component", "prompt").Str("name", info.Name).Int("messages", len(output.Result))
			if n := len(output.Result); n > 0 && output.Result[n-1] != nil {
				ev = ev.Int("last_message_len", len(output.Result[n-1].Content))
			}
			ev.Msg("Prompt rendered")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Error().Err(err).Str("component", "prompt").Str("name", info.Name).Msg("Prompt render failed")
			return ctx
		},
	}
}
