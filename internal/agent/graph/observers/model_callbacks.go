package observers

import (
	"context"
	"errors"
	"io"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"github.com/rs/zerolog"

	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// newModelHandler logs model calls with their token usage and USD cost.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			ev := logx.Ctx(ctx).Debug().Str("component", "chat_model").Str("name", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages))
				if input.Config != nil {
					ev = ev.Str("model", input.Config.Model)
				}
			}
			ev.Msg("Model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			logUsage(logx.Ctx(ctx), info, modelName(output), usageOf(output))
			return ctx
		},
		OnEndWithStreamOutput: func(ctx context.Context, info *einocb.RunInfo, output *schema.StreamReader[*einomodel.CallbackOutput]) context.Context {
			log := logx.Ctx(ctx)
			go func() {
				defer output.Close()
				var (
					name  string
					usage *schema.TokenUsage
				)
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						return
					}
					if chunk == nil {
						continue
					}
					if n := modelName(chunk); n != "" {
						name = n
					}
					if u := usageOf(chunk); u != nil {
						usage = u
					}
				}
				logUsage(log, info, name, usage)
			}()
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Ctx(ctx).Warn().Err(err).Str("component", "chat_model").Str("name", info.Name).Msg("Model call failed")
			return ctx
		},
	}
}

func modelName(out *einomodel.CallbackOutput) string {
	if out.Config != nil {
		return out.Config.Model
	}
	return ""
}

// usageOf prefers the callback's usage and falls back to the message meta.
func usageOf(out *einomodel.CallbackOutput) *schema.TokenUsage {
	if out.TokenUsage != nil {
		return &schema.TokenUsage{
			PromptTokens:     out.TokenUsage.PromptTokens,
			CompletionTokens: out.TokenUsage.CompletionTokens,
			TotalTokens:      out.TokenUsage.TotalTokens,
		}
	}
	if out.Message != nil && out.Message.ResponseMeta != nil {
		return out.Message.ResponseMeta.Usage
	}
	return nil
}

func logUsage(log *zerolog.Logger, info *einocb.RunInfo, name string, usage *schema.TokenUsage) {
	if usage == nil {
		log.Debug().Str("component", "chat_model").Str("name", info.Name).Msg("Model call finished")
		return
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(name))
	log.Debug().
		Str("component", "chat_model").
		Str("model", name).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
