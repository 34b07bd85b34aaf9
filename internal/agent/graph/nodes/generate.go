package nodes

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/repairfix-assistant/server/internal/agent/graph/formatters"
	"github.com/repairfix-assistant/server/internal/agent/graph/prompts"
	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/retry"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

var errEmptyResponse = errors.New("model returned an empty stream")

// GenerationContext picks the material the answer is based on: the full
// guide, else the web search results, else general advice instructions.
func GenerationContext(s model.State) string {
	switch {
	case s.GuideDetails != nil:
		return formatters.Guide(s.GuideDetails)
	case s.FallbackResults != nil && len(s.FallbackResults.Results) > 0:
		return formatters.SearchResults(s.FallbackResults, s.UserMessage)
	default:
		return prompts.GenericContext(s.Device, s.Issue)
	}
}

// Generate opens the answer stream. When the model stays unavailable the
// answer degrades to a static text; this step never fails.
func (n *Nodes) Generate(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeGenerate).Logger()
	static := model.Patch{Response: model.Some(model.Response{Text: prompts.FallbackResponse(s.Device, s.Issue)})}

	msgs, err := prompts.Repair(ctx, s.UserMessage, GenerationContext(s))
	if err != nil {
		log.Error().Err(err).Msg("Error rendering prompt")
		return static
	}

	sr, err := retry.Do(ctx, n.retry, NodeGenerate, func(ctx context.Context) (*schema.StreamReader[*schema.Message], error) {
		return n.openStream(ctx, msgs)
	})
	if err != nil {
		log.Error().Err(err).Msg("Response generation failed, using static answer")
		return static
	}

	log.Debug().Msg("Response stream opened")
	return model.Patch{Response: model.Some(model.Response{Stream: sr})}
}

// openStream starts streaming and waits for the first chunk, so errors the
// backend only reports on the stream (rate limits included) surface here
// where they can be retried.
func (n *Nodes) openStream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	sr, err := n.responder.Stream(ctx, msgs)
	if err != nil {
		return nil, err
	}
	first, err := sr.Recv()
	if err != nil {
		sr.Close()
		if errors.Is(err, io.EOF) {
			return nil, errEmptyResponse
		}
		return nil, err
	}
	return prepend(first, sr), nil
}

// prepend yields first and then everything left in rest. Closing the
// returned reader closes rest.
func prepend(first *schema.Message, rest *schema.StreamReader[*schema.Message]) *schema.StreamReader[*schema.Message] {
	out, w := schema.Pipe[*schema.Message](1)
	go func() {
		defer rest.Close()
		defer w.Close()
		if closed := w.Send(first, nil); closed {
			return
		}
		for {
			chunk, err := rest.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if closed := w.Send(chunk, err); closed || err != nil {
				return
			}
		}
	}()
	return out
}
