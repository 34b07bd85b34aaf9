package nodes

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/repairfix-assistant/server/internal/agent/graph/parsers"
	"github.com/repairfix-assistant/server/internal/agent/graph/prompts"
	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/retry"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

func (n *Nodes) generate(ctx context.Context, label string, msgs []*schema.Message) (*schema.Message, error) {
	return retry.Do(ctx, n.retry, label, func(ctx context.Context) (*schema.Message, error) {
		return n.extractor.Generate(ctx, msgs)
	})
}

// IdentifyDevice asks the model which device and issue the user means.
func (n *Nodes) IdentifyDevice(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeIdentifyDevice).Logger()

	msgs, err := prompts.IdentifyDevice(ctx, s.UserMessage)
	if err != nil {
		log.Error().Err(err).Msg("Error rendering prompt")
		return model.ErrorPatch(err.Error())
	}

	out, err := n.generate(ctx, NodeIdentifyDevice, msgs)
	if err != nil {
		log.Error().Err(err).Msg("Device identification failed")
		return model.ErrorPatch(err.Error())
	}

	reply, err := parsers.ParseDeviceReply(out.Content)
	if err != nil || reply.Device == "" {
		log.Warn().Err(err).Msg("No device in model reply")
		return model.ErrorPatch(ErrDeviceNotIdentified)
	}

	log.Info().Str("device", reply.Device).Str("issue", reply.Issue).Msg("Device identified")
	return model.Patch{Device: model.Some(reply.Device), Issue: model.Some(reply.Issue)}
}

// SelectGuide asks the model for the guide that best fits the issue. An id
// outside the candidate list counts as no selection.
func (n *Nodes) SelectGuide(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeSelectGuide).Logger()

	if len(s.Guides) == 0 {
		return model.Patch{}
	}

	msgs, err := prompts.SelectGuide(ctx, s.Issue, s.Guides)
	if err != nil {
		log.Error().Err(err).Msg("Error rendering prompt")
		return model.ErrorPatch(err.Error())
	}

	out, err := n.generate(ctx, NodeSelectGuide, msgs)
	if err != nil {
		log.Error().Err(err).Msg("Guide selection failed")
		return model.ErrorPatch(err.Error())
	}

	choice, err := parsers.ParseGuideChoice(out.Content)
	if err != nil || choice.GuideID == nil {
		log.Debug().Err(err).Str("reasoning", choice.Reasoning).Msg("No guide selected, will use fallback")
		return model.Patch{}
	}

	for i := range s.Guides {
		if s.Guides[i].GuideID == *choice.GuideID {
			selected := s.Guides[i]
			log.Info().Int("guide_id", selected.GuideID).Str("title", selected.Title).Msg("Guide selected")
			return model.Patch{SelectedGuide: model.Some(&selected)}
		}
	}

	log.Warn().Int("guide_id", *choice.GuideID).Msg("Model picked a guide outside the candidates")
	return model.Patch{}
}
