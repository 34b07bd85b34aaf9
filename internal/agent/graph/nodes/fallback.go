package nodes

import (
	"context"
	"fmt"

	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const fallbackMaxResults = 5

// FallbackQuery builds the web search query for the state.
func FallbackQuery(s model.State) string {
	switch {
	case s.Device != "" && s.Issue != "":
		return fmt.Sprintf("%s %s repair guide tutorial with images", s.Device, s.Issue)
	case s.Device != "":
		return fmt.Sprintf("%s repair guide tutorial with images", s.Device)
	default:
		return s.UserMessage
	}
}

// Fallback searches the web when no official guide is usable. It never
// reports an error; a failed or empty search leaves FallbackResults nil.
func (n *Nodes) Fallback(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeFallback).Logger()
	none := model.Patch{FallbackResults: model.Some[*model.SearchResults](nil)}

	query := FallbackQuery(s)
	if query == "" {
		log.Warn().Msg("No query for fallback search")
		return none
	}

	res, err := n.search.Search(ctx, query, model.SearchOptions{
		MaxResults:    fallbackMaxResults,
		IncludeImages: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Fallback search failed, continuing without")
		return none
	}
	if res == nil || len(res.Results) == 0 {
		log.Debug().Str("query", query).Msg("No fallback results found")
		return none
	}

	log.Debug().Int("results", len(res.Results)).Int("images", len(res.Images)).Msg("Fallback results found")
	return model.Patch{FallbackResults: model.Some(res)}
}
