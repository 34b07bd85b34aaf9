package nodes

import (
	"context"
	"strings"

	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// SearchCatalog looks the identified device up in the catalog. A failing
// catalog is treated like an empty result so the run falls back quietly.
func (n *Nodes) SearchCatalog(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeSearchCatalog).Logger()

	if strings.TrimSpace(s.Device) == "" {
		log.Debug().Msg("No device in state, skipping catalog")
		return model.ErrorPatch(ErrNoDevice)
	}

	found, err := n.catalog.SearchDevices(ctx, s.Device)
	if err != nil {
		log.Warn().Err(err).Str("device", s.Device).Msg("Catalog search failed, continuing without devices")
		return model.Patch{Devices: model.Some([]model.Device{})}
	}

	devices := dedupeDevices(found)
	log.Debug().Int("devices", len(devices)).Msg("Catalog search done")
	return model.Patch{Devices: model.Some(devices)}
}

// dedupeDevices keeps the first device per canonical title.
func dedupeDevices(in []model.Device) []model.Device {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Device, 0, len(in))
	for _, d := range in {
		if d.CanonicalTitle == "" {
			d.CanonicalTitle = d.Title
		}
		if _, ok := seen[d.CanonicalTitle]; ok {
			continue
		}
		seen[d.CanonicalTitle] = struct{}{}
		out = append(out, d)
	}
	return out
}

// GetGuides lists the guides of the best matching device.
func (n *Nodes) GetGuides(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeGetGuides).Logger()

	if len(s.Devices) == 0 {
		log.Debug().Msg("No devices, nothing to list")
		return model.Patch{}
	}

	device := s.Devices[0]
	guides, err := n.catalog.DeviceGuides(ctx, device.CanonicalTitle)
	if err != nil {
		log.Error().Err(err).Str("device", device.CanonicalTitle).Msg("Error fetching guides")
		return model.ErrorPatch(err.Error())
	}
	if guides == nil {
		guides = []model.GuideSummary{}
	}

	log.Debug().Str("device", device.CanonicalTitle).Int("guides", len(guides)).Msg("Guides fetched")
	return model.Patch{Guides: model.Some(guides)}
}

// GetDetails fetches the full selected guide.
func (n *Nodes) GetDetails(ctx context.Context, s model.State) model.Patch {
	log := logx.Ctx(ctx).With().Str("node", NodeGetDetails).Logger()

	if s.SelectedGuide == nil {
		return model.Patch{}
	}

	guide, err := n.catalog.GuideDetails(ctx, s.SelectedGuide.GuideID)
	if err != nil {
		log.Error().Err(err).Int("guide_id", s.SelectedGuide.GuideID).Msg("Error fetching guide details")
		return model.ErrorPatch(err.Error())
	}
	if guide == nil {
		log.Warn().Int("guide_id", s.SelectedGuide.GuideID).Msg("Guide not found")
		return model.Patch{}
	}

	log.Debug().Int("guide_id", guide.GuideID).Int("steps", len(guide.Steps)).Msg("Guide details fetched")
	return model.Patch{GuideDetails: model.Some(guide)}
}
