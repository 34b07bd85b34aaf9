package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/repairfix-assistant/server/internal/agent/model"
)

func TestRouteAfterGuides(t *testing.T) {
	assert.Equal(t, RouteFallback, RouteAfterGuides(model.State{}))
	assert.Equal(t, RouteFallback, RouteAfterGuides(model.State{Guides: []model.GuideSummary{}}))
	for n := 1; n <= 3; n++ {
		guides := make([]model.GuideSummary, n)
		assert.Equal(t, RouteSelectGuide, RouteAfterGuides(model.State{Guides: guides}))
	}
}

func TestRouteAfterSelection(t *testing.T) {
	assert.Equal(t, RouteFallback, RouteAfterSelection(model.State{}))
	assert.Equal(t, RouteGetDetails, RouteAfterSelection(model.State{SelectedGuide: &model.GuideSummary{GuideID: 1}}))
}
