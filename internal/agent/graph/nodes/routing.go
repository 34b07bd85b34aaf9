package nodes

import "github.com/repairfix-assistant/server/internal/agent/model"

// Route is a conditional edge target.
type Route string

const (
	RouteSelectGuide Route = NodeSelectGuide
	RouteGetDetails  Route = NodeGetDetails
	RouteFallback    Route = NodeFallback
)

// RouteAfterGuides picks selectGuide when any guide was found.
func RouteAfterGuides(s model.State) Route {
	if len(s.Guides) > 0 {
		return RouteSelectGuide
	}
	return RouteFallback
}

// RouteAfterSelection picks getDetails once a guide is selected.
func RouteAfterSelection(s model.State) Route {
	if s.SelectedGuide != nil {
		return RouteGetDetails
	}
	return RouteFallback
}
