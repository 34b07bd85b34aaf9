package nodes

import (
	"context"
	"errors"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/retry"
)

// Node names, in pipeline order. They double as eino graph node keys and as
// the keys of the status messages relayed to the caller.
const (
	NodeIdentifyDevice = "identifyDevice"
	NodeSearchCatalog  = "searchCatalog"
	NodeGetGuides      = "getGuides"
	NodeSelectGuide    = "selectGuide"
	NodeGetDetails     = "getDetails"
	NodeFallback       = "fallback"
	NodeGenerate       = "generate"
	NodeSaveRecord     = "saveRecord"
)

// Soft failure messages recorded in State.Error.
const (
	ErrDeviceNotIdentified = "Could not identify device from your message"
	ErrNoDevice            = "No device identified"
)

// Node is one pipeline step. It reads a snapshot of the state and answers
// with the fields it wants to change. Nodes never fail: problems are
// reported through the patch.
type Node func(ctx context.Context, s model.State) model.Patch

// Config wires the collaborators the steps depend on.
type Config struct {
	// Extractor answers the identification and selection prompts.
	Extractor einomodel.BaseChatModel
	// Responder streams the final answer.
	Responder einomodel.BaseChatModel
	Catalog   Catalog
	Search    WebSearch
	Records   RecordStore
	Retry     retry.Policy
}

// Nodes holds the eight pipeline steps.
type Nodes struct {
	extractor einomodel.BaseChatModel
	responder einomodel.BaseChatModel
	catalog   Catalog
	search    WebSearch
	records   RecordStore
	retry     retry.Policy
}

func New(cfg Config) (*Nodes, error) {
	switch {
	case cfg.Extractor == nil || cfg.Responder == nil:
		return nil, errors.New("chat models are not properly initialized")
	case cfg.Catalog == nil:
		return nil, errors.New("catalog is nil")
	case cfg.Search == nil:
		return nil, errors.New("web search is nil")
	case cfg.Records == nil:
		return nil, errors.New("record store is nil")
	}
	return &Nodes{
		extractor: cfg.Extractor,
		responder: cfg.Responder,
		catalog:   cfg.Catalog,
		search:    cfg.Search,
		records:   cfg.Records,
		retry:     cfg.Retry,
	}, nil
}

// Named pairs a step with its graph key.
type Named struct {
	Name string
	Run  Node
}

// Steps lists every step in pipeline order.
func (n *Nodes) Steps() []Named {
	return []Named{
		{NodeIdentifyDevice, n.IdentifyDevice},
		{NodeSearchCatalog, n.SearchCatalog},
		{NodeGetGuides, n.GetGuides},
		{NodeSelectGuide, n.SelectGuide},
		{NodeGetDetails, n.GetDetails},
		{NodeFallback, n.Fallback},
		{NodeGenerate, n.Generate},
		{NodeSaveRecord, n.SaveRecord},
	}
}
