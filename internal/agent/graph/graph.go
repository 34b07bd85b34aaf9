package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
	"github.com/repairfix-assistant/server/internal/agent/graph/observers"
	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
	"github.com/repairfix-assistant/server/pkg/telemetry"
)

const tracerName = "github.com/repairfix-assistant/server/internal/agent/graph"

// maxRunSteps bounds a run. The longest path visits seven nodes, so a run
// that needs more is looping.
const maxRunSteps = 10

// Event reports one finished node and the patch it applied. The last event
// of a failed run carries Err only.
type Event struct {
	Node  string
	Patch model.Patch
	Err   error
}

// run is what flows through the eino graph: the state being built and the
// channel the current node reports to.
type run struct {
	state  model.State
	events chan<- Event
}

// Config holds everything needed to build the workflow.
type Config struct {
	Nodes *nodes.Nodes
	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer
}

// Workflow is the compiled pipeline. It is safe for concurrent runs.
type Workflow struct {
	runnable  compose.Runnable[*run, *run]
	tracer    trace.Tracer
	observers callbacks.Handler
}

// GraphBuilder handles the construction of the repair pipeline graph
type GraphBuilder struct {
	steps  []nodes.Named
	tracer trace.Tracer
	graph  *compose.Graph[*run, *run]
}

// New builds and compiles the workflow.
func New(ctx context.Context, cfg Config) (*Workflow, error) {
	if cfg.Nodes == nil {
		return nil, fmt.Errorf("graph nodes are nil")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	b := &GraphBuilder{
		steps:  cfg.Nodes.Steps(),
		tracer: tracer,
		graph:  compose.NewGraph[*run, *run](),
	}

	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := b.compile(ctx)
	if err != nil {
		return nil, err
	}
	return &Workflow{runnable: runnable, tracer: tracer, observers: observers.Pipeline()}, nil
}

// addNodes adds one lambda per pipeline step
func (b *GraphBuilder) addNodes() error {
	for _, step := range b.steps {
		if err := b.graph.AddLambdaNode(step.Name, b.lambda(step), compose.WithNodeName(step.Name)); err != nil {
			logx.Error().Err(err).Str("node", step.Name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", step.Name, err)
		}
	}
	return nil
}

// lambda applies the step's patch and hands the event to the consumer
// before the graph moves on.
func (b *GraphBuilder) lambda(step nodes.Named) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, r *run) (out *run, err error) {
		ctx, span := b.tracer.Start(ctx, "repairfix.node."+step.Name)
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("node %s panicked: %v", step.Name, rec)
				telemetry.SetError(span, err)
				out = nil
			}
		}()

		patch := step.Run(ctx, r.state)
		r.state.Apply(patch)

		span.SetAttributes(attribute.StringSlice("repairfix.patch.keys", patch.Keys()))
		if patch.Error.Set && patch.Error.Val != "" {
			span.SetAttributes(attribute.String("repairfix.soft_error", patch.Error.Val))
		}

		select {
		case r.events <- Event{Node: step.Name, Patch: patch}:
			return r, nil
		case <-ctx.Done():
			if sr := patch.Response.Val.Stream; sr != nil {
				sr.Close()
			}
			return nil, ctx.Err()
		}
	})
}

// addEdges creates the unconditional connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeIdentifyDevice},
		{nodes.NodeIdentifyDevice, nodes.NodeSearchCatalog},
		{nodes.NodeSearchCatalog, nodes.NodeGetGuides},
		{nodes.NodeGetDetails, nodes.NodeGenerate},
		{nodes.NodeFallback, nodes.NodeGenerate},
		{nodes.NodeGenerate, nodes.NodeSaveRecord},
		{nodes.NodeSaveRecord, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func routeBranch(route func(model.State) nodes.Route, targets ...nodes.Route) *compose.GraphBranch {
	ends := make(map[string]bool, len(targets))
	for _, t := range targets {
		ends[string(t)] = true
	}
	return compose.NewGraphBranch(func(ctx context.Context, r *run) (string, error) {
		next := route(r.state)
		logx.Ctx(ctx).Debug().Str("route", string(next)).Msg("Routing")
		return string(next), nil
	}, ends)
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	afterGuides := routeBranch(nodes.RouteAfterGuides, nodes.RouteSelectGuide, nodes.RouteFallback)
	if err := b.graph.AddBranch(nodes.NodeGetGuides, afterGuides); err != nil {
		logx.Error().Err(err).Msg("Error adding guides branch")
		return fmt.Errorf("error adding guides branch: %w", err)
	}

	afterSelection := routeBranch(nodes.RouteAfterSelection, nodes.RouteGetDetails, nodes.RouteFallback)
	if err := b.graph.AddBranch(nodes.NodeSelectGuide, afterSelection); err != nil {
		logx.Error().Err(err).Msg("Error adding selection branch")
		return fmt.Errorf("error adding selection branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*run, *run], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("repairfix"),
		compose.WithMaxRunSteps(maxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// Stream starts a run from initial and returns its events. The channel is
// unbuffered: a node's event is delivered before the next node starts, and
// the channel is closed when the run ends. Callers must drain it.
func (w *Workflow) Stream(ctx context.Context, initial model.State) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		attrs := []attribute.KeyValue{attribute.String(telemetry.UserIDKey, initial.UserID)}
		if initial.ConversationID != nil {
			attrs = append(attrs, attribute.Int64(telemetry.ConversationIDKey, *initial.ConversationID))
		}
		ctx, span := w.tracer.Start(ctx, "repairfix.run", trace.WithAttributes(attrs...))
		defer span.End()

		r := &run{state: initial, events: events}
		_, err := w.runnable.Invoke(ctx, r, compose.WithCallbacks(w.observers))
		if err == nil {
			return
		}

		telemetry.SetError(span, err)
		logx.Ctx(ctx).Error().Err(err).Msg("Workflow run failed")

		select {
		case events <- Event{Err: err}:
		case <-ctx.Done():
		}
	}()

	return events
}

// Run executes the workflow to completion and returns the final state.
func (w *Workflow) Run(ctx context.Context, initial model.State) (model.State, error) {
	state := initial
	var (
		runErr   error
		finished bool
	)
	for ev := range w.Stream(ctx, initial) {
		if ev.Err != nil {
			runErr = ev.Err
			continue
		}
		state.Apply(ev.Patch)
		finished = ev.Node == nodes.NodeSaveRecord
	}
	if runErr == nil && !finished {
		runErr = ctx.Err()
		if runErr == nil {
			runErr = errors.New("workflow stopped before saving the record")
		}
	}
	return state, runErr
}
