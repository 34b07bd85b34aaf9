package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairfix-assistant/server/internal/agent/agenttest"
	"github.com/repairfix-assistant/server/internal/agent/conversations"
	"github.com/repairfix-assistant/server/internal/agent/graph"
	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
	"github.com/repairfix-assistant/server/internal/agent/model"
	"github.com/repairfix-assistant/server/internal/agent/retry"
)

// scripted replays fixed events.
type scripted []graph.Event

func (s scripted) Stream(ctx context.Context, _ model.State) <-chan graph.Event {
	ch := make(chan graph.Event, len(s))
	for _, ev := range s {
		ch <- ev
	}
	close(ch)
	return ch
}

type saved struct {
	userID  string
	convID  int64
	content string
}

type answers struct {
	mu    sync.Mutex
	err   error
	saves []saved
}

func (a *answers) SaveResponse(ctx context.Context, userID string, conversationID int64, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saves = append(a.saves, saved{userID, conversationID, content})
	return a.err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) last() Event {
	return r.events[len(r.events)-1]
}

func (r *recorder) text() string {
	var s string
	for _, ev := range r.ofType(EventToken) {
		s += ev.Content
	}
	return s
}

func id(v int64) *int64 { return &v }

func streamOf(chunks ...string) *schema.StreamReader[*schema.Message] {
	msgs := make([]*schema.Message, 0, len(chunks))
	for _, c := range chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs)
}

func finalEvents(resp model.Response, convID *int64) scripted {
	return scripted{
		{Node: nodes.NodeIdentifyDevice, Patch: model.Patch{Device: model.Some("iPhone 13"), Issue: model.Some("battery")}},
		{Node: nodes.NodeGenerate, Patch: model.Patch{Response: model.Some(resp), TokensUsed: model.Some(5)}},
		{Node: nodes.NodeSaveRecord, Patch: model.Patch{ConversationID: model.Some(convID)}},
	}
}

func TestRun_StreamsTokensThenDone(t *testing.T) {
	a := &answers{}
	d := NewDriver(finalEvents(model.Response{Stream: streamOf("Replace ", "", "the battery.")}, id(7)), a, Options{})
	rec := &recorder{}

	err := d.Run(context.Background(), Request{UserID: "u1", Message: "battery dies"}, rec.emit)

	require.NoError(t, err)
	assert.Equal(t, Status(StatusAnalyzing), rec.events[0])
	assert.Equal(t, []Event{
		Status(StatusAnalyzing),
		Status(NodeStatus[nodes.NodeIdentifyDevice]),
		Status(NodeStatus[nodes.NodeGenerate]),
		Status(NodeStatus[nodes.NodeSaveRecord]),
		Status(StatusGenerating),
	}, rec.ofType(EventStatus))
	assert.Equal(t, []Event{Token("Replace "), Token("the battery.")}, rec.ofType(EventToken))

	done := rec.last()
	assert.Equal(t, EventDone, done.Type)
	require.NotNil(t, done.ConversationID)
	assert.EqualValues(t, 7, *done.ConversationID)
	assert.Equal(t, 5, done.TokensUsed)

	require.Len(t, a.saves, 1)
	assert.Equal(t, saved{"u1", 7, "Replace the battery."}, a.saves[0])
	assert.Empty(t, rec.ofType(EventError))
}

func TestRun_TextResponseIsOneToken(t *testing.T) {
	a := &answers{}
	d := NewDriver(finalEvents(model.Response{Text: "Try a reset."}, id(3)), a, Options{})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, rec.emit))

	assert.Equal(t, []Event{Token("Try a reset.")}, rec.ofType(EventToken))
	assert.NotContains(t, rec.ofType(EventStatus), Status(StatusGenerating))
	assert.Equal(t, EventDone, rec.last().Type)
	require.Len(t, a.saves, 1)
}

func TestRun_NoResponseSendsFallbackToken(t *testing.T) {
	a := &answers{}
	d := NewDriver(finalEvents(model.Response{}, id(3)), a, Options{})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, rec.emit))

	assert.Equal(t, []Event{Token(NoResponseText)}, rec.ofType(EventToken))
	require.Len(t, a.saves, 1)
	assert.Equal(t, NoResponseText, a.saves[0].content)
}

func TestRun_StreamErrorSendsErrorToken(t *testing.T) {
	sr, sw := schema.Pipe[*schema.Message](3)
	sw.Send(schema.AssistantMessage("Partial", nil), nil)
	sw.Send(nil, errors.New("stream broke"))
	sw.Close()

	a := &answers{}
	d := NewDriver(finalEvents(model.Response{Stream: sr}, id(9)), a, Options{})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, rec.emit))

	assert.Equal(t, []Event{Token("Partial"), Token(StreamErrorText)}, rec.ofType(EventToken))
	assert.Equal(t, EventDone, rec.last().Type)
	require.Len(t, a.saves, 1)
	assert.Equal(t, StreamErrorText, a.saves[0].content)
}

func TestRun_SaveFailureStillSendsDone(t *testing.T) {
	a := &answers{err: errors.New("db down")}
	d := NewDriver(finalEvents(model.Response{Text: "ok"}, id(1)), a, Options{})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, rec.emit))

	assert.Equal(t, EventDone, rec.last().Type)
	assert.Empty(t, rec.ofType(EventError))
}

func TestRun_NoConversationSkipsSave(t *testing.T) {
	a := &answers{}
	d := NewDriver(finalEvents(model.Response{Text: "ok"}, nil), a, Options{})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, rec.emit))

	assert.Empty(t, a.saves)
	done := rec.last()
	assert.Equal(t, EventDone, done.Type)
	assert.Nil(t, done.ConversationID)
}

func TestRun_RequestConversationIDIsKept(t *testing.T) {
	a := &answers{}
	events := scripted{
		{Node: nodes.NodeGenerate, Patch: model.Patch{Response: model.Some(model.Response{Text: "ok"})}},
		{Node: nodes.NodeSaveRecord, Patch: model.Patch{}},
	}
	d := NewDriver(events, a, Options{})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", ConversationID: id(12), Message: "more"}, rec.emit))

	require.Len(t, a.saves, 1)
	assert.EqualValues(t, 12, a.saves[0].convID)
	assert.EqualValues(t, 12, *rec.last().ConversationID)
}

func TestRun_WorkflowErrorSendsSingleErrorEvent(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		a := &answers{}
		events := scripted{
			{Node: nodes.NodeIdentifyDevice, Patch: model.Patch{Device: model.Some("x")}},
			{Err: errors.New("graph exploded")},
		}
		d := NewDriver(events, a, Options{VerboseErrors: verbose})
		rec := &recorder{}

		err := d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, rec.emit)

		require.Error(t, err)
		errs := rec.ofType(EventError)
		require.Len(t, errs, 1)
		assert.Equal(t, rec.last(), errs[0])
		assert.Contains(t, errs[0].Message, "unexpected error")
		if verbose {
			assert.Equal(t, "graph exploded", errs[0].Details)
		} else {
			assert.Empty(t, errs[0].Details)
		}
		assert.Empty(t, rec.ofType(EventDone))
		assert.Empty(t, a.saves)
	}
}

func TestRun_ClientGoneStopsRun(t *testing.T) {
	a := &answers{}
	d := NewDriver(finalEvents(model.Response{Stream: streamOf("a", "b", "c")}, id(1)), a, Options{})
	sent := 0

	err := d.Run(context.Background(), Request{UserID: "u1", Message: "help"}, func(Event) error {
		sent++
		if sent > 2 {
			return errors.New("broken pipe")
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 3, sent)
	assert.Empty(t, a.saves)
}

func newWorkflow(t *testing.T, responder *agenttest.ChatModel, store *agenttest.Store) *graph.Workflow {
	t.Helper()
	extractor := &agenttest.ChatModel{Replies: []agenttest.Reply{
		{Content: `{"device": "iPhone 13", "issue": "cracked screen"}`},
	}}
	p := retry.Default
	p.Wait = (&agenttest.NoWait{}).Wait

	n, err := nodes.New(nodes.Config{
		Extractor: extractor,
		Responder: responder,
		Catalog:   &agenttest.Catalog{},
		Search:    &agenttest.Search{},
		Records:   store,
		Retry:     p,
	})
	require.NoError(t, err)

	w, err := graph.New(context.Background(), graph.Config{Nodes: n})
	require.NoError(t, err)
	return w
}

func TestRun_EndToEndPersistsAnswer(t *testing.T) {
	store := agenttest.NewStore()
	w := newWorkflow(t, &agenttest.ChatModel{Chunks: []string{"Heat the edges, ", "then pry gently."}}, store)
	d := NewDriver(w, conversations.NewMessagesManager(store), Options{Timeout: 5 * time.Second})
	rec := &recorder{}

	require.NoError(t, d.Run(context.Background(), Request{UserID: "u1", Message: "My iPhone 13 screen is cracked"}, rec.emit))

	assert.Equal(t, "Heat the edges, then pry gently.", rec.text())
	done := rec.last()
	require.Equal(t, EventDone, done.Type)
	require.NotNil(t, done.ConversationID)
	assert.Equal(t, 8, done.TokensUsed)

	answers := store.MessagesByRole(model.RoleAssistant)
	require.Len(t, answers, 1)
	assert.Equal(t, "Heat the edges, then pry gently.", answers[0].Content)
	assert.Equal(t, *done.ConversationID, answers[0].ConversationID)
}

func TestRun_TimeoutSendsErrorWithoutDone(t *testing.T) {
	store := agenttest.NewStore()
	w := newWorkflow(t, &agenttest.ChatModel{Stall: true}, store)
	d := NewDriver(w, conversations.NewMessagesManager(store), Options{Timeout: 100 * time.Millisecond})
	rec := &recorder{}

	start := time.Now()
	err := d.Run(context.Background(), Request{UserID: "u1", Message: "My iPhone 13 screen is cracked"}, rec.emit)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
	errs := rec.ofType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "The request took too long. Please try again with a simpler question.", errs[0].Message)
	assert.Equal(t, EventError, rec.last().Type)
	assert.Empty(t, rec.ofType(EventDone))
	assert.Empty(t, rec.ofType(EventToken))
	assert.Empty(t, store.MessagesByRole(model.RoleAssistant))
}

func TestEvent_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"status", Status("Reading guide details..."), `{"type":"status","message":"Reading guide details..."}`},
		{"token", Token("Hi"), `{"type":"token","content":"Hi"}`},
		{"done", Event{Type: EventDone, ConversationID: id(4), TokensUsed: 10}, `{"type":"done","conversationId":4,"tokensUsed":10}`},
		{"done without conversation", Event{Type: EventDone}, `{"type":"done","conversationId":null,"tokensUsed":0}`},
		{"error", Event{Type: EventError, Message: "oops"}, `{"type":"error","message":"oops"}`},
		{"error with details", Event{Type: EventError, Message: "oops", Details: "boom"}, `{"type":"error","message":"oops","details":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}
