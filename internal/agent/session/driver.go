// Package session drives one chat request: it runs the repair workflow,
// relays progress and tokens to the caller and stores the final answer.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/repairfix-assistant/server/internal/agent/graph"
	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const DefaultTimeout = 120 * time.Second

// Workflow streams the events of one pipeline run.
type Workflow interface {
	Stream(ctx context.Context, initial model.State) <-chan graph.Event
}

// AnswerSaver stores the assistant's final answer.
type AnswerSaver interface {
	SaveResponse(ctx context.Context, userID string, conversationID int64, content string) error
}

// Emit delivers an event to the caller. An error means the caller is gone.
type Emit func(Event) error

type Options struct {
	// Timeout bounds the run and the token relay together.
	Timeout time.Duration
	// VerboseErrors adds diagnostics to error events.
	VerboseErrors bool
}

type Request struct {
	UserID         string
	ConversationID *int64
	Message        string
}

type Driver struct {
	workflow Workflow
	answers  AnswerSaver
	opts     Options
}

func NewDriver(workflow Workflow, answers AnswerSaver, opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Driver{workflow: workflow, answers: answers, opts: opts}
}

// errClientGone stops a run whose caller stopped listening.
var errClientGone = errors.New("client disconnected")

// Run handles one request. Progress, tokens and a final done event are
// emitted in order; a fatal failure emits a single error event instead of
// done. The returned error is for logging only.
func (d *Driver) Run(ctx context.Context, req Request, emit Emit) error {
	runID := uuid.NewString()
	log := logx.With("run_id", runID).With().
		Str("user_id", req.UserID).
		Logger()
	ctx = log.WithContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	started := time.Now()
	log.Info().Int("message_len", len(req.Message)).Msg("Chat run started")

	err := d.run(ctx, &log, req, emit)
	switch {
	case errors.Is(err, errClientGone):
		log.Warn().Dur("elapsed", time.Since(started)).Msg("Client disconnected")
	case err != nil:
		d.fail(&log, err, emit)
	default:
		log.Info().Dur("elapsed", time.Since(started)).Msg("Chat run finished")
	}
	return err
}

func (d *Driver) run(ctx context.Context, log *zerolog.Logger, req Request, emit Emit) error {
	send := func(ev Event) error {
		if err := emit(ev); err != nil {
			return errClientGone
		}
		return nil
	}

	if err := send(Status(StatusAnalyzing)); err != nil {
		return err
	}

	state := model.State{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		UserMessage:    req.Message,
	}
	conversationID := req.ConversationID

	events := d.workflow.Stream(ctx, state)
	finished := false
	for !finished {
		select {
		case <-ctx.Done():
			closeResponse(state.Response)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				finished = true
				break
			}
			if ev.Err != nil {
				closeResponse(state.Response)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return ev.Err
			}
			state.Apply(ev.Patch)
			if ev.Patch.ConversationID.Set && ev.Patch.ConversationID.Val != nil {
				conversationID = ev.Patch.ConversationID.Val
				log.UpdateContext(func(c zerolog.Context) zerolog.Context {
					return c.Int64("conversation_id", *conversationID)
				})
			}
			log.Debug().Str("node", ev.Node).Strs("keys", ev.Patch.Keys()).Msg("Node completed")
			if msg, ok := NodeStatus[ev.Node]; ok {
				if err := send(Status(msg)); err != nil {
					closeResponse(state.Response)
					return err
				}
			}
		}
	}
	// The engine closes its channel early when ctx ends mid-run.
	if err := ctx.Err(); err != nil {
		closeResponse(state.Response)
		return err
	}

	answer, err := d.relay(ctx, log, state.Response, send)
	if err != nil {
		return err
	}

	if conversationID != nil && answer != "" {
		if err := d.answers.SaveResponse(ctx, req.UserID, *conversationID, answer); err != nil {
			log.Error().Err(err).Msg("Failed to save assistant message")
		}
	} else {
		log.Warn().Bool("has_conversation", conversationID != nil).Msg("Assistant message not saved")
	}

	return send(Event{Type: EventDone, ConversationID: conversationID, TokensUsed: state.TokensUsed})
}

type recvResult struct {
	msg *schema.Message
	err error
}

// relay forwards the answer as token events and returns the full text.
func (d *Driver) relay(ctx context.Context, log *zerolog.Logger, resp model.Response, send func(Event) error) (string, error) {
	switch {
	case resp.Stream != nil:
	case resp.Text != "":
		return resp.Text, send(Token(resp.Text))
	default:
		log.Warn().Msg("No valid response in final state")
		return NoResponseText, send(Token(NoResponseText))
	}

	sr := resp.Stream
	defer sr.Close()

	if err := send(Status(StatusGenerating)); err != nil {
		return "", err
	}

	chunks := make(chan recvResult)
	go func() {
		defer close(chunks)
		for {
			msg, err := sr.Recv()
			select {
			case chunks <- recvResult{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var b strings.Builder
	count := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r, ok := <-chunks:
			if !ok {
				return "", ctx.Err()
			}
			if errors.Is(r.err, io.EOF) {
				log.Debug().Int("chunks", count).Int("length", b.Len()).Msg("Response streamed")
				return b.String(), nil
			}
			if r.err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				log.Error().Err(r.err).Int("chunks", count).Msg("Streaming error")
				return StreamErrorText, send(Token(StreamErrorText))
			}
			count++
			if r.msg == nil || r.msg.Content == "" {
				continue
			}
			b.WriteString(r.msg.Content)
			if err := send(Token(r.msg.Content)); err != nil {
				return "", err
			}
		}
	}
}

// fail reports a fatal run error with a caller-safe message.
func (d *Driver) fail(log *zerolog.Logger, err error, emit Emit) {
	kind := errx.KindOf(err)
	log.Error().Err(err).Str("kind", kind.String()).Msg("Chat run failed")

	ev := Event{Type: EventError, Message: errx.UserMessage(kind)}
	if d.opts.VerboseErrors {
		ev.Details = err.Error()
	}
	if emitErr := emit(ev); emitErr != nil {
		log.Debug().Err(emitErr).Msg("Could not deliver error event")
	}
}

func closeResponse(r model.Response) {
	if r.Stream != nil {
		r.Stream.Close()
	}
}
