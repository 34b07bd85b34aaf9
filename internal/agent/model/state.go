package model

import (
	"github.com/cloudwego/eino/schema"
)

// Optional marks a patch field as declared. A declared zero value (nil,
// empty string) still overwrites the state; an undeclared field never does.
type Optional[T any] struct {
	Val T
	Set bool
}

// Some declares v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, Set: true}
}

// Response is the generated answer: either a lazy token stream or a
// finished text, never both.
type Response struct {
	Text   string
	Stream *schema.StreamReader[*schema.Message]
}

// IsZero reports whether no answer was produced.
func (r Response) IsZero() bool {
	return r.Text == "" && r.Stream == nil
}

// State is the record threaded through one pipeline run.
// Concurrency model:
//   - One State belongs to exactly one run; it is never shared across requests.
//   - Nodes receive a copy and answer with a Patch; only the engine calls Apply.
type State struct {
	UserID          string
	ConversationID  *int64
	UserMessage     string
	Device          string
	Issue           string
	Devices         []Device
	Guides          []GuideSummary
	SelectedGuide   *GuideSummary
	GuideDetails    *Guide
	FallbackResults *SearchResults
	Response        Response
	Error           string
	TokensUsed      int
}

// Patch is the partial update a node returns.
type Patch struct {
	ConversationID  Optional[*int64]
	Device          Optional[string]
	Issue           Optional[string]
	Devices         Optional[[]Device]
	Guides          Optional[[]GuideSummary]
	SelectedGuide   Optional[*GuideSummary]
	GuideDetails    Optional[*Guide]
	FallbackResults Optional[*SearchResults]
	Response        Optional[Response]
	Error           Optional[string]
	TokensUsed      Optional[int]
}

// Apply shallow-merges p into s. Declared fields replace, never augment.
func (s *State) Apply(p Patch) {
	if p.ConversationID.Set {
		s.ConversationID = p.ConversationID.Val
	}
	if p.Device.Set {
		s.Device = p.Device.Val
	}
	if p.Issue.Set {
		s.Issue = p.Issue.Val
	}
	if p.Devices.Set {
		s.Devices = p.Devices.Val
	}
	if p.Guides.Set {
		s.Guides = p.Guides.Val
	}
	if p.SelectedGuide.Set {
		s.SelectedGuide = p.SelectedGuide.Val
	}
	if p.GuideDetails.Set {
		s.GuideDetails = p.GuideDetails.Val
	}
	if p.FallbackResults.Set {
		s.FallbackResults = p.FallbackResults.Val
	}
	if p.Response.Set {
		s.Response = p.Response.Val
	}
	if p.Error.Set {
		s.Error = p.Error.Val
	}
	if p.TokensUsed.Set {
		s.TokensUsed = p.TokensUsed.Val
	}
}

// Keys lists the declared fields, in State order. Used for logging.
func (p Patch) Keys() []string {
	var keys []string
	add := func(set bool, name string) {
		if set {
			keys = append(keys, name)
		}
	}
	add(p.ConversationID.Set, "conversationId")
	add(p.Device.Set, "device")
	add(p.Issue.Set, "issue")
	add(p.Devices.Set, "devices")
	add(p.Guides.Set, "guides")
	add(p.SelectedGuide.Set, "selectedGuide")
	add(p.GuideDetails.Set, "guideDetails")
	add(p.FallbackResults.Set, "fallbackResults")
	add(p.Response.Set, "response")
	add(p.Error.Set, "error")
	add(p.TokensUsed.Set, "tokensUsed")
	return keys
}

// Empty reports whether the patch declares nothing (a pass-through).
func (p Patch) Empty() bool {
	return len(p.Keys()) == 0
}

// ErrorPatch is the soft failure marker shared by all nodes.
func ErrorPatch(msg string) Patch {
	return Patch{Error: Some(msg)}
}
