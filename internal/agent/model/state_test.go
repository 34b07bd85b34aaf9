package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_ApplyReplacesDeclaredFieldsOnly(t *testing.T) {
	id := int64(7)
	s := State{
		UserID:      "user-1",
		UserMessage: "my phone is broken",
		Devices:     []Device{{Title: "A"}, {Title: "B"}},
		Error:       "earlier failure",
	}

	s.Apply(Patch{
		ConversationID: Some(&id),
		Devices:        Some([]Device{{Title: "C"}}),
	})

	assert.Equal(t, &id, s.ConversationID)
	assert.Equal(t, []Device{{Title: "C"}}, s.Devices, "patches replace slices, never append")
	assert.Equal(t, "earlier failure", s.Error)
	assert.Equal(t, "my phone is broken", s.UserMessage)
}

func TestState_ApplyDeclaredNil(t *testing.T) {
	s := State{FallbackResults: &SearchResults{Results: []SearchResult{{Title: "x"}}}}

	s.Apply(Patch{FallbackResults: Some[*SearchResults](nil)})

	assert.Nil(t, s.FallbackResults)
}

func TestPatch_Keys(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	assert.Equal(t, []string{"device", "issue"}, Patch{Device: Some("iPhone 13"), Issue: Some("cracked screen")}.Keys())
	assert.Equal(t, []string{"error"}, ErrorPatch("boom").Keys())
}

func TestApproxTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"My iPhone 13 screen is cracked", 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ApproxTokens(tt.in), tt.in)
	}
}
