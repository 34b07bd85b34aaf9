package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"

	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxErrSnippet = 200       // limit error snippet size
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\n?(.*?)\\n?```")
	fencedAny  = regexp.MustCompile("(?s)```\\n?(.*?)\\n?```")
)

// DeviceReply is the device identifier's answer.
type DeviceReply struct {
	Device string `json:"device"`
	Issue  string `json:"issue"`
}

// GuideChoice is the guide selector's answer. GuideID is nil when the model
// declined to pick a guide.
type GuideChoice struct {
	GuideID   *int   `json:"-"`
	Reasoning string `json:"reasoning"`
}

// ExtractJSON returns the JSON payload of a model reply: the body of the
// first ```json fence, else of the first plain fence, else the whole text.
func ExtractJSON(content string) string {
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := fencedAny.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

// ParseDeviceReply decodes {"device": ..., "issue": ...}. Surrounding
// whitespace is trimmed from both values.
func ParseDeviceReply(content string) (reply DeviceReply, err error) {
	defer recoverParse("device_reply", &err)

	if err = decode(content, &reply); err != nil {
		return DeviceReply{}, err
	}
	reply.Device = strings.TrimSpace(reply.Device)
	reply.Issue = strings.TrimSpace(reply.Issue)
	return reply, nil
}

// ParseGuideChoice decodes {"guideid": number|null, "reasoning": ...}.
// Only integral numbers count as a choice; strings, fractions and null
// leave GuideID nil.
func ParseGuideChoice(content string) (choice GuideChoice, err error) {
	defer recoverParse("guide_choice", &err)

	var raw struct {
		GuideID   json.RawMessage `json:"guideid"`
		Reasoning string          `json:"reasoning"`
	}
	if err = decode(content, &raw); err != nil {
		return GuideChoice{}, err
	}
	choice.Reasoning = raw.Reasoning

	var f float64
	if len(raw.GuideID) == 0 || json.Unmarshal(raw.GuideID, &f) != nil {
		return choice, nil
	}
	if f == math.Trunc(f) && f > 0 && f <= math.MaxInt32 {
		id := int(f)
		choice.GuideID = &id
	}
	return choice, nil
}

func decode(content string, v any) error {
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "reply_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("reply rejected due to size limit")
		return fmt.Errorf("reply too large")
	}
	payload := strings.TrimSpace(ExtractJSON(content))
	if payload == "" {
		return fmt.Errorf("empty reply")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("reply is not a JSON object: %w (snippet=%q)", err, snippet(payload))
	}
	return nil
}

func snippet(s string) string {
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet]
	}
	return s
}

func recoverParse(component string, err *error) {
	if r := recover(); r != nil {
		logx.Error().Str("component", component).Msgf("panic recovered: %v", r)
		*err = errx.New(fmt.Errorf("%s parser panic", component), http.StatusInternalServerError, errx.SystemErrorMessage)
	}
}
