// Package prompts renders the chat messages sent to the generation backend.
package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/repairfix-assistant/server/internal/agent/model"
)

var (
	//go:embed template/device_identifier.txt
	deviceIdentifierPrompt string

	//go:embed template/guide_selector.txt
	guideSelectorPrompt string

	//go:embed template/guide_request.txt
	guideRequestPrompt string

	//go:embed template/repair_assistant.txt
	repairAssistantPrompt string

	//go:embed template/repair_request.txt
	repairRequestPrompt string
)

// IdentifyDevice renders the device identification conversation. The user
// message is passed as a variable so braces in it are never interpreted.
func IdentifyDevice(ctx context.Context, userMessage string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(deviceIdentifierPrompt),
		schema.UserMessage("{{.UserMessage}}"),
	)
	return format(ctx, "identify device", tpl, map[string]any{
		"UserMessage": userMessage,
	})
}

type guideBrief struct {
	GuideID    int    `json:"guideid"`
	Title      string `json:"title"`
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty"`
}

// SelectGuide renders the guide selection conversation with a condensed
// JSON listing of the candidates.
func SelectGuide(ctx context.Context, issue string, guides []model.GuideSummary) ([]*schema.Message, error) {
	brief := make([]guideBrief, 0, len(guides))
	for _, g := range guides {
		brief = append(brief, guideBrief{
			GuideID:    g.GuideID,
			Title:      g.Title,
			Subject:    g.Subject,
			Difficulty: g.Difficulty,
		})
	}
	listing, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("select guide prompt: %w", err)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(guideSelectorPrompt),
		schema.UserMessage(guideRequestPrompt),
	)
	return format(ctx, "select guide", tpl, map[string]any{
		"Issue":  issue,
		"Guides": string(listing),
	})
}

// Repair renders the answer conversation around the prepared context block.
func Repair(ctx context.Context, userMessage, contextBlock string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(repairAssistantPrompt),
		schema.UserMessage(repairRequestPrompt),
	)
	return format(ctx, "repair", tpl, map[string]any{
		"UserMessage": userMessage,
		"Context":     contextBlock,
	})
}

func format(ctx context.Context, name string, tpl prompt.ChatTemplate, vars map[string]any) ([]*schema.Message, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

// GenericContext stands in for guide data when neither a guide nor search
// results are available.
func GenericContext(device, issue string) string {
	if device == "" {
		device = "the device"
	}
	if issue == "" {
		issue = "this issue"
	}
	return fmt.Sprintf(`No specific repair guide was found for "%s" regarding "%s". 
      
Please provide general repair advice based on your knowledge. Include:
- Safety precautions
- Common causes of the issue
- General troubleshooting steps
- When to seek professional help
- Estimated difficulty level`, device, issue)
}

// FallbackResponse is the static answer used when generation is unavailable.
func FallbackResponse(device, issue string) string {
	if device == "" {
		device = "your device"
	}
	if issue == "" {
		issue = "repair issue"
	}
	return fmt.Sprintf(`I'm having trouble generating a detailed response right now. 

For your question about **%s** (%s):

**General Advice:**
1. ⚠️ **Safety First** - Always disconnect power before any repair
2. 🔍 **Research** - Check YouTube tutorials and forums for your specific model
3. 🛠️ **Tools** - Ensure you have the proper tools before starting
4. 📱 **iFixit** - Visit [iFixit.com](https://ifixit.com) directly for detailed guides

Please try again in a moment, or rephrase your question with more specific details about your device model.`, device, issue)
}
