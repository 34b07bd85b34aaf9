// Package formatters turns catalog guides and web search results into the
// markdown context handed to the answer model.
package formatters

import (
	"fmt"
	"strings"

	"github.com/repairfix-assistant/server/internal/agent/model"
)

var bullets = map[string]string{
	"black":         "•",
	"icon_note":     "📝",
	"icon_caution":  "⚠️",
	"icon_reminder": "💡",
}

func bulletFor(kind string) string {
	if b, ok := bullets[kind]; ok {
		return b
	}
	return "•"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Guide renders a full guide. Each step's images come right after the step
// heading so they stay next to the instructions they illustrate.
func Guide(g *model.Guide) string {
	if g == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", g.Title)
	if g.Image != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", g.Title, g.Image)
	}
	if g.Introduction != "" {
		fmt.Fprintf(&b, "%s\n\n", g.Introduction)
	}
	fmt.Fprintf(&b, "**Difficulty:** %s\n", orNA(g.Difficulty))
	fmt.Fprintf(&b, "**Time Required:** %s\n\n", orNA(g.TimeRequired))

	writeItems(&b, "## 🛠️ Tools Needed", g.Tools)
	writeItems(&b, "## 📦 Parts Needed", g.Parts)

	if len(g.Steps) > 0 {
		b.WriteString("## 📋 Repair Steps\n\n")
		for i, step := range g.Steps {
			n := i + 1
			if step.Title != "" {
				fmt.Fprintf(&b, "### Step %d: %s\n\n", n, step.Title)
			} else {
				fmt.Fprintf(&b, "### Step %d\n\n", n)
			}
			for _, img := range step.Images {
				if img.URL == "" {
					continue
				}
				alt := img.Alt
				if alt == "" {
					alt = fmt.Sprintf("Step %d image", n)
				}
				fmt.Fprintf(&b, "![%s](%s)\n\n", alt, img.URL)
			}
			for _, line := range step.Lines {
				fmt.Fprintf(&b, "%s %s\n", bulletFor(line.Bullet), line.Text)
			}
			b.WriteString("\n")
		}
	}

	if g.Conclusion != "" {
		fmt.Fprintf(&b, "## ✅ Conclusion\n\n%s\n\n", g.Conclusion)
	}
	fmt.Fprintf(&b, "\n---\n📱 [View original guide on iFixit](%s)\n", g.URL)
	return b.String()
}

func writeItems(b *strings.Builder, heading string, items []model.GuideItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n\n", heading)
	for _, it := range items {
		if it.Thumbnail != "" {
			fmt.Fprintf(b, "- ![](%s) %s\n", it.Thumbnail, it.Text)
		} else {
			fmt.Fprintf(b, "- %s\n", it.Text)
		}
	}
	b.WriteString("\n")
}
