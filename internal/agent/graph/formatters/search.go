package formatters

import (
	"fmt"
	"strings"

	"github.com/repairfix-assistant/server/internal/agent/model"
)

// SearchResults renders web search results for query: reference images
// first, then one numbered summary per result with its link.
func SearchResults(res *model.SearchResults, query string) string {
	if res == nil || len(res.Results) == 0 {
		return fmt.Sprintf("No specific repair guides found for \"%s\". Please try rephrasing your question.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Search Results for \"%s\"\n\n", query)
	b.WriteString("I couldn't find an official iFixit guide, but here are some relevant resources:\n\n")

	if len(res.Images) > 0 {
		b.WriteString("## 📸 Reference Images\n\n")
		for i, url := range res.Images {
			if url == "" {
				continue
			}
			fmt.Fprintf(&b, "![Reference image %d](%s)\n\n", i+1, url)
		}
	}

	b.WriteString("## 📋 Resources\n\n")
	for i, r := range res.Results {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, r.Title)
		fmt.Fprintf(&b, "%s\n\n", r.Content)
		fmt.Fprintf(&b, "🔗 [Read more](%s)\n\n", r.URL)
	}
	return b.String()
}
