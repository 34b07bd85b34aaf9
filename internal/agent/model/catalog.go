package model

// Device is a catalog entry matching the identified device name.
type Device struct {
	Title          string `json:"title"`
	CanonicalTitle string `json:"canonical_title"`
	URL            string `json:"url"`
	Image          string `json:"image,omitempty"`
	Category       string `json:"category,omitempty"`
}

// GuideSummary is one repair guide listed under a device.
type GuideSummary struct {
	GuideID      int    `json:"guideid"`
	Title        string `json:"title"`
	Subject      string `json:"subject"`
	Difficulty   string `json:"difficulty"`
	TimeRequired string `json:"time_required,omitempty"`
	URL          string `json:"url,omitempty"`
	Image        string `json:"image,omitempty"`
}

// Guide is the full guide document fetched for a selected summary.
type Guide struct {
	GuideID      int         `json:"guideid"`
	Title        string      `json:"title"`
	Introduction string      `json:"introduction,omitempty"`
	Difficulty   string      `json:"difficulty,omitempty"`
	TimeRequired string      `json:"time_required,omitempty"`
	Image        string      `json:"image,omitempty"`
	Tools        []GuideItem `json:"tools,omitempty"`
	Parts        []GuideItem `json:"parts,omitempty"`
	Steps        []Step      `json:"steps,omitempty"`
	Conclusion   string      `json:"conclusion,omitempty"`
	URL          string      `json:"url,omitempty"`
}

// GuideItem is a tool or part listed by a guide.
type GuideItem struct {
	Text      string `json:"text"`
	Thumbnail string `json:"thumbnail,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Step is one ordered step of a guide.
type Step struct {
	Title  string      `json:"title,omitempty"`
	Lines  []StepLine  `json:"lines,omitempty"`
	Images []StepImage `json:"images,omitempty"`
}

// StepLine is one instruction line. Level is the indent depth and Bullet the
// catalog's bullet kind (black, icon_note, icon_caution, icon_reminder, ...).
type StepLine struct {
	Text   string `json:"text"`
	Level  int    `json:"level"`
	Bullet string `json:"bullet,omitempty"`
}

// StepImage illustrates a step.
type StepImage struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

// SearchResults is the web-search fallback document.
type SearchResults struct {
	Results []SearchResult `json:"results"`
	Images  []string       `json:"images,omitempty"`
}

// SearchResult is one web-search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchOptions tunes a web search request.
type SearchOptions struct {
	MaxResults    int
	IncludeImages bool
}
