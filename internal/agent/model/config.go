package model

import "time"

// ================ Config ================
type ChatConfig struct {
	// Timeout bounds one pipeline run, token relay included.
	Timeout time.Duration `envconfig:"CHAT_TIMEOUT" default:"120s"`
}

type RetryConfig struct {
	MaxAttempts  int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	InitialDelay time.Duration `envconfig:"RETRY_INITIAL_DELAY" default:"2s"`
}

// ExtractionModelConfig configures the non-streaming model used to identify
// the device and to select a guide.
type ExtractionModelConfig struct {
	Model       string  `envconfig:"GEMINI_EXTRACTION_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GEMINI_EXTRACTION_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"GEMINI_EXTRACTION_TEMPERATURE" default:"0.1"`
}

// ResponseModelConfig configures the streaming model that writes the answer.
type ResponseModelConfig struct {
	Model       string  `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GEMINI_MAX_TOKENS" default:"4096"`
	Temperature float32 `envconfig:"GEMINI_TEMPERATURE" default:"0.7"`
}

type CatalogConfig struct {
	BaseURL string        `envconfig:"IFIXIT_BASE_URL" default:"https://www.ifixit.com/api/2.0"`
	Timeout time.Duration `envconfig:"IFIXIT_TIMEOUT" default:"15s"`
}

type SearchConfig struct {
	APIKey     string        `envconfig:"TAVILY_API_KEY"`
	BaseURL    string        `envconfig:"TAVILY_BASE_URL" default:"https://api.tavily.com"`
	Timeout    time.Duration `envconfig:"TAVILY_TIMEOUT" default:"20s"`
	MaxResults int           `envconfig:"TAVILY_MAX_RESULTS" default:"5"`
	Depth      string        `envconfig:"TAVILY_SEARCH_DEPTH" default:"advanced"`
}
