// Package websearch is the Tavily client used when no official guide fits.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const (
	service     = "tavily"
	maxImages   = 5
	maxBodySize = 4 << 20
)

var ErrMissingAPIKey = errors.New("web search API key is missing")

type Client struct {
	cfg  model.SearchConfig
	http *http.Client
}

func New(cfg model.SearchConfig) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewWithHTTPClient(cfg model.SearchConfig, hc *http.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Depth == "" {
		cfg.Depth = "advanced"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &Client{cfg: cfg, http: hc}
}

type searchRequest struct {
	APIKey                   string `json:"api_key"`
	Query                    string `json:"query"`
	SearchDepth              string `json:"search_depth"`
	MaxResults               int    `json:"max_results"`
	IncludeImages            bool   `json:"include_images"`
	IncludeImageDescriptions bool   `json:"include_image_descriptions"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
	Images []searchImage `json:"images"`
}

// searchImage is either a bare URL or {url, description}.
type searchImage struct {
	URL string
}

func (i *searchImage) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		i.URL = s
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil
	}
	i.URL = obj.URL
	return nil
}

// Search queries the web. opts override the configured result count.
func (c *Client) Search(ctx context.Context, query string, opts model.SearchOptions) (*model.SearchResults, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	maxResults := c.cfg.MaxResults
	if opts.MaxResults > 0 {
		maxResults = opts.MaxResults
	}
	body, err := json.Marshal(searchRequest{
		APIKey:                   c.cfg.APIKey,
		Query:                    query,
		SearchDepth:              c.cfg.Depth,
		MaxResults:               maxResults,
		IncludeImages:            opts.IncludeImages,
		IncludeImageDescriptions: opts.IncludeImages,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errx.WrapUpstream(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errx.WrapUpstream(service, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var raw searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&raw); err != nil {
		return nil, errx.WrapUpstream(service, fmt.Errorf("decode response: %w", err))
	}

	out := &model.SearchResults{Results: make([]model.SearchResult, 0, len(raw.Results))}
	for _, r := range raw.Results {
		out.Results = append(out.Results, model.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	for _, img := range raw.Images {
		if len(out.Images) == maxImages {
			break
		}
		if img.URL != "" {
			out.Images = append(out.Images, img.URL)
		}
	}

	logx.Ctx(ctx).Debug().
		Int("results", len(out.Results)).
		Int("images", len(out.Images)).
		Msg("Web search done")
	return out, nil
}
