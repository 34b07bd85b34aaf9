package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

var _ nodes.WebSearch = (*Client)(nil)

func TestSearch(t *testing.T) {
	var (
		got  searchRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"results": [
				{"title": "Fix a PS5 fan", "url": "https://a.example/fan", "content": "Clean the fan.", "score": 0.91},
				{"title": "Thermal paste", "url": "https://b.example/paste", "content": "Repaste.", "score": 0.5}
			],
			"images": [
				"https://img/1.jpg",
				{"url": "https://img/2.jpg", "description": "fan"},
				{"description": "no url"},
				"https://img/3.jpg", "https://img/4.jpg", "https://img/5.jpg", "https://img/6.jpg"
			]
		}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(model.SearchConfig{APIKey: "tvly-key", BaseURL: srv.URL + "/"}, srv.Client())

	res, err := c.Search(context.Background(), "PS5 overheating repair guide tutorial with images",
		model.SearchOptions{MaxResults: 5, IncludeImages: true})

	require.NoError(t, err)
	assert.Equal(t, "Bearer tvly-key", auth)
	assert.Equal(t, searchRequest{
		APIKey:                   "tvly-key",
		Query:                    "PS5 overheating repair guide tutorial with images",
		SearchDepth:              "advanced",
		MaxResults:               5,
		IncludeImages:            true,
		IncludeImageDescriptions: true,
	}, got)

	require.Len(t, res.Results, 2)
	assert.Equal(t, model.SearchResult{Title: "Fix a PS5 fan", URL: "https://a.example/fan", Content: "Clean the fan.", Score: 0.91}, res.Results[0])
	assert.Equal(t, []string{
		"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg", "https://img/4.jpg", "https://img/5.jpg",
	}, res.Images)
}

func TestSearch_MissingKey(t *testing.T) {
	c := New(model.SearchConfig{BaseURL: "http://unused"})

	_, err := c.Search(context.Background(), "q", model.SearchOptions{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := NewWithHTTPClient(model.SearchConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())

	_, err := c.Search(context.Background(), "q", model.SearchOptions{})

	require.Error(t, err)
	assert.ErrorContains(t, err, "status 429")
	assert.Equal(t, errx.KindConnectivity, errx.KindOf(err))
}

func TestSearch_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()
	c := NewWithHTTPClient(model.SearchConfig{APIKey: "k", BaseURL: srv.URL, MaxResults: 3}, srv.Client())

	res, err := c.Search(context.Background(), "q", model.SearchOptions{})

	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Images)
}
