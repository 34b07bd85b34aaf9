package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairfix-assistant/server/internal/agent/graph/nodes"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

var _ nodes.Catalog = (*Client)(nil)

type fakeAPI struct {
	mu     sync.Mutex
	paths  []string
	routes map[string]string
	status map[string]int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.RequestURI())
	f.mu.Unlock()

	key := r.URL.EscapedPath()
	if code, ok := f.status[key]; ok {
		w.WriteHeader(code)
		return
	}
	body, ok := f.routes[key]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func newClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewWithHTTPClient(srv.URL+"/api/2.0/", srv.Client())
}

func TestQueryVariants(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"iPhone 13", []string{"iPhone 13"}},
		{"  iPhone   13 ", []string{"  iPhone   13 ", "iPhone 13"}},
		{"my PS5", []string{"my PS5", "PlayStation 5"}},
		{"PlayStation 5", []string{"PlayStation 5", "PS5"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := QueryVariants(tt.query)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchDevices_MergesVariants(t *testing.T) {
	api := &fakeAPI{routes: map[string]string{
		"/api/2.0/search/PS5": `{"results": [
			{"title": "PlayStation 5", "wiki_title": "PlayStation 5", "url": "/Device/PlayStation_5", "image": {"standard": "https://img/ps5.standard", "medium": "https://img/ps5.medium"}, "category": "Console"},
			{"title": "PS5 Controller", "url": "/Device/DualSense", "image": false}
		]}`,
		"/api/2.0/search/PlayStation%205": `{"results": [
			{"title": "PlayStation 5", "wiki_title": "PlayStation 5", "url": "/Device/PlayStation_5"},
			{"title": "PlayStation 5 Digital", "wiki_title": "PlayStation 5 Digital Edition"}
		]}`,
	}}
	c := newClient(t, api)

	devices, err := c.SearchDevices(context.Background(), "PS5")

	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "PlayStation 5", devices[0].CanonicalTitle)
	assert.Equal(t, "https://img/ps5.standard", devices[0].Image)
	assert.Equal(t, "Console", devices[0].Category)
	assert.Equal(t, "PS5 Controller", devices[1].CanonicalTitle, "title stands in for a missing wiki title")
	assert.Empty(t, devices[1].Image)
	assert.Equal(t, "PlayStation 5 Digital Edition", devices[2].CanonicalTitle)
	assert.Contains(t, api.paths, "/api/2.0/search/PS5?filter=device")
}

func TestSearchDevices_AllVariantsFail(t *testing.T) {
	api := &fakeAPI{status: map[string]int{"/api/2.0/search/Pixel%207": http.StatusInternalServerError}}
	c := newClient(t, api)

	_, err := c.SearchDevices(context.Background(), "Pixel 7")

	require.Error(t, err)
	assert.Equal(t, errx.KindConnectivity, errx.KindOf(err))
}

func TestDeviceGuides(t *testing.T) {
	api := &fakeAPI{routes: map[string]string{
		"/api/2.0/wikis/CATEGORY/iPhone_13": `{"guides": [
			{"guideid": 145, "title": "iPhone 13 Screen Replacement", "subject": "Screen", "difficulty": "Moderate", "time_required": "1 - 2 hours", "url": "https://www.ifixit.com/Guide/145", "image": {"standard": "https://img/145.standard"}}
		]}`,
	}}
	c := newClient(t, api)

	guides, err := c.DeviceGuides(context.Background(), "iPhone  13")

	require.NoError(t, err)
	require.Len(t, guides, 1)
	assert.Equal(t, 145, guides[0].GuideID)
	assert.Equal(t, "Screen", guides[0].Subject)
	assert.Equal(t, "1 - 2 hours", guides[0].TimeRequired)
	assert.Equal(t, "https://img/145.standard", guides[0].Image)

	none, err := c.DeviceGuides(context.Background(), "Unknown Gadget")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeviceGuides_ServerError(t *testing.T) {
	api := &fakeAPI{status: map[string]int{"/api/2.0/wikis/CATEGORY/Pixel_7": http.StatusBadGateway}}
	c := newClient(t, api)

	_, err := c.DeviceGuides(context.Background(), "Pixel 7")
	assert.ErrorContains(t, err, "status 502")
}

func TestGuideDetails_MediaShapes(t *testing.T) {
	api := &fakeAPI{routes: map[string]string{
		"/api/2.0/guides/145": `{
			"guideid": 145,
			"title": "iPhone 13 Screen Replacement",
			"introduction": "<p>html</p>",
			"introduction_raw": "Replace a cracked screen.",
			"difficulty": "Moderate",
			"time_required": "1 - 2 hours",
			"image": {"medium": "https://img/main.medium"},
			"tools": [{"text": "Heat Gun", "thumbnail": "https://img/heatgun.thumb", "url": "/Item/Heat_Gun"}, {"title": "Spudger"}],
			"parts": [{"text": "iPhone 13 Screen"}],
			"steps": [
				{"title": "Heat the screen",
				 "lines": [{"text": "<b>Use</b> a heat gun.", "text_raw": "Use a heat gun.", "level": 0, "bullet": "black"},
				           {"text": "Do not overheat.", "level": 1, "bullet": "icon_caution"}],
				 "media": {"type": "image", "data": [{"standard": "https://img/s1.standard", "thumbnail": "https://img/s1.thumb", "text": "Heating"}, {"huge": "https://img/s1b.huge"}]}},
				{"title": "Open",
				 "lines": [],
				 "media": [{"type": "video", "standard": "https://vid"}, {"type": "image", "large": "https://img/s2.large", "mini": "https://img/s2.mini"}, {"medium": "https://img/s2b.medium"}]},
				{"title": "Video step", "media": {"type": "video", "data": {"id": 1}}},
				{"title": "Bare"}
			],
			"conclusion_raw": "Reverse to reassemble.",
			"url": "https://www.ifixit.com/Guide/145"
		}`,
	}}
	c := newClient(t, api)

	g, err := c.GuideDetails(context.Background(), 145)

	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Replace a cracked screen.", g.Introduction)
	assert.Equal(t, "https://img/main.medium", g.Image)
	require.Len(t, g.Tools, 2)
	assert.Equal(t, "https://img/heatgun.thumb", g.Tools[0].Thumbnail)
	assert.Equal(t, "Spudger", g.Tools[1].Text)
	assert.Equal(t, "Reverse to reassemble.", g.Conclusion)
	require.Len(t, g.Steps, 4)

	s1 := g.Steps[0]
	require.Len(t, s1.Lines, 2)
	assert.Equal(t, "Use a heat gun.", s1.Lines[0].Text)
	assert.Equal(t, 1, s1.Lines[1].Level)
	assert.Equal(t, "icon_caution", s1.Lines[1].Bullet)
	require.Len(t, s1.Images, 2)
	assert.Equal(t, "https://img/s1.standard", s1.Images[0].URL)
	assert.Equal(t, "https://img/s1.thumb", s1.Images[0].Thumbnail)
	assert.Equal(t, "Heating", s1.Images[0].Alt)
	assert.Equal(t, "https://img/s1b.huge", s1.Images[1].URL)
	assert.Equal(t, "Step image", s1.Images[1].Alt)

	s2 := g.Steps[1]
	require.Len(t, s2.Images, 2, "non-image array entries are skipped")
	assert.Equal(t, "https://img/s2.large", s2.Images[0].URL)
	assert.Equal(t, "https://img/s2.mini", s2.Images[0].Thumbnail)
	assert.Equal(t, "https://img/s2b.medium", s2.Images[1].URL)

	assert.Empty(t, g.Steps[2].Images)
	assert.Empty(t, g.Steps[3].Images)
}

func TestGuideDetails_Missing(t *testing.T) {
	c := newClient(t, &fakeAPI{})

	g, err := c.GuideDetails(context.Background(), 404)

	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestGuideDetails_BadJSON(t *testing.T) {
	c := newClient(t, &fakeAPI{routes: map[string]string{"/api/2.0/guides/1": `{"guideid": "oops"`}})

	_, err := c.GuideDetails(context.Background(), 1)
	assert.Error(t, err)
}
