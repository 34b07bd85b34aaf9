// Package catalog is the iFixit API client behind the pipeline's catalog
// lookups.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

const (
	service     = "ifixit"
	maxBodySize = 8 << 20
)

// errNotFound marks a 404 from the API.
var errNotFound = errors.New("not found")

// Client talks to the iFixit 2.0 API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg model.CatalogConfig) *Client {
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})
}

func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// aliases maps a lowercase fragment to the other name the catalog files the
// device under.
var aliases = []struct{ fragment, alt string }{
	{"ps5", "PlayStation 5"},
	{"playstation 5", "PS5"},
	{"ps4", "PlayStation 4"},
	{"playstation 4", "PS4"},
}

// QueryVariants lists the searches run for one device query: the raw text,
// its whitespace-normalized form and known aliases, without repeats.
func QueryVariants(query string) []string {
	normalized := strings.Join(strings.Fields(query), " ")
	candidates := []string{query, normalized}
	lower := strings.ToLower(normalized)
	for _, a := range aliases {
		if strings.Contains(lower, a.fragment) {
			candidates = append(candidates, a.alt)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

type searchResponse struct {
	Results []struct {
		Title     string    `json:"title"`
		WikiTitle string    `json:"wiki_title"`
		URL       string    `json:"url"`
		Image     *rawImage `json:"image"`
		Category  string    `json:"category"`
	} `json:"results"`
}

// SearchDevices runs every query variant and merges the hits, first
// occurrence per canonical title winning. It fails only when every variant
// fails.
func (c *Client) SearchDevices(ctx context.Context, query string) ([]model.Device, error) {
	log := logx.Ctx(ctx)

	var (
		devices []model.Device
		lastErr error
		ok      int
	)
	seen := map[string]struct{}{}
	for _, q := range QueryVariants(query) {
		var resp searchResponse
		err := c.get(ctx, "/search/"+url.PathEscape(q)+"?filter=device", &resp)
		if err != nil {
			log.Warn().Err(err).Str("query", q).Msg("Catalog search variant failed")
			lastErr = err
			continue
		}
		ok++
		for _, r := range resp.Results {
			d := model.Device{
				Title:          r.Title,
				CanonicalTitle: firstNonEmpty(r.WikiTitle, r.Title),
				URL:            r.URL,
				Image:          r.Image.pick("standard", "medium"),
				Category:       r.Category,
			}
			if _, dup := seen[d.CanonicalTitle]; dup {
				continue
			}
			seen[d.CanonicalTitle] = struct{}{}
			devices = append(devices, d)
		}
	}
	if ok == 0 && lastErr != nil {
		return nil, lastErr
	}

	log.Debug().Str("query", query).Int("devices", len(devices)).Msg("Catalog devices found")
	if devices == nil {
		devices = []model.Device{}
	}
	return devices, nil
}

type categoryResponse struct {
	Guides []struct {
		GuideID      int       `json:"guideid"`
		Title        string    `json:"title"`
		Subject      string    `json:"subject"`
		Difficulty   string    `json:"difficulty"`
		TimeRequired string    `json:"time_required"`
		URL          string    `json:"url"`
		Image        *rawImage `json:"image"`
	} `json:"guides"`
}

// DeviceGuides lists the guides on a device's category page. A device
// without a page has no guides.
func (c *Client) DeviceGuides(ctx context.Context, deviceTitle string) ([]model.GuideSummary, error) {
	title := strings.Join(strings.Fields(deviceTitle), "_")

	var resp categoryResponse
	err := c.get(ctx, "/wikis/CATEGORY/"+url.PathEscape(title), &resp)
	if errors.Is(err, errNotFound) {
		return []model.GuideSummary{}, nil
	}
	if err != nil {
		return nil, err
	}

	guides := make([]model.GuideSummary, 0, len(resp.Guides))
	for _, g := range resp.Guides {
		guides = append(guides, model.GuideSummary{
			GuideID:      g.GuideID,
			Title:        g.Title,
			Subject:      g.Subject,
			Difficulty:   g.Difficulty,
			TimeRequired: g.TimeRequired,
			URL:          g.URL,
			Image:        g.Image.pick("standard"),
		})
	}
	return guides, nil
}

type rawItem struct {
	Text      string `json:"text"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
}

type rawLine struct {
	Text    string `json:"text"`
	TextRaw string `json:"text_raw"`
	Level   int    `json:"level"`
	Bullet  string `json:"bullet"`
}

type rawStep struct {
	Title string          `json:"title"`
	Lines []rawLine       `json:"lines"`
	Media json.RawMessage `json:"media"`
}

type guideResponse struct {
	GuideID         int       `json:"guideid"`
	Title           string    `json:"title"`
	Introduction    string    `json:"introduction"`
	IntroductionRaw string    `json:"introduction_raw"`
	Difficulty      string    `json:"difficulty"`
	TimeRequired    string    `json:"time_required"`
	Image           *rawImage `json:"image"`
	Tools           []rawItem `json:"tools"`
	Parts           []rawItem `json:"parts"`
	Steps           []rawStep `json:"steps"`
	Conclusion      string    `json:"conclusion"`
	ConclusionRaw   string    `json:"conclusion_raw"`
	URL             string    `json:"url"`
}

// GuideDetails fetches one guide; nil without error when it does not exist.
func (c *Client) GuideDetails(ctx context.Context, guideID int) (*model.Guide, error) {
	var resp guideResponse
	err := c.get(ctx, "/guides/"+strconv.Itoa(guideID), &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	g := &model.Guide{
		GuideID:      resp.GuideID,
		Title:        resp.Title,
		Introduction: firstNonEmpty(resp.IntroductionRaw, resp.Introduction),
		Difficulty:   resp.Difficulty,
		TimeRequired: resp.TimeRequired,
		Image:        resp.Image.pick("standard", "medium", "original"),
		Tools:        items(resp.Tools),
		Parts:        items(resp.Parts),
		Conclusion:   firstNonEmpty(resp.ConclusionRaw, resp.Conclusion),
		URL:          resp.URL,
	}
	for _, s := range resp.Steps {
		step := model.Step{Title: s.Title, Images: stepImages(s.Media)}
		for _, l := range s.Lines {
			step.Lines = append(step.Lines, model.StepLine{
				Text:   firstNonEmpty(l.TextRaw, l.Text),
				Level:  l.Level,
				Bullet: l.Bullet,
			})
		}
		g.Steps = append(g.Steps, step)
	}
	return g, nil
}

func items(in []rawItem) []model.GuideItem {
	out := make([]model.GuideItem, 0, len(in))
	for _, it := range in {
		out = append(out, model.GuideItem{
			Text:      firstNonEmpty(it.Text, it.Title),
			Thumbnail: it.Thumbnail,
			URL:       it.URL,
		})
	}
	return out
}

// stepImages accepts both media shapes: {"type": "image", "data": [...]}
// and a bare array of image descriptors.
func stepImages(media json.RawMessage) []model.StepImage {
	raw := strings.TrimSpace(string(media))
	if raw == "" || raw == "null" {
		return nil
	}

	var (
		images []rawImage
		keys   []string
	)
	switch raw[0] {
	case '{':
		var obj struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(media, &obj); err != nil {
			return nil
		}
		if err := json.Unmarshal(obj.Data, &images); err != nil {
			return nil
		}
		keys = []string{"standard", "large", "medium", "original", "huge"}
	case '[':
		var all []rawImage
		if err := json.Unmarshal(media, &all); err != nil {
			return nil
		}
		for _, img := range all {
			if img.Type == "" || img.Type == "image" {
				images = append(images, img)
			}
		}
		keys = []string{"standard", "large", "medium", "original"}
	default:
		return nil
	}

	out := make([]model.StepImage, 0, len(images))
	for i := range images {
		img := &images[i]
		u := img.pick(keys...)
		if u == "" {
			continue
		}
		out = append(out, model.StepImage{
			URL:       u,
			Thumbnail: img.pick("thumbnail", "mini"),
			Alt:       firstNonEmpty(img.Text, "Step image"),
		})
	}
	return out
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errx.WrapUpstream(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errx.WrapUpstream(service, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(dst); err != nil {
		return errx.WrapUpstream(service, fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
