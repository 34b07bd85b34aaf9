// Package agenttest provides in-memory collaborators for pipeline tests.
package agenttest

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

// Reply is one scripted model answer.
type Reply struct {
	Content string
	Err     error
}

// ChatModel answers Generate calls from a script and streams either fixed
// chunks or, when Echo is set, the last user message split into chunks.
type ChatModel struct {
	mu sync.Mutex

	Replies []Reply
	// Chunks is streamed when StreamErrs is exhausted.
	Chunks []string
	// StreamErrs fail successive Stream calls before chunks are served.
	StreamErrs []error
	// Echo streams the rendered user prompt back.
	Echo bool
	// Stall blocks Stream until ctx ends.
	Stall bool

	GenerateCalls int
	StreamCalls   int
	Inputs        [][]*schema.Message
}

func (m *ChatModel) Generate(ctx context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inputs = append(m.Inputs, in)
	i := m.GenerateCalls
	m.GenerateCalls++
	if i >= len(m.Replies) {
		return nil, errors.New("no scripted reply")
	}
	r := m.Replies[i]
	if r.Err != nil {
		return nil, r.Err
	}
	return schema.AssistantMessage(r.Content, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, in)
	i := m.StreamCalls
	m.StreamCalls++
	stall := m.Stall
	var err error
	if i < len(m.StreamErrs) {
		err = m.StreamErrs[i]
	}
	chunks := m.Chunks
	if m.Echo && len(in) > 0 {
		chunks = split(in[len(in)-1].Content, 64)
	}
	m.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(chunks))
	for _, c := range chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func split(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// Catalog serves fixed devices, guides and guide details.
type Catalog struct {
	mu sync.Mutex

	Devices    []model.Device
	DevicesErr error
	Guides     []model.GuideSummary
	GuidesErr  error
	Details    map[int]*model.Guide
	DetailsErr error

	SearchCalls  int
	GuidesCalls  int
	DetailsCalls int
}

func (c *Catalog) SearchDevices(ctx context.Context, query string) ([]model.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SearchCalls++
	return c.Devices, c.DevicesErr
}

func (c *Catalog) DeviceGuides(ctx context.Context, deviceTitle string) ([]model.GuideSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GuidesCalls++
	return c.Guides, c.GuidesErr
}

func (c *Catalog) GuideDetails(ctx context.Context, guideID int) (*model.Guide, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DetailsCalls++
	if c.DetailsErr != nil {
		return nil, c.DetailsErr
	}
	return c.Details[guideID], nil
}

// Search is a scripted web search.
type Search struct {
	mu sync.Mutex

	Results *model.SearchResults
	Err     error

	Queries []string
	Options []model.SearchOptions
}

func (s *Search) Search(ctx context.Context, query string, opts model.SearchOptions) (*model.SearchResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, query)
	s.Options = append(s.Options, opts)
	return s.Results, s.Err
}

// Store keeps conversations, messages and usage in memory. It satisfies the
// record store used by the pipeline and the session driver.
type Store struct {
	mu sync.Mutex

	// Err, when set, fails every call.
	Err error

	nextID        int64
	Conversations map[int64]*model.Conversation
	Messages      []model.Message
	Usage         map[string]*model.Usage
}

func NewStore() *Store {
	return &Store{
		Conversations: map[int64]*model.Conversation{},
		Usage:         map[string]*model.Usage{},
	}
}

func (s *Store) usage(userID string) *model.Usage {
	u, ok := s.Usage[userID]
	if !ok {
		u = &model.Usage{UserID: userID}
		s.Usage[userID] = u
	}
	u.LastUsed = time.Now()
	return u
}

func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextID++
	now := time.Now()
	c := &model.Conversation{ID: s.nextID, UserID: userID, Title: title, StartedAt: now, LastUpdated: now}
	s.Conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Store) TouchConversation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if c, ok := s.Conversations[id]; ok {
		c.LastUpdated = time.Now()
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID int64, role model.Role, content string, metadata map[string]any) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m := model.Message{
		ID:             int64(len(s.Messages) + 1),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}
	s.Messages = append(s.Messages, m)
	return &m, nil
}

func (s *Store) IncrementConversations(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.usage(userID).TotalConversations++
	return nil
}

func (s *Store) IncrementMessages(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.usage(userID).TotalMessages++
	return nil
}

func (s *Store) IncrementTokens(ctx context.Context, userID string, tokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.usage(userID).TotalTokens += int64(tokens)
	return nil
}

func (s *Store) FindConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.Conversations[id]
	if !ok {
		return nil, errx.WrapStore(sql.ErrNoRows)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []model.Conversation{}
	for _, c := range s.Conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.Conversations, id)
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.ConversationID != id {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []model.Message{}
	for _, m := range s.Messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InitUsage(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.usage(userID)
	return nil
}

func (s *Store) FindUsage(ctx context.Context, userID string) (*model.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.Usage[userID]
	if !ok {
		return nil, errx.WrapStore(sql.ErrNoRows)
	}
	cp := *u
	return &cp, nil
}

// MessagesByRole returns the stored messages with role r.
func (s *Store) MessagesByRole(r model.Role) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.Messages {
		if m.Role == r {
			out = append(out, m)
		}
	}
	return out
}

// NoWait is a retry wait that records delays instead of sleeping.
type NoWait struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (w *NoWait) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Delays = append(w.Delays, d)
	return ctx.Err()
}
