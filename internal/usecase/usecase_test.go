package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"egyptoai/internal/domain"
)

// --- Mocks ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLLM is a chat-only provider.
type mockLLM struct {
	name  string
	reply string
	err   error
	// block makes Chat wait for ctx cancellation or release.
	block   bool
	release chan struct{}

	mu    sync.Mutex
	calls []domain.ChatRequest
}

func (m *mockLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.release:
			return nil, errors.New("released")
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: m.reply}}, nil
}

func (m *mockLLM) Name() string { return m.name }

func (m *mockLLM) Calls() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// mockStreamingLLM replays a fixed delta sequence.
type mockStreamingLLM struct {
	mockLLM
	deltas   []domain.StreamDelta
	startErr error
	// gate, when set, is waited on before each delta is sent.
	gate chan struct{}
}

func (m *mockStreamingLLM) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	ch := make(chan domain.StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range m.deltas {
			if m.gate != nil {
				<-m.gate
			}
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func deltas(parts ...string) []domain.StreamDelta {
	out := make([]domain.StreamDelta, 0, len(parts)+1)
	for _, p := range parts {
		out = append(out, domain.StreamDelta{Content: p})
	}
	return append(out, domain.StreamDelta{Done: true})
}

// mockRegistry resolves providers from a map.
type mockRegistry map[string]domain.LLMProvider

func (r mockRegistry) Get(name string) (domain.LLMProvider, error) {
	p, ok := r[name]
	if !ok {
		return nil, domain.NewDomainError("mockRegistry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// memConversationStore is an in-memory domain.ConversationStore.
type memConversationStore struct {
	mu     sync.Mutex
	convs  map[string]*domain.Conversation
	turns  []domain.Turn
	seq    int
	events []string

	failCreateTurn error
	failCreateConv error
	titleUpdated   chan string
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{
		convs:        make(map[string]*domain.Conversation),
		titleUpdated: make(chan string, 8),
	}
}

func (s *memConversationStore) log(ev string) { s.events = append(s.events, ev) }

func (s *memConversationStore) CreateConversation(_ context.Context, ownerID, title string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateConv != nil {
		return nil, s.failCreateConv
	}
	s.seq++
	now := time.Now()
	c := &domain.Conversation{ID: fmt.Sprintf("c%d", s.seq), OwnerID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}
	s.convs[c.ID] = c
	s.log("create:" + c.ID)
	return new(*c), nil
}

func (s *memConversationStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("get: %w", domain.ErrNotFound)
	}
	return new(*c), nil
}

func (s *memConversationStore) UpdateConversationTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	c, ok := s.convs[id]
	if ok {
		c.Title = title
		s.log("title:" + id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("update: %w", domain.ErrNotFound)
	}
	s.titleUpdated <- title
	return nil
}

func (s *memConversationStore) TouchConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("touch: %w", domain.ErrNotFound)
	}
	c.UpdatedAt = time.Now()
	s.log("touch:" + id)
	return nil
}

func (s *memConversationStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return fmt.Errorf("delete: %w", domain.ErrNotFound)
	}
	delete(s.convs, id)
	s.log("delete:" + id)
	return nil
}

func (s *memConversationStore) CreateTurn(_ context.Context, convID, prompt, reply string) (*domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateTurn != nil {
		return nil, s.failCreateTurn
	}
	s.seq++
	t := domain.Turn{ID: fmt.Sprintf("t%d", s.seq), ConversationID: convID, Prompt: prompt, Reply: reply, CreatedAt: time.Now()}
	s.turns = append(s.turns, t)
	s.log("turn:" + convID)
	return &t, nil
}

func (s *memConversationStore) ListConversations(_ context.Context, ownerID string) ([]domain.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ConversationSummary
	for _, c := range s.convs {
		if c.OwnerID == ownerID {
			out = append(out, domain.ConversationSummary{ID: c.ID, Title: c.Title})
		}
	}
	return out, nil
}

func (s *memConversationStore) RecentTurns(_ context.Context, convID string, limit int) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Turn
	for _, t := range s.turns {
		if t.ConversationID == convID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memConversationStore) Convs() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, *c)
	}
	return out
}

func (s *memConversationStore) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.turns)
}

func (s *memConversationStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// recordingTransport is an in-memory Transport.
type recordingTransport struct {
	mu      sync.Mutex
	opened  bool
	closed  bool
	sent    []string
	ended   bool
	errStat int
	errMsg  string
	inBand  bool
	// failAfter makes Send fail once this many deltas were accepted.
	failAfter int
}

var errTransportClosed = errors.New("transport closed")

func (t *recordingTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.opened = true
	return nil
}

func (t *recordingTransport) Opened() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

func (t *recordingTransport) Send(delta string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	if t.failAfter > 0 && len(t.sent) >= t.failAfter {
		t.closed = true
		return errors.New("write: broken pipe")
	}
	t.sent = append(t.sent, delta)
	return nil
}

func (t *recordingTransport) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.closed = true
	t.ended = true
	return nil
}

func (t *recordingTransport) SendError(status int, message, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.closed = true
	t.errStat = status
	t.errMsg = message
	t.inBand = t.opened
	return nil
}

func (t *recordingTransport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sent)
}

// countingMetrics records observations.
type countingMetrics struct {
	mu      sync.Mutex
	streams map[string]int
	deltas  int
	titles  map[Outcome]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{streams: map[string]int{}, titles: map[Outcome]int{}}
}

func (m *countingMetrics) StreamFinished(provider string, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[provider+"/"+string(outcome)]++
}

func (m *countingMetrics) DeltaForwarded(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas++
}

func (m *countingMetrics) TitleSummarized(o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles[o]++
}
