package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"egyptoai/internal/domain"
)

type chatFixture struct {
	svc     *ChatService
	store   *memConversationStore
	coord   *ConversationCoordinator
	metrics *countingMetrics
}

func newChatFixture(t *testing.T, title domain.LLMProvider, providers ...domain.LLMProvider) *chatFixture {
	t.Helper()
	store := newMemConversationStore()
	reg := mockRegistry{}
	for _, p := range providers {
		reg[p.Name()] = p
	}
	m := newCountingMetrics()
	coord, _ := newTestCoordinator(store, title)
	coord.metrics = m
	broker := NewStreamBroker(reg, m, newTestLogger())
	svc := NewChatService(ChatServiceDeps{
		Broker:      broker,
		Coordinator: coord,
		Metrics:     m,
		Logger:      newTestLogger(),
	})
	t.Cleanup(coord.Wait)
	return &chatFixture{svc: svc, store: store, coord: coord, metrics: m}
}

func geminiStream(parts ...string) *mockStreamingLLM {
	return &mockStreamingLLM{mockLLM: mockLLM{name: "gemini"}, deltas: deltas(parts...)}
}

func TestStreamAnonymous(t *testing.T) {
	f := newChatFixture(t, nil, geminiStream("The pyramids ", "are in ", "Giza."))
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "Where are the pyramids?", Provider: "gemini"}, tr)
	require.NoError(t, err)

	assert.True(t, tr.opened)
	assert.True(t, tr.ended)
	assert.Equal(t, "The pyramids are in Giza.", strings.Join(tr.Sent(), ""))
	assert.Empty(t, f.store.Events(), "anonymous chats are never persisted")
	assert.Equal(t, 1, f.metrics.streams["gemini/ok"])
}

func TestStreamValidationNeverOpens(t *testing.T) {
	llm := geminiStream("x")
	f := newChatFixture(t, nil, llm)
	owned, _ := f.store.CreateConversation(context.Background(), "owner", "t")

	tests := []struct {
		name       string
		req        StreamRequest
		wantStatus int
		wantMsg    string
	}{
		{"empty prompt", StreamRequest{Prompt: "  ", Provider: "gemini"}, http.StatusBadRequest, MsgPromptRequired},
		{"unknown model", StreamRequest{Prompt: "hi", Provider: "gpt-4"}, http.StatusBadRequest, MsgInvalidProvider},
		{"unconfigured model", StreamRequest{Prompt: "hi", Provider: "deepseek"}, http.StatusBadRequest, MsgInvalidProvider},
		{"foreign chat", StreamRequest{Prompt: "hi", Provider: "gemini", ChatID: owned.ID, UserID: "intruder"}, http.StatusNotFound, MsgChatNotFound},
		{"anonymous with chat id", StreamRequest{Prompt: "hi", Provider: "gemini", ChatID: owned.ID}, http.StatusNotFound, MsgChatNotFound},
		{"missing chat", StreamRequest{Prompt: "hi", Provider: "gemini", ChatID: "nope", UserID: "owner"}, http.StatusNotFound, MsgChatNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransport{}
			err := f.svc.Stream(context.Background(), tt.req, tr)
			require.Error(t, err)
			assert.False(t, tr.opened)
			assert.Equal(t, tt.wantStatus, tr.errStat)
			assert.Equal(t, tt.wantMsg, tr.errMsg)
			assert.False(t, tr.inBand)
		})
	}
	assert.Empty(t, llm.Calls(), "no provider I/O on validation failure")
	assert.Len(t, f.store.Turns(), 0)
}

func TestStreamAuthenticatedNewConversation(t *testing.T) {
	title := &mockLLM{name: "title", reply: `"الأهرامات"`}
	f := newChatFixture(t, title, geminiStream("They are ", "in Giza."))
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "Where are the pyramids?", Provider: "gemini", UserID: "u1"}, tr)
	require.NoError(t, err)
	assert.True(t, tr.ended)

	convs := f.store.Convs()
	require.Len(t, convs, 1)
	assert.Equal(t, "u1", convs[0].OwnerID)

	turns := f.store.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, convs[0].ID, turns[0].ConversationID)
	assert.Equal(t, "Where are the pyramids?", turns[0].Prompt)
	assert.Equal(t, "They are in Giza.", turns[0].Reply)

	f.coord.Wait()
	got, _ := f.store.GetConversation(context.Background(), convs[0].ID)
	assert.Equal(t, "الأهرامات", got.Title)
}

func TestStreamPlaceholderTitleBeforeSummary(t *testing.T) {
	title := &mockLLM{name: "title", block: true}
	f := newChatFixture(t, title, geminiStream("ok"))
	f.coord.titleTimeout = 100 * time.Millisecond

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "Where are the pyramids?", Provider: "gemini", UserID: "u1"}, &recordingTransport{})
	require.NoError(t, err)

	convs := f.store.Convs()
	require.Len(t, convs, 1)
	assert.Equal(t, "Where are the pyramids?", convs[0].Title)
}

func TestStreamContinuingConversationSkipsTitle(t *testing.T) {
	title := &mockLLM{name: "title", reply: "new"}
	f := newChatFixture(t, title, geminiStream("reply"))
	conv, _ := f.store.CreateConversation(context.Background(), "u1", "existing")

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "more", Provider: "gemini", UserID: "u1", ChatID: conv.ID}, &recordingTransport{})
	require.NoError(t, err)
	f.coord.Wait()

	assert.Empty(t, title.Calls())
	assert.Len(t, f.store.Convs(), 1)
	assert.Len(t, f.store.Turns(), 1)
}

func TestStreamTitleNeverBlocksDone(t *testing.T) {
	title := &mockLLM{name: "title", block: true, release: make(chan struct{})}
	f := newChatFixture(t, title, geminiStream("a", "b"))
	f.coord.titleTimeout = time.Hour
	// Runs before the fixture's Wait so the detached call can finish.
	t.Cleanup(func() { close(title.release) })
	tr := &recordingTransport{}

	done := make(chan error, 1)
	go func() {
		done <- f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "gemini", UserID: "u1"}, tr)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete while title call was pending")
	}
	assert.True(t, tr.ended)
}

func TestStreamMidStreamFailurePersistsPartial(t *testing.T) {
	llm := &mockStreamingLLM{
		mockLLM: mockLLM{name: "deepseek"},
		deltas: []domain.StreamDelta{
			{Content: "partial "},
			{Content: "answer"},
			{Done: true, Err: fmt.Errorf("%w: stream read: unexpected EOF", domain.ErrProviderError)},
		},
	}
	f := newChatFixture(t, nil, llm)
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "deepseek", UserID: "u1"}, tr)
	require.ErrorIs(t, err, domain.ErrProviderError)

	assert.True(t, tr.inBand, "error after open is an in-band frame")
	assert.Equal(t, MsgProviderFailed, tr.errMsg)
	assert.False(t, tr.ended)

	turns := f.store.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "partial answer", turns[0].Reply)
}

func TestStreamStartFailureRemovesEmptyConversation(t *testing.T) {
	llm := &mockStreamingLLM{
		mockLLM:  mockLLM{name: "gemini"},
		startErr: fmt.Errorf("%w: %w: status 503", domain.ErrProviderError, domain.ErrUpstream),
	}
	f := newChatFixture(t, nil, llm)
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "gemini", UserID: "u1"}, tr)
	require.ErrorIs(t, err, domain.ErrUpstream)
	assert.True(t, tr.inBand)
	assert.Empty(t, f.store.Convs(), "no conversation without its first exchange")
	assert.Empty(t, f.store.Turns())
	assert.Equal(t, 1, f.metrics.streams["gemini/upstream"])
}

func TestStreamClientGoneStillPersists(t *testing.T) {
	f := newChatFixture(t, nil, geminiStream("a", "b", "c"))
	tr := &recordingTransport{failAfter: 1}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "gemini", UserID: "u1"}, tr)
	require.ErrorIs(t, err, domain.ErrClientGone)

	assert.Equal(t, []string{"a"}, tr.Sent())
	turns := f.store.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "abc", turns[0].Reply)
}

func TestStreamSurvivesRequestCancellation(t *testing.T) {
	gate := make(chan struct{})
	llm := &mockStreamingLLM{mockLLM: mockLLM{name: "gemini"}, deltas: deltas("a", "b"), gate: gate}
	f := newChatFixture(t, nil, llm)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		gate <- struct{}{}
		cancel()
		close(gate)
	}()

	err := f.svc.Stream(ctx, StreamRequest{Prompt: "hi", Provider: "gemini", UserID: "u1"}, &recordingTransport{})
	require.NoError(t, err)

	turns := f.store.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "ab", turns[0].Reply)
}

func TestStreamStoreFailureDoesNotAbort(t *testing.T) {
	f := newChatFixture(t, nil, geminiStream("still ", "delivered"))
	f.store.failCreateTurn = fmt.Errorf("%w: disk I/O error", domain.ErrStore)
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "gemini", UserID: "u1"}, tr)
	require.NoError(t, err)
	assert.True(t, tr.ended)
	assert.Equal(t, "still delivered", strings.Join(tr.Sent(), ""))
}

func TestStreamBootstrapFailureStillStreams(t *testing.T) {
	f := newChatFixture(t, nil, geminiStream("hello"))
	f.store.failCreateConv = fmt.Errorf("%w: database is locked", domain.ErrStore)
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "gemini", UserID: "u1"}, tr)
	require.NoError(t, err)
	assert.True(t, tr.ended)
	assert.Equal(t, []string{"hello"}, tr.Sent())
	assert.Empty(t, f.store.Turns())
}

func TestStreamChatOnlyProvider(t *testing.T) {
	f := newChatFixture(t, nil, &mockLLM{name: "groq", reply: "whole reply"})
	tr := &recordingTransport{}

	err := f.svc.Stream(context.Background(), StreamRequest{Prompt: "hi", Provider: "groq"}, tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"whole reply"}, tr.Sent())
	assert.True(t, tr.ended)
}

func TestComplete(t *testing.T) {
	title := &mockLLM{name: "title", reply: "عنوان"}
	f := newChatFixture(t, title, &mockLLM{name: "deepseek", reply: "Luxor is lovely"})

	res, err := f.svc.Complete(context.Background(), CompleteRequest{Prompt: "Luxor?", Provider: "deepseek", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Luxor is lovely", res.Reply)
	assert.NotEmpty(t, res.ChatID)

	turns := f.store.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, res.ChatID, turns[0].ConversationID)

	f.coord.Wait()
	got, _ := f.store.GetConversation(context.Background(), res.ChatID)
	assert.Equal(t, "عنوان", got.Title)
}

func TestCompleteRequiresAuth(t *testing.T) {
	f := newChatFixture(t, nil, &mockLLM{name: "deepseek", reply: "x"})

	_, err := f.svc.Complete(context.Background(), CompleteRequest{Prompt: "hi", Provider: "deepseek"})
	require.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Equal(t, http.StatusUnauthorized, StatusFor(err))
}

func TestCompleteProviderError(t *testing.T) {
	f := newChatFixture(t, nil, &mockLLM{name: "deepseek", err: fmt.Errorf("%w: %w", domain.ErrProviderError, domain.ErrAuthInvalid)})

	_, err := f.svc.Complete(context.Background(), CompleteRequest{Prompt: "hi", Provider: "deepseek", UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err), "upstream auth failure is not the caller's 401")
	assert.Equal(t, MsgProviderFailed, PublicMessage(err))

	convs, err := f.store.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, convs, "a failed reply must not leave a conversation behind")
	assert.Empty(t, f.store.Turns())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyPrompt, http.StatusBadRequest},
		{domain.NewDomainError("op", domain.ErrInvalidProvider, "x"), http.StatusBadRequest},
		{domain.ErrConversationAccess, http.StatusNotFound},
		{domain.ErrEmailTaken, http.StatusBadRequest},
		{domain.ErrTokenExpired, http.StatusUnauthorized},
		{domain.ErrOTPExpired, http.StatusBadRequest},
		{domain.ErrOTPAttempts, http.StatusTooManyRequests},
		{domain.ErrCountryNotFound, http.StatusNotFound},
		{domain.NewDomainError("op", domain.ErrCountryCodeTaken, "EG"), http.StatusConflict},
		{domain.ErrStore, http.StatusInternalServerError},
		{domain.ErrTranscription, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "StatusFor(%v)", tt.err)
	}
}
