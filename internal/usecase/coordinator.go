package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/tracer"
)

// TitlePrompt prefixes the first user prompt when asking for a title.
const TitlePrompt = "Generate a concise title (max 20 characters) for this conversation in Egyptian Arabic only:\n\n"

// DefaultTitleTimeout bounds one background title call.
const DefaultTitleTimeout = 30 * time.Second

// TitleProviderFunc picks the provider that generates a title for a
// conversation whose first turn was served by chatProvider.
type TitleProviderFunc func(chatProvider string) (domain.LLMProvider, error)

// CoordinatorDeps holds the collaborators of a ConversationCoordinator.
type CoordinatorDeps struct {
	Store         domain.ConversationStore
	TitleProvider TitleProviderFunc
	TitleTimeout  time.Duration
	Metrics       Metrics
	Logger        *slog.Logger
}

// ConversationCoordinator owns the conversation records written around a
// chat stream: ownership checks, lazy creation, the single turn write, and
// the detached title summarizer.
type ConversationCoordinator struct {
	store        domain.ConversationStore
	titleFor     TitleProviderFunc
	titleTimeout time.Duration
	metrics      Metrics
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// NewConversationCoordinator creates a coordinator.
func NewConversationCoordinator(deps CoordinatorDeps) *ConversationCoordinator {
	c := &ConversationCoordinator{
		store:        deps.Store,
		titleFor:     deps.TitleProvider,
		titleTimeout: deps.TitleTimeout,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
	if c.titleTimeout <= 0 {
		c.titleTimeout = DefaultTitleTimeout
	}
	if c.metrics == nil {
		c.metrics = NopMetrics{}
	}
	return c
}

// CheckAccess verifies that conversationID exists and belongs to ownerID.
// Both failure cases are the same not-found error.
func (c *ConversationCoordinator) CheckAccess(ctx context.Context, ownerID, conversationID string) (*domain.Conversation, error) {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewDomainError("ConversationCoordinator.CheckAccess", domain.ErrConversationAccess, conversationID)
		}
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, domain.NewDomainError("ConversationCoordinator.CheckAccess", domain.ErrConversationAccess, conversationID)
	}
	return conv, nil
}

// EnsureConversation returns existingID after an ownership check, or
// creates a conversation titled with a placeholder cut from firstPrompt.
func (c *ConversationCoordinator) EnsureConversation(ctx context.Context, ownerID, existingID, firstPrompt string) (id string, created bool, err error) {
	if existingID != "" {
		if _, err := c.CheckAccess(ctx, ownerID, existingID); err != nil {
			return "", false, err
		}
		return existingID, false, nil
	}
	conv, err := c.store.CreateConversation(ctx, ownerID, domain.PlaceholderTitle(firstPrompt))
	if err != nil {
		return "", false, domain.WrapOp("ConversationCoordinator.EnsureConversation", err)
	}
	return conv.ID, true, nil
}

// RecordTurn writes the exchange once and refreshes the conversation's recency.
func (c *ConversationCoordinator) RecordTurn(ctx context.Context, conversationID, prompt, reply string) error {
	if _, err := c.store.CreateTurn(ctx, conversationID, prompt, reply); err != nil {
		return domain.WrapOp("ConversationCoordinator.RecordTurn", err)
	}
	if err := c.store.TouchConversation(ctx, conversationID); err != nil {
		return domain.WrapOp("ConversationCoordinator.RecordTurn", err)
	}
	return nil
}

// Abandon removes a conversation created for a turn that produced nothing
// to store, so no empty conversation outlives the request.
func (c *ConversationCoordinator) Abandon(ctx context.Context, conversationID string) {
	if err := c.store.DeleteConversation(ctx, conversationID); err != nil {
		c.logger.Warn("failed to remove empty conversation", "chat_id", conversationID, "error", err)
	}
}

// MaybeSummarizeTitle replaces the placeholder title in the background. It
// never blocks and never reports failure to the caller; use Wait to drain
// pending work on shutdown.
func (c *ConversationCoordinator) MaybeSummarizeTitle(conversationID, providerName, firstPrompt string) {
	if c.titleFor == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("title summarizer panicked", "chat_id", conversationID, "panic", r)
				c.metrics.TitleSummarized(OutcomeError)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.titleTimeout)
		defer cancel()

		err := c.summarizeTitle(ctx, conversationID, providerName, firstPrompt)
		c.metrics.TitleSummarized(ClassifyOutcome(err))
		if err != nil {
			c.logger.Warn("title summarization failed, keeping placeholder",
				"chat_id", conversationID, "provider", providerName, "error", err)
		}
	}()
}

func (c *ConversationCoordinator) summarizeTitle(ctx context.Context, conversationID, providerName, firstPrompt string) (err error) {
	ctx, span := tracer.StartSpan(ctx, "coordinator.summarize_title")
	defer span.End()
	span.SetAttributes(tracer.ConversationAttr(conversationID), tracer.ProviderAttr(providerName))
	defer func() {
		if err != nil {
			tracer.RecordError(span, err)
		}
	}()

	p, err := c.titleFor(providerName)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTitleSummary, err)
	}
	resp, err := p.Chat(ctx, domain.ChatRequest{
		Messages: domain.UserMessage(TitlePrompt + firstPrompt),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTitleSummary, err)
	}
	title := CleanTitle(resp.Message.Content)
	if title == "" {
		return fmt.Errorf("%w: empty title", domain.ErrTitleSummary)
	}
	if err := c.store.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTitleSummary, err)
	}
	c.logger.Debug("conversation titled", "chat_id", conversationID, "title", title)
	return nil
}

// Wait blocks until every pending title summarizer has finished.
func (c *ConversationCoordinator) Wait() {
	c.wg.Wait()
}

const titleQuotes = `"'“”‘’«»` + "`"

// CleanTitle trims whitespace and any wrapping quote characters.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	for {
		t := strings.TrimSpace(strings.Trim(s, titleQuotes))
		if t == s {
			return t
		}
		s = t
	}
}

// HistoryLimit is how many recent turns a chat detail view carries.
const HistoryLimit = 10

// ChatDetail is a conversation with its most recent turns, oldest first.
type ChatDetail struct {
	Chat  *domain.Conversation `json:"chat"`
	Turns []domain.Turn        `json:"messages"`
}

// ListConversations returns the owner's conversations, most recent first.
func (c *ConversationCoordinator) ListConversations(ctx context.Context, ownerID string) ([]domain.ConversationSummary, error) {
	return c.store.ListConversations(ctx, ownerID)
}

// History returns one owned conversation with its last HistoryLimit turns.
func (c *ConversationCoordinator) History(ctx context.Context, ownerID, conversationID string) (*ChatDetail, error) {
	conv, err := c.CheckAccess(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	turns, err := c.store.RecentTurns(ctx, conversationID, HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &ChatDetail{Chat: conv, Turns: turns}, nil
}
