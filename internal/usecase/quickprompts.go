package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"egyptoai/internal/domain"
)

// QuickPromptCount is how many suggestions one refresh asks for.
const QuickPromptCount = 8

const quickPromptRequest = `Generate %d short travel questions about Egypt that a tourist might ask.
Each line must be in the form: [emoji] [max 3 words]
Reply with the lines only, no numbering and no extra text.`

// QuickPromptRefresher regenerates the home-screen suggestions with an LLM.
type QuickPromptRefresher struct {
	store    domain.ReferenceStore
	broker   *StreamBroker
	provider string
	logger   *slog.Logger
}

// NewQuickPromptRefresher creates a refresher that asks provider for prompts.
func NewQuickPromptRefresher(store domain.ReferenceStore, broker *StreamBroker, provider string, logger *slog.Logger) *QuickPromptRefresher {
	return &QuickPromptRefresher{store: store, broker: broker, provider: provider, logger: logger}
}

// List returns the current suggestions, newest first.
func (r *QuickPromptRefresher) List(ctx context.Context) ([]domain.QuickPrompt, error) {
	return r.store.ListQuickPrompts(ctx)
}

// Refresh asks the provider for a new set and swaps it in. A reply that
// parses to nothing leaves the old set untouched.
func (r *QuickPromptRefresher) Refresh(ctx context.Context) error {
	p, err := r.broker.Resolve(r.provider)
	if err != nil {
		return err
	}
	resp, err := p.Chat(ctx, domain.ChatRequest{
		Messages: domain.UserMessage(fmt.Sprintf(quickPromptRequest, QuickPromptCount)),
	})
	if err != nil {
		return fmt.Errorf("generate quick prompts: %w", err)
	}

	prompts := ParseQuickPrompts(resp.Message.Content)
	if len(prompts) == 0 {
		r.logger.Warn("quick prompt reply had no usable lines, keeping current set", "provider", r.provider)
		return nil
	}
	if len(prompts) > QuickPromptCount {
		prompts = prompts[:QuickPromptCount]
	}
	if err := r.store.ReplaceQuickPrompts(ctx, prompts); err != nil {
		return err
	}
	r.logger.Info("quick prompts refreshed", "count", len(prompts), "provider", r.provider)
	return nil
}

// ParseQuickPrompts extracts "[emoji] [text]" lines. List markers and
// numbering are stripped; lines that do not start with a symbol are skipped.
func ParseQuickPrompts(reply string) []domain.QuickPrompt {
	var out []domain.QuickPrompt
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeftFunc(line, func(r rune) bool {
			return r == '-' || r == '*' || r == '.' || r == ')' || unicode.IsDigit(r) || unicode.IsSpace(r)
		})
		if line == "" {
			continue
		}
		emoji, text, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		text = strings.Trim(strings.TrimSpace(text), `"`)
		if text == "" || !isEmoji(emoji) {
			continue
		}
		out = append(out, domain.QuickPrompt{Emoji: emoji, Text: text})
	}
	return out
}

func isEmoji(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsPunct(r) && r > unicode.MaxASCII
}
