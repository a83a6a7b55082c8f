package domain

import (
	"context"
	"time"
)

// PlaceholderTitleLen is the rune length a first prompt is cut to when it
// becomes a conversation's provisional title.
const PlaceholderTitleLen = 50

// Conversation is a chat thread owned by one authenticated user.
// Anonymous chats are never persisted.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is one immutable prompt/reply exchange within a conversation.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chatId"`
	Prompt         string    `json:"prompt"`
	Reply          string    `json:"reply"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationSummary is the list-view projection of a conversation.
type ConversationSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ConversationStore persists conversations and their turns. Every operation
// is atomic at the row level; connectivity failures wrap ErrStore.
type ConversationStore interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error)
	// GetConversation returns an error wrapping ErrNotFound for unknown ids.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	TouchConversation(ctx context.Context, id string) error
	// DeleteConversation removes a conversation and its turns.
	DeleteConversation(ctx context.Context, id string) error
	CreateTurn(ctx context.Context, conversationID, prompt, reply string) (*Turn, error)
	// ListConversations returns the owner's conversations, most recent first.
	ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error)
	// RecentTurns returns up to limit turns in chronological order.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
}

// PlaceholderTitle derives a conversation's provisional title from its first
// prompt. The cut is rune-safe so Arabic text is never split mid-character.
func PlaceholderTitle(prompt string) string {
	r := []rune(prompt)
	if len(r) <= PlaceholderTitleLen {
		return prompt
	}
	return string(r[:PlaceholderTitleLen])
}
