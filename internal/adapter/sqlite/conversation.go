package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"egyptoai/internal/domain"
)

// ConversationStore implements domain.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore returns a store backed by d.
func NewConversationStore(d *DB) *ConversationStore {
	return &ConversationStore{db: d.db}
}

var _ domain.ConversationStore = (*ConversationStore)(nil)

func (s *ConversationStore) CreateConversation(ctx context.Context, ownerID, title string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        newID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, owner_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		c.ID, c.OwnerID, c.Title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, storeErr("create conversation", err)
	}
	return c, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, title, created_at, updated_at FROM conversations WHERE id = ?", id,
	)
	var c domain.Conversation
	var created, updated string
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewDomainError("ConversationStore.Get", domain.ErrConversationAccess, id)
		}
		return nil, storeErr("get conversation", err)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// UpdateConversationTitle leaves updated_at alone so that a background
// title never reorders the recency list.
func (s *ConversationStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, "update title", "UPDATE conversations SET title = ? WHERE id = ?", title, id)
}

func (s *ConversationStore) TouchConversation(ctx context.Context, id string) error {
	return s.update(ctx, "touch conversation",
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		formatTime(time.Now()), id,
	)
}

func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	return s.update(ctx, "delete conversation", "DELETE FROM conversations WHERE id = ?", id)
}

func (s *ConversationStore) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrConversationAccess)
	}
	return nil
}

func (s *ConversationStore) CreateTurn(ctx context.Context, conversationID, prompt, reply string) (*domain.Turn, error) {
	now := time.Now().UTC()
	t := &domain.Turn{
		ID:             newID(),
		ConversationID: conversationID,
		Prompt:         prompt,
		Reply:          reply,
		CreatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO turns (id, conversation_id, prompt, reply, created_at) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.ConversationID, t.Prompt, t.Reply, formatTime(now),
	)
	if err != nil {
		return nil, storeErr("create turn", err)
	}
	return t, nil
}

func (s *ConversationStore) ListConversations(ctx context.Context, ownerID string) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title FROM conversations WHERE owner_id = ? ORDER BY updated_at DESC, id DESC", ownerID,
	)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	out := []domain.ConversationSummary{}
	for rows.Next() {
		var c domain.ConversationSummary
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, storeErr("scan conversation", err)
		}
		out = append(out, c)
	}
	return out, storeErr("list conversations", rows.Err())
}

func (s *ConversationStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, prompt, reply, created_at FROM turns
		 WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, storeErr("recent turns", err)
	}
	defer rows.Close()

	out := []domain.Turn{}
	for rows.Next() {
		var t domain.Turn
		var created string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Prompt, &t.Reply, &created); err != nil {
			return nil, storeErr("scan turn", err)
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("recent turns", err)
	}
	slices.Reverse(out)
	return out, nil
}
