package domain

import (
	"context"
	"time"
)

// QuickPrompt is a suggested conversation starter shown on the home screen.
type QuickPrompt struct {
	ID        string    `json:"-"`
	Emoji     string    `json:"emoji"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Country is a destination entry in the reference catalogue.
type Country struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	FlagURL   string    `json:"flagUrl"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Limit  int
}

// Pagination describes the position of a page within a result set.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes page metadata for total items.
func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Total: total, Page: p.Number, Limit: p.Limit, TotalPages: pages}
}

// ReferenceStore serves the static catalogue data.
type ReferenceStore interface {
	ListQuickPrompts(ctx context.Context) ([]QuickPrompt, error)
	// ReplaceQuickPrompts swaps the whole prompt set in one transaction.
	ReplaceQuickPrompts(ctx context.Context, prompts []QuickPrompt) error
	// ListCountries returns one page sorted by name, plus the total count.
	ListCountries(ctx context.Context, p Page) ([]Country, int, error)
	// GetCountry returns ErrCountryNotFound for an unknown id.
	GetCountry(ctx context.Context, id string) (*Country, error)
	// CreateCountry assigns ID and timestamps. A taken code is ErrCountryCodeTaken.
	CreateCountry(ctx context.Context, c *Country) error
	// UpdateCountry overwrites every field of c.ID and bumps UpdatedAt.
	UpdateCountry(ctx context.Context, c *Country) error
	DeleteCountry(ctx context.Context, id string) error
}
