package usecase

import (
	"cmp"
	"context"
	"math/rand/v2"
	"strings"

	"egyptoai/internal/domain"
)

// Country listing limits.
const (
	DefaultCountryLimit = 10
	MaxCountryLimit     = 100
)

var facts = []string{
	"The Great Pyramid of Giza is the only one of the Seven Wonders of the Ancient World still standing!",
	"Egyptians were the first to invent written language using hieroglyphics.",
	"Egypt is home to the longest river in the world – the Nile.",
}

// CountryPage is one page of the country catalogue.
type CountryPage struct {
	Countries  []domain.Country  `json:"countries"`
	Pagination domain.Pagination `json:"pagination"`
}

// ReferenceService serves the static catalogue data.
type ReferenceService struct {
	store domain.ReferenceStore
}

// NewReferenceService creates a reference service.
func NewReferenceService(store domain.ReferenceStore) *ReferenceService {
	return &ReferenceService{store: store}
}

// Countries returns one page sorted by name. Out-of-range page and limit
// values are clamped to the defaults.
func (s *ReferenceService) Countries(ctx context.Context, page, limit int) (*CountryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultCountryLimit
	}
	limit = min(limit, MaxCountryLimit)

	p := domain.Page{Number: page, Limit: limit}
	countries, total, err := s.store.ListCountries(ctx, p)
	if err != nil {
		return nil, err
	}
	return &CountryPage{Countries: countries, Pagination: domain.NewPagination(p, total)}, nil
}

// CountryInput carries the writable country fields. On update an empty
// field keeps the stored value.
type CountryInput struct {
	Code     string
	Name     string
	FlagURL  string
	Language string
}

func (in CountryInput) trimmed() CountryInput {
	return CountryInput{
		Code:     strings.TrimSpace(in.Code),
		Name:     strings.TrimSpace(in.Name),
		FlagURL:  strings.TrimSpace(in.FlagURL),
		Language: strings.TrimSpace(in.Language),
	}
}

// Country returns one catalogue entry.
func (s *ReferenceService) Country(ctx context.Context, id string) (*domain.Country, error) {
	return s.store.GetCountry(ctx, id)
}

// CreateCountry adds an entry. Every field is required.
func (s *ReferenceService) CreateCountry(ctx context.Context, in CountryInput) (*domain.Country, error) {
	in = in.trimmed()
	if in.Code == "" || in.Name == "" || in.FlagURL == "" || in.Language == "" {
		return nil, domain.NewDomainError("ReferenceService.CreateCountry", domain.ErrInvalidInput,
			"code, name, flagUrl and language are required")
	}
	c := &domain.Country{Code: in.Code, Name: in.Name, FlagURL: in.FlagURL, Language: in.Language}
	if err := s.store.CreateCountry(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCountry applies the non-empty fields of in to the entry id.
func (s *ReferenceService) UpdateCountry(ctx context.Context, id string, in CountryInput) (*domain.Country, error) {
	c, err := s.store.GetCountry(ctx, id)
	if err != nil {
		return nil, err
	}
	in = in.trimmed()
	c.Code = cmp.Or(in.Code, c.Code)
	c.Name = cmp.Or(in.Name, c.Name)
	c.FlagURL = cmp.Or(in.FlagURL, c.FlagURL)
	c.Language = cmp.Or(in.Language, c.Language)
	if err := s.store.UpdateCountry(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCountry removes the entry id.
func (s *ReferenceService) DeleteCountry(ctx context.Context, id string) error {
	return s.store.DeleteCountry(ctx, id)
}

// RandomFact returns one Egypt fact.
func (s *ReferenceService) RandomFact() string {
	return facts[rand.IntN(len(facts))]
}
