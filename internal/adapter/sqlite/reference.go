package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"egyptoai/internal/domain"
)

// ReferenceStore implements domain.ReferenceStore.
type ReferenceStore struct {
	db *sql.DB
}

// NewReferenceStore returns a store backed by d.
func NewReferenceStore(d *DB) *ReferenceStore {
	return &ReferenceStore{db: d.db}
}

var _ domain.ReferenceStore = (*ReferenceStore)(nil)

// ListQuickPrompts returns the current prompt set, newest first.
func (s *ReferenceStore) ListQuickPrompts(ctx context.Context) ([]domain.QuickPrompt, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, emoji, text, created_at FROM quick_prompts ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, storeErr("list quick prompts", err)
	}
	defer rows.Close()

	out := []domain.QuickPrompt{}
	for rows.Next() {
		var p domain.QuickPrompt
		var created string
		if err := rows.Scan(&p.ID, &p.Emoji, &p.Text, &created); err != nil {
			return nil, storeErr("scan quick prompt", err)
		}
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, storeErr("list quick prompts", rows.Err())
}

func (s *ReferenceStore) ReplaceQuickPrompts(ctx context.Context, prompts []domain.QuickPrompt) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM quick_prompts"); err != nil {
		return storeErr("clear quick prompts", err)
	}
	now := time.Now().UTC()
	for i, p := range prompts {
		// Later entries get earlier stamps so list order matches input order.
		created := now.Add(-time.Duration(i) * time.Microsecond)
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO quick_prompts (id, emoji, text, created_at) VALUES (?, ?, ?, ?)",
			newID(), p.Emoji, p.Text, formatTime(created),
		); err != nil {
			return storeErr(fmt.Sprintf("insert quick prompt %d", i), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (s *ReferenceStore) ListCountries(ctx context.Context, p domain.Page) ([]domain.Country, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM countries").Scan(&total); err != nil {
		return nil, 0, storeErr("count countries", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+countryColumns+" FROM countries ORDER BY name COLLATE NOCASE LIMIT ? OFFSET ?",
		p.Limit, (p.Number-1)*p.Limit,
	)
	if err != nil {
		return nil, 0, storeErr("list countries", err)
	}
	defer rows.Close()

	out := []domain.Country{}
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr("list countries", err)
	}
	return out, total, nil
}

const countryColumns = "id, code, name, flag_url, language, created_at, updated_at"

func (s *ReferenceStore) GetCountry(ctx context.Context, id string) (*domain.Country, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+countryColumns+" FROM countries WHERE id = ?", id)
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("ReferenceStore.GetCountry", domain.ErrCountryNotFound, id)
	}
	return c, err
}

func (s *ReferenceStore) CreateCountry(ctx context.Context, c *domain.Country) error {
	now := time.Now().UTC()
	c.ID = newID()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO countries ("+countryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Code, c.Name, c.FlagURL, c.Language, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("ReferenceStore.CreateCountry", domain.ErrCountryCodeTaken, c.Code)
		}
		return storeErr("create country", err)
	}
	return nil
}

func (s *ReferenceStore) UpdateCountry(ctx context.Context, c *domain.Country) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE countries SET code = ?, name = ?, flag_url = ?, language = ?, updated_at = ? WHERE id = ?",
		c.Code, c.Name, c.FlagURL, c.Language, formatTime(now), c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("ReferenceStore.UpdateCountry", domain.ErrCountryCodeTaken, c.Code)
		}
		return storeErr("update country", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("ReferenceStore.UpdateCountry", domain.ErrCountryNotFound, c.ID)
	}
	c.UpdatedAt = now
	return nil
}

func (s *ReferenceStore) DeleteCountry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM countries WHERE id = ?", id)
	if err != nil {
		return storeErr("delete country", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("ReferenceStore.DeleteCountry", domain.ErrCountryNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCountry returns sql.ErrNoRows unwrapped so callers can map it.
func scanCountry(row rowScanner) (*domain.Country, error) {
	var c domain.Country
	var created, updated string
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.FlagURL, &c.Language, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("scan country", err)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}
