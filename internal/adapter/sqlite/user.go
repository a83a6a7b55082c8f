package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"egyptoai/internal/domain"
)

// UserStore implements domain.UserStore.
type UserStore struct {
	db *sql.DB
}

// NewUserStore returns a store backed by d.
func NewUserStore(d *DB) *UserStore {
	return &UserStore{db: d.db}
}

var _ domain.UserStore = (*UserStore)(nil)

func (s *UserStore) CreateUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, photo_url, password_hash, email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PhotoURL, u.PasswordHash, u.EmailVerified, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("UserStore.Create", domain.ErrEmailTaken, u.Email)
		}
		return storeErr("create user", err)
	}
	return nil
}

const userColumns = "id, email, name, photo_url, password_hash, email_verified, created_at, updated_at"

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	p := &domain.Profile{User: *u}
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE owner_id = ?", id,
	).Scan(&p.ChatCount)
	if err != nil {
		return nil, storeErr("count conversations", err)
	}
	return p, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id, name, photoURL string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET name = ?, photo_url = ?, updated_at = ? WHERE id = ?",
		name, photoURL, formatTime(time.Now()), id,
	)
	if err != nil {
		return storeErr("update profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("UserStore.UpdateProfile", domain.ErrUserNotFound, id)
	}
	return nil
}

func (s *UserStore) MarkEmailVerified(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET email_verified = 1, updated_at = ? WHERE email = ?",
		formatTime(time.Now()), email,
	)
	if err != nil {
		return storeErr("mark verified", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("UserStore.MarkEmailVerified", domain.ErrUserNotFound, email)
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var created, updated string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PhotoURL, &u.PasswordHash, &u.EmailVerified, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get user: %w", domain.ErrUserNotFound)
		}
		return nil, storeErr("get user", err)
	}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
