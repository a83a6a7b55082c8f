package domain

import (
	"context"
	"time"
)

// User is a registered account.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PhotoURL      string    `json:"photoUrl,omitempty"`
	PasswordHash  string    `json:"-"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Profile is a user together with aggregate counts for the profile screen.
type Profile struct {
	User
	ChatCount int `json:"chatCount"`
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	// GetUserByEmail returns ErrUserNotFound for unknown addresses.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
	UpdateProfile(ctx context.Context, id, name, photoURL string) error
	MarkEmailVerified(ctx context.Context, email string) error
}
