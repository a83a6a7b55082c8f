package domain

import (
	"context"
	"time"
)

// OTPPurpose tags what a one-time passcode was issued for.
type OTPPurpose string

const (
	OTPPurposeSignup        OTPPurpose = "signup"
	OTPPurposeVerification  OTPPurpose = "verification"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeSignup, OTPPurposeVerification, OTPPurposePasswordReset:
		return true
	}
	return false
}

// OTPData is the record kept in the expiring store under otp:<email>.
// OTP holds a bcrypt hash, never the plain code. Attempts counts wrong codes.
type OTPData struct {
	OTP               string     `json:"otp"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	Verified          bool       `json:"verified"`
	Purpose           OTPPurpose `json:"purpose,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	VerifiedAt        *time.Time `json:"verifiedAt,omitempty"`
	VerificationToken string     `json:"verificationToken,omitempty"`
	Attempts          int        `json:"attempts,omitempty"`
}

// OTPStore is an expiring key-value store for passcodes.
type OTPStore interface {
	// Put stores data with a TTL derived from data.ExpiresAt.
	Put(ctx context.Context, email string, data OTPData) error
	// Get returns ErrOTPExpired when no live record exists.
	Get(ctx context.Context, email string) (*OTPData, error)
	Delete(ctx context.Context, email string) error
}

// Mailer delivers passcodes to users.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string, purpose OTPPurpose) error
}
