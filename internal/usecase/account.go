package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"egyptoai/internal/domain"
)

// TokenIssuer signs session tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// AccountDeps holds the collaborators of an AccountService.
type AccountDeps struct {
	Users          domain.UserStore
	OTPs           domain.OTPStore
	Mailer         domain.Mailer
	Tokens         TokenIssuer
	OTPTTL         time.Duration
	OTPLen         int
	OTPMaxAttempts int
	HashCost       int
	Logger         *slog.Logger
}

// AccountService handles registration, login, passcodes and profiles.
type AccountService struct {
	users    domain.UserStore
	otps     domain.OTPStore
	mailer   domain.Mailer
	tokens   TokenIssuer
	otpTTL   time.Duration
	otpLen   int
	maxTries int
	hashCost int
	logger   *slog.Logger
	now      func() time.Time

	// dummyHash keeps login timing uniform for unknown emails.
	dummyHash []byte
}

// NewAccountService creates an account service with defaults for unset limits.
func NewAccountService(deps AccountDeps) *AccountService {
	s := &AccountService{
		users:    deps.Users,
		otps:     deps.OTPs,
		mailer:   deps.Mailer,
		tokens:   deps.Tokens,
		otpTTL:   deps.OTPTTL,
		otpLen:   deps.OTPLen,
		maxTries: deps.OTPMaxAttempts,
		hashCost: deps.HashCost,
		logger:   deps.Logger,
		now:      time.Now,
	}
	if s.otpTTL <= 0 {
		s.otpTTL = 10 * time.Minute
	}
	if s.otpLen <= 0 {
		s.otpLen = 6
	}
	if s.maxTries <= 0 {
		s.maxTries = 5
	}
	if s.hashCost < bcrypt.MinCost {
		s.hashCost = bcrypt.DefaultCost
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("egyptoai-timing"), s.hashCost)
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and returns a session token.
func (s *AccountService) Register(ctx context.Context, email, password, name string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", domain.NewDomainError("AccountService.Register", domain.ErrInvalidInput, err.Error())
	}
	u := &domain.User{
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return "", err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return s.tokens.Issue(u.ID)
}

// Login verifies credentials and returns a session token. Unknown emails
// and wrong passwords fail identically.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return "", err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return "", domain.NewDomainError("AccountService.Login", domain.ErrAuthInvalid, "bad credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", domain.NewDomainError("AccountService.Login", domain.ErrAuthInvalid, "bad credentials")
	}
	return s.tokens.Issue(u.ID)
}

// RequestOTP issues a fresh passcode for email, replacing any earlier one,
// and hands it to the mailer. Only the bcrypt hash is stored.
func (s *AccountService) RequestOTP(ctx context.Context, email string, purpose domain.OTPPurpose) error {
	if purpose == "" {
		purpose = domain.OTPPurposeVerification
	}
	if !purpose.Valid() {
		return domain.NewDomainError("AccountService.RequestOTP", domain.ErrOTPPurpose, string(purpose))
	}
	email = normalizeEmail(email)

	code, err := generateCode(s.otpLen)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	now := s.now().UTC()
	data := domain.OTPData{
		OTP:       string(hash),
		ExpiresAt: now.Add(s.otpTTL),
		Purpose:   purpose,
		CreatedAt: now,
	}
	if err := s.otps.Put(ctx, email, data); err != nil {
		return err
	}
	if err := s.mailer.SendOTP(ctx, email, code, purpose); err != nil {
		if errors.Is(err, domain.ErrMailDelivery) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrMailDelivery, err)
	}
	return nil
}

// VerifyOTP checks code against the stored passcode. On success the record
// is marked verified with a fresh verification token, which is returned,
// and the matching account (if any) is marked email-verified. Each wrong
// code is counted; the record is dropped once the limit is reached.
func (s *AccountService) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)
	data, err := s.otps.Get(ctx, email)
	if err != nil {
		return "", err
	}
	if data.Verified {
		return "", domain.ErrOTPAlreadyUsed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(data.OTP), []byte(strings.TrimSpace(code))); err != nil {
		return "", s.recordFailedAttempt(ctx, email, data)
	}

	now := s.now().UTC()
	data.Verified = true
	data.VerifiedAt = &now
	data.VerificationToken = uuid.NewString()
	if err := s.otps.Put(ctx, email, *data); err != nil {
		return "", err
	}

	if err := s.users.MarkEmailVerified(ctx, email); err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Warn("otp verified but user update failed", "error", err)
	}
	return data.VerificationToken, nil
}

// recordFailedAttempt stores the incremented counter, keeping the original
// expiry, and returns the error the caller should see.
func (s *AccountService) recordFailedAttempt(ctx context.Context, email string, data *domain.OTPData) error {
	data.Attempts++
	if data.Attempts >= s.maxTries {
		if err := s.otps.Delete(ctx, email); err != nil {
			return err
		}
		s.logger.Warn("otp invalidated after repeated failures", "attempts", data.Attempts)
		return domain.ErrOTPAttempts
	}
	if err := s.otps.Put(ctx, email, *data); err != nil {
		return err
	}
	return domain.ErrOTPInvalid
}

// Profile returns the caller's account with aggregate counts.
func (s *AccountService) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.users.GetProfile(ctx, userID)
}

// UpdateProfile changes display fields and returns the updated profile.
func (s *AccountService) UpdateProfile(ctx context.Context, userID, name, photoURL string) (*domain.Profile, error) {
	if err := s.users.UpdateProfile(ctx, userID, strings.TrimSpace(name), strings.TrimSpace(photoURL)); err != nil {
		return nil, err
	}
	return s.users.GetProfile(ctx, userID)
}

func generateCode(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for range n {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
