// Package mailer delivers one-time passcodes.
package mailer

import (
	"context"
	"log/slog"

	"egyptoai/internal/domain"
)

// LogMailer writes passcodes to the log instead of sending email. It is the
// default when no mail transport is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a mailer that logs at debug level.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendOTP logs the code. It never fails.
func (m *LogMailer) SendOTP(ctx context.Context, email, code string, purpose domain.OTPPurpose) error {
	m.logger.DebugContext(ctx, "otp issued", "email", email, "code", code, "purpose", string(purpose))
	return nil
}
