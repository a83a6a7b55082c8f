package mailer

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
)

const otpSubject = "Your One-Time Password (OTP)"

// SMTPMailer sends passcodes over SMTP.
type SMTPMailer struct {
	fromName string
	fromAddr string
	validFor time.Duration
	logger   *slog.Logger

	send func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer dials lazily; nothing connects until the first SendOTP.
// validFor is quoted in the message body.
func NewSMTPMailer(cfg config.SMTPConfig, validFor time.Duration, logger *slog.Logger) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	from := cfg.FromAddress
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		fromName: cfg.FromName,
		fromAddr: from,
		validFor: validFor,
		logger:   logger,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

// SendOTP mails code to email. Delivery failures wrap domain.ErrMailDelivery.
func (m *SMTPMailer) SendOTP(ctx context.Context, email, code string, purpose domain.OTPPurpose) error {
	msg, err := m.message(email, code)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMailDelivery, err)
	}
	if err := m.send(ctx, msg); err != nil {
		m.logger.WarnContext(ctx, "otp mail failed", "email", email, "purpose", string(purpose), "error", err)
		return fmt.Errorf("%w: %w", domain.ErrMailDelivery, err)
	}
	m.logger.InfoContext(ctx, "otp mail sent", "email", email, "purpose", string(purpose))
	return nil
}

func (m *SMTPMailer) message(to, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.fromAddr); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	msg.Subject(otpSubject)
	msg.SetDate()
	msg.SetMessageID()

	minutes := int(m.validFor.Round(time.Minute) / time.Minute)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Your one-time password is %s.\n\nIt is valid for %d minutes. If you did not request it, ignore this email.\n",
		code, minutes))
	msg.AddAlternativeString(mail.TypeTextHTML, fmt.Sprintf(
		`<p>Your one-time password is:</p><h2 style="letter-spacing:4px">%s</h2><p>It is valid for %d minutes. If you did not request it, ignore this email.</p>`,
		html.EscapeString(code), minutes))
	return msg, nil
}
