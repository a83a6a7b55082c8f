package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Subsystem-specific sentinels below wrap one of these so
// that callers (HTTP status mapping, metrics) can match on the category.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrStore         = fmt.Errorf("store operation failed")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrInvalidProvider    = fmt.Errorf("%w: unknown model provider", ErrInvalidInput)
	ErrEmptyPrompt        = fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	ErrConversationAccess = fmt.Errorf("conversation: %w", ErrNotFound)
	ErrTitleSummary       = fmt.Errorf("title summarization failed")
	ErrClientGone         = fmt.Errorf("client disconnected")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrTranscription      = fmt.Errorf("transcription failed")

	// Auth errors.
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrTokenExpired    = fmt.Errorf("%w: token expired", ErrAuthInvalid)
	ErrUserNotFound    = fmt.Errorf("user: %w", ErrNotFound)
	ErrEmailTaken      = fmt.Errorf("email: %w", ErrDuplicate)
	ErrOTPInvalid      = fmt.Errorf("%w: otp is invalid", ErrInvalidInput)
	ErrOTPExpired      = fmt.Errorf("%w: otp expired or not found", ErrInvalidInput)
	ErrOTPAlreadyUsed  = fmt.Errorf("%w: otp already verified", ErrInvalidInput)
	ErrOTPAttempts     = fmt.Errorf("%w: too many otp attempts", ErrInvalidInput)
	ErrMailDelivery    = fmt.Errorf("mail delivery failed")
	ErrOTPStoreFailure = fmt.Errorf("otp store: %w", ErrStore)
	ErrOTPPurpose      = fmt.Errorf("%w: unknown otp purpose", ErrInvalidInput)

	// Country catalogue errors.
	ErrCountryNotFound  = fmt.Errorf("country: %w", ErrNotFound)
	ErrCountryCodeTaken = fmt.Errorf("country code: %w", ErrDuplicate)

	// Resilience errors, produced by provider adapters from upstream status codes.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrUpstream        = fmt.Errorf("upstream server error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Coordinator.EnsureConversation")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for logs and metrics labels.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeStore              ErrorCode = "STORE"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeInvalidProvider    ErrorCode = "INVALID_PROVIDER"
	CodeEmptyPrompt        ErrorCode = "EMPTY_PROMPT"
	CodeConversationAccess ErrorCode = "CONVERSATION_ACCESS"
	CodeTitleSummary       ErrorCode = "TITLE_SUMMARY"
	CodeClientGone         ErrorCode = "CLIENT_GONE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeTranscription      ErrorCode = "TRANSCRIPTION"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	CodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	CodeEmailTaken         ErrorCode = "EMAIL_TAKEN"
	CodeOTPInvalid         ErrorCode = "OTP_INVALID"
	CodeOTPExpired         ErrorCode = "OTP_EXPIRED"
	CodeOTPAttempts        ErrorCode = "OTP_ATTEMPTS"
	CodeMailDelivery       ErrorCode = "MAIL_DELIVERY"
	CodeCountryNotFound    ErrorCode = "COUNTRY_NOT_FOUND"
	CodeCountryCodeTaken   ErrorCode = "COUNTRY_CODE_TAKEN"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeUpstream           ErrorCode = "UPSTREAM"
)

// specificCodes is checked before categoryCodes so that a sentinel wrapping a
// category (ErrConversationAccess wraps ErrNotFound) resolves to its own code.
var specificCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidProvider, CodeInvalidProvider},
	{ErrEmptyPrompt, CodeEmptyPrompt},
	{ErrConversationAccess, CodeConversationAccess},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrTitleSummary, CodeTitleSummary},
	{ErrClientGone, CodeClientGone},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
	{ErrTranscription, CodeTranscription},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrUserNotFound, CodeUserNotFound},
	{ErrEmailTaken, CodeEmailTaken},
	{ErrOTPExpired, CodeOTPExpired},
	{ErrOTPAlreadyUsed, CodeOTPInvalid},
	{ErrOTPAttempts, CodeOTPAttempts},
	{ErrOTPInvalid, CodeOTPInvalid},
	{ErrMailDelivery, CodeMailDelivery},
	{ErrCountryNotFound, CodeCountryNotFound},
	{ErrCountryCodeTaken, CodeCountryCodeTaken},
	{ErrContextOverflow, CodeContextOverflow},
	{ErrRateLimit, CodeRateLimit},
	{ErrUpstream, CodeUpstream},
	{ErrAuthInvalid, CodeAuthInvalid},
}

var categoryCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrProviderError, CodeProviderError},
	{ErrStore, CodeStore},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Specific sentinels win over the category they wrap.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range specificCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	for _, c := range categoryCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
