package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	errs *multierror.Error
}

func (v *ValidationError) Error() string {
	return v.errs.Error()
}

// Unwrap exposes the individual problems to errors.Is / errors.As.
func (v *ValidationError) Unwrap() []error {
	return v.errs.WrappedErrors()
}

// Problems returns the individual validation messages.
func (v *ValidationError) Problems() []string {
	out := make([]string, 0, v.errs.Len())
	for _, e := range v.errs.WrappedErrors() {
		out = append(out, e.Error())
	}
	return out
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return v.errs.Len() > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.errs = multierror.Append(v.errs, fmt.Errorf(format, args...))
}

func newValidationError() *ValidationError {
	return &ValidationError{errs: &multierror.Error{ErrorFormat: formatProblems}}
}

func formatProblems(errs []error) string {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return "config validation failed:\n  - " + strings.Join(lines, "\n  - ")
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := newValidationError()
	validateServer(cfg, ve)
	validateLLM(cfg, ve)
	validateStore(cfg, ve)
	validateAuth(cfg, ve)
	validateSMTP(cfg, ve)
	validateRateLimit(cfg, ve)
	validateScheduler(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", cfg.Server.Addr, err)
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		ve.Add("server.read_header_timeout must be > 0")
	}
	if cfg.Server.MaxAudioBytes <= 0 {
		ve.Add("server.max_audio_bytes must be > 0")
	}
	for i, p := range cfg.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			ve.Add("server.trusted_proxies[%d] %q is neither an IP nor a CIDR", i, p)
		}
	}
}

var validProviderTypes = map[string]bool{
	"gemini":   true,
	"deepseek": true,
	"groq":     true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: gemini, deepseek, groq)", i, p.Type)
		}
		if p.RespTimeout < 0 || p.ConnTimeout < 0 {
			ve.Add("llm.providers[%d] (%s): timeouts must not be negative", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if t := cfg.LLM.Title.Provider; t != "" && !seen[t] {
		ve.Add("llm.title.provider %q does not match any configured provider", t)
	}
	for i, f := range cfg.LLM.Title.Fallbacks {
		if !seen[f] {
			ve.Add("llm.title.fallbacks[%d] %q does not match any configured provider", i, f)
		}
	}
	if cfg.LLM.Title.Timeout <= 0 {
		ve.Add("llm.title.timeout must be > 0")
	}

	cb := cfg.LLM.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
	if cfg.Redis.URL == "" {
		ve.Add("redis.url must not be empty")
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	// An empty secret is allowed; serve generates an ephemeral one.
	if s := cfg.Auth.Secret; s != "" && len(s) < 32 {
		ve.Add("auth.secret must be at least 32 bytes")
	}
	if cfg.Auth.TokenTTL < time.Minute {
		ve.Add("auth.token_ttl must be >= 1m")
	}
	if cfg.OTP.TTL <= 0 {
		ve.Add("otp.ttl must be > 0")
	}
	if cfg.OTP.Length < 4 || cfg.OTP.Length > 10 {
		ve.Add("otp.length must be between 4 and 10")
	}
	if cfg.OTP.MaxAttempts < 1 {
		ve.Add("otp.max_attempts must be >= 1")
	}
}

func validateSMTP(cfg *Config, ve *ValidationError) {
	sc := cfg.SMTP
	if sc.Host == "" {
		return
	}
	if sc.Port < 1 || sc.Port > 65535 {
		ve.Add("smtp.port %d is out of range", sc.Port)
	}
	if sc.FromAddress == "" && sc.Username == "" {
		ve.Add("smtp.from_address or smtp.username is required when smtp.host is set")
	}
	if sc.Timeout <= 0 {
		ve.Add("smtp.timeout must be > 0")
	}
}

func validateRateLimit(cfg *Config, ve *ValidationError) {
	rl := cfg.RateLimit
	if rl.ChatPerMin <= 0 || rl.ChatBurst <= 0 {
		ve.Add("rate_limit.chat_per_min and chat_burst must be > 0")
	}
	if rl.GlobalPerMin <= 0 || rl.GlobalBurst <= 0 {
		ve.Add("rate_limit.global_per_min and global_burst must be > 0")
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	qp := cfg.Scheduler.QuickPrompts
	if !qp.Enabled {
		return
	}
	if qp.Schedule == "" {
		ve.Add("scheduler.quick_prompts.schedule must not be empty when enabled")
		return
	}
	if _, err := time.ParseDuration(qp.Schedule); err != nil {
		if _, err := cron.ParseStandard(qp.Schedule); err != nil {
			ve.Add("scheduler.quick_prompts.schedule %q is neither a duration nor a cron expression", qp.Schedule)
		}
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true}
	validExporters  = map[string]bool{"noop": true, "stdout": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[cfg.Logger.Level] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: json, text)", cfg.Logger.Format)
	}
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
