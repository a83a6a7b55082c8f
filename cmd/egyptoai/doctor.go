package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"egyptoai/internal/adapter/otpstore"
	"egyptoai/internal/adapter/sqlite"
	"egyptoai/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

// doctorTimeout bounds each connectivity check.
const doctorTimeout = 3 * time.Second

func runDoctor(ctx context.Context, out io.Writer, cfgPath string) error {
	// Some checks work without a loadable config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "LLM API keys", Fn: checkLLMAPIKeys},
		{Name: "Default provider", Fn: checkDefaultProvider},
		{Name: "Auth secret", Fn: checkAuthSecret},
		{Name: "Transcription", Fn: checkTranscription},
		{Name: "Mail", Fn: checkMail},
		{Name: "SQLite store", Fn: checkStore},
		{Name: "Redis", Fn: checkRedis},
	}
	return report(ctx, out, cfg, checks)
}

func report(ctx context.Context, out io.Writer, cfg *config.Config, checks []Check) error {
	fmt.Fprintln(out, "egyptoai doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(ctx, cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile reports whether the config loaded. A missing file only
// warns because defaults plus environment are a valid setup.
func checkConfigFile(cfgPath string, cfgErr error) func(context.Context, *config.Config) CheckResult {
	return func(context.Context, *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and values",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and environment", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

func checkLLMAPIKeys(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}
	switch {
	case len(withKey) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set GEMINI_API_KEY, DEEPSEEK_API_KEY or GROQ_API_KEY",
		}
	case len(withoutKey) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", "))}
}

func checkDefaultProvider(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	for _, p := range cfg.LLM.Providers {
		if p.Name != cfg.LLM.DefaultProvider {
			continue
		}
		if p.APIKey == "" {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("default provider %q has no API key", p.Name),
				Fix:     "Quick-prompt refresh uses the default provider; give it a key or change llm.default_provider",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s (%s)", p.Name, p.Model)}
	}
	return CheckResult{Status: StatusFail, Message: fmt.Sprintf("default provider %q is not configured", cfg.LLM.DefaultProvider)}
}

func checkAuthSecret(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Auth.Secret == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "auth.secret not set; sessions will not survive a restart",
			Fix:     "Set EGYPTOAI_AUTH_SECRET to at least 32 random bytes",
		}
	}
	return CheckResult{Status: StatusPass, Message: "session secret configured"}
}

func checkTranscription(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Transcribe.APIKey == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no transcription key; POST /api/chat/audio is disabled",
			Fix:     "Set OPENAI_API_KEY",
		}
	}
	return CheckResult{Status: StatusPass, Message: "whisper configured"}
}

func checkMail(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.SMTP.Host == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "smtp.host not set; passcodes are only logged",
			Fix:     "Set SMTP_HOST, SMTP_USER and SMTP_PASS",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("smtp %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)}
}

func checkStore(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	db, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Check that store.path is writable",
		}
	}
	defer db.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s opened and migrated", cfg.Store.Path)}
}

func checkRedis(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	client, err := otpstore.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Start Redis or set REDIS_URL",
		}
	}
	defer client.Close()
	return CheckResult{Status: StatusPass, Message: "reachable"}
}
