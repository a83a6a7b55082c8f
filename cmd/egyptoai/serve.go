package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"egyptoai/internal/adapter/auth"
	"egyptoai/internal/adapter/httpapi"
	"egyptoai/internal/adapter/llm"
	"egyptoai/internal/adapter/mailer"
	"egyptoai/internal/adapter/otpstore"
	"egyptoai/internal/adapter/sqlite"
	"egyptoai/internal/adapter/transcribe"
	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
	"egyptoai/internal/infra/logger"
	"egyptoai/internal/infra/tracer"
	"egyptoai/internal/usecase"
	"egyptoai/internal/usecase/scheduling"
)

// transcribeTimeout bounds one Whisper upload and reply.
const transcribeTimeout = 2 * time.Minute

func runServe(ctx context.Context, cfgPath string) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Storage
	db, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	rdb, err := otpstore.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("otp store: %w", err)
	}
	otps := otpstore.New(rdb)
	defer otps.Close()

	// 4. LLM providers
	registry, err := llm.BuildRegistry(cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if len(registry.List()) == 0 {
		return errors.New("llm: no provider has an api key")
	}

	// 5. Use cases
	metrics := httpapi.NewMetrics()
	broker := usecase.NewStreamBroker(registry, metrics, log)
	coord := usecase.NewConversationCoordinator(usecase.CoordinatorDeps{
		Store:         sqlite.NewConversationStore(db),
		TitleProvider: titleProvider(cfg.LLM.Title, registry, log),
		TitleTimeout:  cfg.LLM.Title.Timeout,
		Metrics:       metrics,
		Logger:        log,
	})
	// Detached title calls finish before the store closes.
	defer coord.Wait()

	tokens, err := sessionTokens(cfg.Auth, log)
	if err != nil {
		return err
	}

	otpMailer, err := passcodeMailer(cfg, log)
	if err != nil {
		return err
	}

	refStore := sqlite.NewReferenceStore(db)
	quickPrompts := usecase.NewQuickPromptRefresher(refStore, broker, quickPromptProvider(cfg), log)

	deps := httpapi.Deps{
		Chat: usecase.NewChatService(usecase.ChatServiceDeps{
			Broker:        broker,
			Coordinator:   coord,
			Metrics:       metrics,
			Logger:        log,
			ExposeDetails: cfg.Server.ExposeErrorDetails,
		}),
		Conversations: coord,
		Accounts: usecase.NewAccountService(usecase.AccountDeps{
			Users:          sqlite.NewUserStore(db),
			OTPs:           otps,
			Mailer:         otpMailer,
			Tokens:         tokens,
			OTPTTL:         cfg.OTP.TTL,
			OTPLen:         cfg.OTP.Length,
			OTPMaxAttempts: cfg.OTP.MaxAttempts,
			HashCost:       cfg.OTP.HashCost,
			Logger:         log,
		}),
		QuickPrompts: quickPrompts,
		Reference:    usecase.NewReferenceService(refStore),
		Tokens:       tokens,
		Metrics:      metrics,
		Health: []httpapi.HealthCheck{
			{Name: "sqlite", Check: db.Ping},
			{Name: "redis", Check: otps.Ping},
		},
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Logger:    log,
	}
	if cfg.Transcribe.APIKey != "" {
		deps.Transcriber = transcribe.NewWhisper(cfg.Transcribe, &http.Client{Timeout: transcribeTimeout}, log)
	} else {
		log.Warn("transcription api key not set, audio chat disabled")
	}

	// 6. Scheduler
	sched := scheduling.NewScheduler(log)
	if qp := cfg.Scheduler.QuickPrompts; qp.Enabled {
		sched.RegisterAction(scheduling.ActionQuickPromptRefresh, quickPrompts.Refresh)
		if err := sched.AddTask(scheduling.ScheduledTask{
			Name:     "quick-prompts",
			Schedule: qp.Schedule,
			Action:   scheduling.ActionQuickPromptRefresh,
		}); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer sched.Stop()

	// 7. HTTP
	srv := httpapi.NewServer(cfg.Server, httpapi.NewHandler(ctx, deps), log)
	log.Info("egyptoai starting",
		"addr", cfg.Server.Addr,
		"providers", registry.List(),
		"default_provider", cfg.LLM.DefaultProvider,
	)
	return srv.Start(ctx)
}

// titleProvider resolves the provider for background title calls. Without
// an override the chat's own provider is used. Fallbacks, when configured,
// are tried in order after it.
func titleProvider(cfg config.TitleConfig, reg *llm.Registry, log *slog.Logger) usecase.TitleProviderFunc {
	return func(chatProvider string) (domain.LLMProvider, error) {
		name := chatProvider
		if cfg.Provider != "" {
			name = cfg.Provider
		}
		primary, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		var fallbacks []domain.LLMProvider
		for _, fb := range cfg.Fallbacks {
			if fb == name {
				continue
			}
			if p, err := reg.Get(fb); err == nil {
				fallbacks = append(fallbacks, p)
			}
		}
		if len(fallbacks) == 0 {
			return primary, nil
		}
		return llm.NewFailoverProvider(primary, fallbacks, log), nil
	}
}

func quickPromptProvider(cfg *config.Config) string {
	if p := cfg.Scheduler.QuickPrompts.Provider; p != "" {
		return p
	}
	return cfg.LLM.DefaultProvider
}

// sessionTokens builds the token signer. Without a configured secret a
// random one is generated, so tokens do not survive a restart.
// passcodeMailer sends over SMTP when a host is configured and otherwise
// only logs codes, which suits local development.
func passcodeMailer(cfg *config.Config, log *slog.Logger) (domain.Mailer, error) {
	if cfg.SMTP.Host == "" {
		log.Warn("smtp host not set, passcodes are logged instead of mailed")
		return mailer.NewLogMailer(log), nil
	}
	m, err := mailer.NewSMTPMailer(cfg.SMTP, cfg.OTP.TTL, log)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return m, nil
}

func sessionTokens(cfg config.AuthConfig, log *slog.Logger) (*auth.Tokens, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
		log.Warn("auth.secret not set, using an ephemeral secret")
	}
	return auth.NewTokens(secret, cfg.TokenTTL), nil
}
