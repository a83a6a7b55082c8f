// Package httpapi is the HTTP surface of the service: routing, request
// decoding, per-route middleware and Prometheus metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"egyptoai/internal/adapter/auth"
	"egyptoai/internal/domain"
	"egyptoai/internal/infra/config"
	"egyptoai/internal/infra/middleware"
	"egyptoai/internal/usecase"
)

// DefaultMaxAudioBytes caps audio uploads when the config leaves it unset.
const DefaultMaxAudioBytes = 25 << 20

// HealthCheck pings one backing service.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps holds everything the routes call into.
type Deps struct {
	Chat          *usecase.ChatService
	Conversations *usecase.ConversationCoordinator
	Accounts      *usecase.AccountService
	QuickPrompts  *usecase.QuickPromptRefresher
	Reference     *usecase.ReferenceService
	Transcriber   domain.Transcriber
	Tokens        auth.Verifier
	Metrics       *Metrics
	Health        []HealthCheck
	Server        config.ServerConfig
	RateLimit     config.RateLimitConfig
	Logger        *slog.Logger
}

type handlers struct {
	chat          *usecase.ChatService
	convs         *usecase.ConversationCoordinator
	accounts      *usecase.AccountService
	prompts       *usecase.QuickPromptRefresher
	reference     *usecase.ReferenceService
	transcriber   domain.Transcriber
	health        []HealthCheck
	maxAudio      int64
	exposeDetails bool
	logger        *slog.Logger
}

// NewHandler builds the routed handler. ctx bounds the rate limiter
// janitors and should live as long as the server.
func NewHandler(ctx context.Context, d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = NewMetrics()
	}
	h := &handlers{
		chat:          d.Chat,
		convs:         d.Conversations,
		accounts:      d.Accounts,
		prompts:       d.QuickPrompts,
		reference:     d.Reference,
		transcriber:   d.Transcriber,
		health:        d.Health,
		maxAudio:      d.Server.MaxAudioBytes,
		exposeDetails: d.Server.ExposeErrorDetails,
		logger:        d.Logger,
	}
	if h.maxAudio <= 0 {
		h.maxAudio = DefaultMaxAudioBytes
	}

	requireAuth := auth.RequireAuth(d.Tokens)
	optionalAuth := auth.OptionalAuth(d.Tokens)
	chatLimit := middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
		RequestsPerMin: d.RateLimit.ChatPerMin,
		BurstSize:      d.RateLimit.ChatBurst,
		TrustedProxies: d.Server.TrustedProxies,
		OnLimited:      d.Metrics.onLimited("chat"),
	})

	mux := http.NewServeMux()
	route := func(pattern, name string, fn http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		mux.Handle(pattern, d.Metrics.instrument(name, middleware.Chain(fn, mws...)))
	}

	route("POST /api/chat/stream", "chat_stream", h.chatStream, chatLimit, optionalAuth)
	route("POST /api/chat/audio", "chat_audio", h.chatAudio, chatLimit, optionalAuth)
	route("POST /api/chat", "chat_complete", h.chatComplete, chatLimit, requireAuth)
	route("GET /api/chat/titles", "chat_titles", h.chatTitles, requireAuth)
	route("GET /api/chat/{chatId}", "chat_detail", h.chatDetail, requireAuth)

	route("POST /api/auth/register", "auth_register", h.register)
	route("POST /api/auth/login", "auth_login", h.login)
	route("POST /api/auth/otp/request", "otp_request", h.requestOTP)
	route("POST /api/auth/otp/verify", "otp_verify", h.verifyOTP)
	route("GET /api/profile", "profile_get", h.getProfile, requireAuth)
	route("PUT /api/profile", "profile_update", h.updateProfile, requireAuth)

	route("GET /api/quick-prompts", "quick_prompts", h.quickPrompts)
	route("GET /api/countries", "countries", h.countries)
	route("GET /api/countries/{id}", "country_get", h.country)
	route("POST /api/countries", "country_create", h.createCountry, requireAuth)
	route("PUT /api/countries/{id}", "country_update", h.updateCountry, requireAuth)
	route("DELETE /api/countries/{id}", "country_delete", h.deleteCountry, requireAuth)
	route("GET /api/facts", "facts", h.facts)
	route("GET /api/health", "health", h.healthz)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	global := middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
		RequestsPerMin: d.RateLimit.GlobalPerMin,
		BurstSize:      d.RateLimit.GlobalBurst,
		TrustedProxies: d.Server.TrustedProxies,
		OnLimited:      d.Metrics.onLimited("global"),
	})
	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recover(d.Logger),
		middleware.SecurityHeaders,
		global,
	)
}
