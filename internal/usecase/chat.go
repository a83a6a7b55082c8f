package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/tracer"
)

// DefaultStreamTimeout bounds a provider call once it no longer follows
// the client's request context.
const DefaultStreamTimeout = 5 * time.Minute

// Client-facing messages.
const (
	MsgPromptRequired   = "Prompt is required"
	MsgInvalidProvider  = "Invalid model provider"
	MsgChatNotFound     = "Chat not found"
	MsgProviderFailed   = "Failed to get AI response"
	MsgInternal         = "Internal server error"
	MsgTranscriptFailed = "Failed to transcribe audio"
	MsgEmptyTranscript  = "Could not understand the audio"
)

// Transport is the client-facing side of one streamed response.
type Transport interface {
	Open() error
	Opened() bool
	Send(delta string) error
	End() error
	SendError(status int, message, details string) error
}

// StreamRequest is one inbound streamed chat turn.
type StreamRequest struct {
	Prompt   string
	Provider string
	ChatID   string
	// UserID is empty for anonymous callers; their chats are never stored.
	UserID string
}

// CompleteRequest is one inbound single-shot chat turn.
type CompleteRequest = StreamRequest

// CompleteResult is the reply to a single-shot chat turn.
type CompleteResult struct {
	ChatID string `json:"chatId"`
	Reply  string `json:"reply"`
}

// ChatServiceDeps holds the collaborators of a ChatService.
type ChatServiceDeps struct {
	Broker        *StreamBroker
	Coordinator   *ConversationCoordinator
	Metrics       Metrics
	Logger        *slog.Logger
	StreamTimeout time.Duration
	// ExposeDetails includes upstream error text in pre-stream JSON errors.
	ExposeDetails bool
}

// ChatService runs the lifecycle of one chat request: validate, open the
// stream, forward deltas, persist once, then close.
type ChatService struct {
	broker        *StreamBroker
	coord         *ConversationCoordinator
	metrics       Metrics
	logger        *slog.Logger
	streamTimeout time.Duration
	exposeDetails bool
}

// NewChatService creates a chat service.
func NewChatService(deps ChatServiceDeps) *ChatService {
	s := &ChatService{
		broker:        deps.Broker,
		coord:         deps.Coordinator,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		streamTimeout: deps.StreamTimeout,
		exposeDetails: deps.ExposeDetails,
	}
	if s.metrics == nil {
		s.metrics = NopMetrics{}
	}
	if s.streamTimeout <= 0 {
		s.streamTimeout = DefaultStreamTimeout
	}
	return s
}

// Validate runs the pre-stream checks shared by every chat entry point.
func (s *ChatService) Validate(ctx context.Context, req StreamRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.NewDomainError("ChatService.Validate", domain.ErrEmptyPrompt, "")
	}
	if _, err := s.broker.Resolve(req.Provider); err != nil {
		return err
	}
	if req.ChatID != "" {
		// Anonymous callers cannot continue a stored conversation.
		if _, err := s.coord.CheckAccess(ctx, req.UserID, req.ChatID); err != nil {
			return err
		}
	}
	return nil
}

// Stream serves one chat turn over t. Every failure is reported through t;
// the returned error is for logging only.
func (s *ChatService) Stream(ctx context.Context, req StreamRequest, t Transport) error {
	if err := s.Validate(ctx, req); err != nil {
		_ = t.SendError(StatusFor(err), PublicMessage(err), s.details(err))
		return err
	}

	ctx, span := tracer.StartSpan(ctx, "chat.stream")
	defer span.End()
	span.SetAttributes(tracer.ProviderAttr(req.Provider))

	if err := t.Open(); err != nil {
		tracer.RecordError(span, err)
		return err
	}

	logger := s.logger.With("provider", req.Provider)
	authenticated := req.UserID != ""

	// The provider call and the writes around it outlive a client
	// disconnect so the partial reply can still be stored.
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.streamTimeout)
	defer cancel()

	var (
		chatID  = req.ChatID
		created bool
		reply   string
		bErr    error
	)
	g, gctx := errgroup.WithContext(work)
	if authenticated {
		g.Go(func() error {
			var err error
			chatID, created, err = s.coord.EnsureConversation(gctx, req.UserID, req.ChatID, req.Prompt)
			return err
		})
	}
	g.Go(func() error {
		reply, bErr = s.broker.StreamChat(work, req.Provider, domain.UserMessage(req.Prompt), t.Send)
		return nil
	})
	bootErr := g.Wait()

	s.metrics.StreamFinished(req.Provider, ClassifyOutcome(bErr))
	if bErr != nil && !errors.Is(bErr, domain.ErrClientGone) {
		tracer.RecordError(span, bErr)
		logger.Warn("provider stream failed", "error", bErr, "partial_len", len(reply))
		_ = t.SendError(http.StatusInternalServerError, MsgProviderFailed, "")
	}

	if authenticated {
		switch {
		case bootErr != nil:
			logger.Error("conversation bootstrap failed, turn not stored", "error", bootErr)
		case reply == "" && bErr != nil:
			if created {
				s.coord.Abandon(work, chatID)
			}
		default:
			span.SetAttributes(tracer.ConversationAttr(chatID))
			if err := s.coord.RecordTurn(work, chatID, req.Prompt, reply); err != nil {
				logger.Error("failed to store turn", "chat_id", chatID, "error", err)
			}
			if created {
				s.coord.MaybeSummarizeTitle(chatID, req.Provider, req.Prompt)
			}
		}
	}

	if bErr == nil {
		if err := t.End(); err != nil {
			logger.Debug("could not send done frame", "error", err)
		}
		tracer.SetOK(span)
	}
	return bErr
}

// Complete serves one chat turn as a single JSON reply. The caller must
// be authenticated.
func (s *ChatService) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	if req.UserID == "" {
		return nil, domain.NewDomainError("ChatService.Complete", domain.ErrAuthInvalid, "authentication required")
	}
	if err := s.Validate(ctx, req); err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "chat.complete")
	defer span.End()
	span.SetAttributes(tracer.ProviderAttr(req.Provider))

	p, err := s.broker.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	// The conversation is only created once there is a reply to store.
	resp, err := p.Chat(ctx, domain.ChatRequest{Messages: domain.UserMessage(req.Prompt)})
	s.metrics.StreamFinished(req.Provider, ClassifyOutcome(err))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	reply := resp.Message.Content

	chatID, created, err := s.coord.EnsureConversation(ctx, req.UserID, req.ChatID, req.Prompt)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if err := s.coord.RecordTurn(ctx, chatID, req.Prompt, reply); err != nil {
		s.logger.Error("failed to store turn", "chat_id", chatID, "provider", req.Provider, "error", err)
	}
	if created {
		s.coord.MaybeSummarizeTitle(chatID, req.Provider, req.Prompt)
	}
	tracer.SetOK(span)
	return &CompleteResult{ChatID: chatID, Reply: reply}, nil
}

func (s *ChatService) details(err error) string {
	if s.exposeDetails {
		return err.Error()
	}
	return ""
}

// StatusFor maps an error to the HTTP status a pre-stream failure uses.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCountryCodeTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOTPAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthInvalid) && !errors.Is(err, domain.ErrProviderError):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the client-safe text for err.
func PublicMessage(err error) string {
	for _, m := range publicMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	if StatusFor(err) == http.StatusBadRequest {
		return "Invalid request"
	}
	return MsgInternal
}

// publicMessages is ordered so specific sentinels win over the categories
// they wrap.
var publicMessages = []struct {
	err error
	msg string
}{
	{domain.ErrEmptyPrompt, MsgPromptRequired},
	{domain.ErrInvalidProvider, MsgInvalidProvider},
	{domain.ErrConversationAccess, MsgChatNotFound},
	{domain.ErrProviderError, MsgProviderFailed},
	{domain.ErrTranscription, MsgTranscriptFailed},
	{domain.ErrEmailTaken, "Email already registered"},
	{domain.ErrUserNotFound, "User not found"},
	{domain.ErrTokenExpired, "Token expired"},
	{domain.ErrAuthInvalid, "Invalid credentials"},
	{domain.ErrOTPExpired, "OTP expired or not found"},
	{domain.ErrOTPAlreadyUsed, "OTP already verified"},
	{domain.ErrOTPAttempts, "Too many invalid attempts. Request a new OTP."},
	{domain.ErrOTPInvalid, "Invalid OTP"},
	{domain.ErrOTPPurpose, "Invalid OTP purpose"},
	{domain.ErrMailDelivery, "Failed to send OTP"},
	{domain.ErrCountryNotFound, "Country not found"},
	{domain.ErrCountryCodeTaken, "A country with this code already exists"},
}
