package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"egyptoai/internal/domain"
	"egyptoai/internal/infra/tracer"
)

// ProviderResolver looks up a configured provider by exact name.
type ProviderResolver interface {
	Get(name string) (domain.LLMProvider, error)
}

// StreamBroker drives one provider call per chat request, forwarding every
// delta to the caller's sink while accumulating the full reply.
type StreamBroker struct {
	providers ProviderResolver
	metrics   Metrics
	logger    *slog.Logger
}

// NewStreamBroker creates a broker. A nil metrics sink is replaced with NopMetrics.
func NewStreamBroker(providers ProviderResolver, metrics Metrics, logger *slog.Logger) *StreamBroker {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &StreamBroker{providers: providers, metrics: metrics, logger: logger}
}

// Resolve validates name against the closed provider set and returns the
// registered adapter. A supported provider that is not configured is
// reported the same way as an unknown one.
func (b *StreamBroker) Resolve(name string) (domain.LLMProvider, error) {
	if _, err := domain.ParseProviderName(name); err != nil {
		return nil, err
	}
	p, err := b.providers.Get(name)
	if err != nil {
		if errors.Is(err, domain.ErrProviderNotFound) {
			return nil, domain.NewDomainError("StreamBroker.Resolve", domain.ErrInvalidProvider, name+" is not configured")
		}
		return nil, err
	}
	return p, nil
}

// StreamChat runs one completion and returns the accumulated reply.
//
// Deltas reach onDelta in emission order, one call per delta. If onDelta
// fails the broker stops forwarding but keeps draining the provider, then
// returns the full text with ErrClientGone. A provider failure returns the
// partial text together with the provider error. Nothing is retried.
func (b *StreamBroker) StreamChat(ctx context.Context, providerName string, messages []domain.Message, onDelta func(string) error) (string, error) {
	p, err := b.Resolve(providerName)
	if err != nil {
		return "", err
	}

	ctx, span := tracer.StartSpan(ctx, "broker.stream_chat")
	defer span.End()
	span.SetAttributes(tracer.ProviderAttr(providerName))

	var acc strings.Builder
	var sinkErr error
	forward := func(text string) {
		acc.WriteString(text)
		if sinkErr != nil {
			return
		}
		if err := onDelta(text); err != nil {
			sinkErr = err
			b.logger.Debug("client stopped receiving, draining provider", "provider", providerName, "error", err)
			return
		}
		b.metrics.DeltaForwarded(providerName)
	}

	sp, ok := p.(domain.StreamingLLMProvider)
	if !ok {
		// Chat-only providers deliver the whole reply as one delta.
		resp, err := p.Chat(ctx, domain.ChatRequest{Messages: messages})
		if err != nil {
			tracer.RecordError(span, err)
			return "", err
		}
		if resp.Message.Content != "" {
			forward(resp.Message.Content)
		}
		return b.finish(span, acc.String(), sinkErr)
	}

	deltas, err := sp.ChatStream(ctx, domain.ChatRequest{Messages: messages, Stream: true})
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	var streamErr error
	for d := range deltas {
		if d.Content != "" {
			forward(d.Content)
		}
		if d.Err != nil {
			streamErr = d.Err
		}
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}
	if streamErr != nil {
		tracer.RecordError(span, streamErr)
		return acc.String(), streamErr
	}
	return b.finish(span, acc.String(), sinkErr)
}

func (b *StreamBroker) finish(span trace.Span, text string, sinkErr error) (string, error) {
	if sinkErr != nil {
		return text, domain.WrapOp("StreamBroker.StreamChat", errors.Join(domain.ErrClientGone, sinkErr))
	}
	tracer.SetOK(span)
	return text, nil
}
