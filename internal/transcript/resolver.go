package transcript

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/pkg/circuitbreaker"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
)

// Fetcher is the remote lookup behind the resolver.
type Fetcher interface {
	Fetch(ctx context.Context, transcriptID string) (*Transcript, error)
}

// Resolver turns a trigger event into a full meeting record. Webhook
// triggers go through the provider fetch (behind an optional circuit
// breaker); legacy channel messages carry their own content and need no
// remote call.
type Resolver struct {
	fetcher Fetcher
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

func NewResolver(fetcher Fetcher, breaker *circuitbreaker.Wrapper, log logger.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		breaker: breaker,
		logger:  log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, trigger models.TriggerEvent) (*Transcript, error) {
	switch trigger.Source {
	case models.SourceChannelMessage:
		text, _ := trigger.RawPayload["text"].(string)
		return &Transcript{RawText: text}, nil

	case models.SourceWebhookCall:
		meetingID, _ := trigger.RawPayload["meetingId"].(string)
		if meetingID == "" {
			return nil, apperrors.ErrValidation.WithCause(fmt.Errorf("webhook payload has no meetingId"))
		}
		return r.fetch(ctx, meetingID)

	default:
		return nil, apperrors.ErrValidation.WithCause(fmt.Errorf("unknown trigger source %q", trigger.Source))
	}
}

func (r *Resolver) fetch(ctx context.Context, meetingID string) (*Transcript, error) {
	if r.breaker == nil {
		return r.fetcher.Fetch(ctx, meetingID)
	}

	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.fetcher.Fetch(ctx, meetingID)
	})
	if err != nil {
		// An open breaker is a provider outage from the pipeline's point
		// of view: retryable, subject to the dispatcher's backoff.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.ErrTransient.WithCause(err)
		}
		return nil, err
	}

	return result.(*Transcript), nil
}
