package transcript

import (
	"context"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/pkg/circuitbreaker"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
)

type stubFetcher struct {
	calls int
	fn    func(transcriptID string) (*Transcript, error)
}

func (s *stubFetcher) Fetch(_ context.Context, transcriptID string) (*Transcript, error) {
	s.calls++
	return s.fn(transcriptID)
}

func TestResolver_ChannelMessageSkipsFetch(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Transcript, error) {
		t.Fatal("legacy messages must not hit the provider")
		return nil, nil
	}}
	resolver := NewResolver(fetcher, nil, logger.NopLogger())

	result, err := resolver.Resolve(context.Background(), models.TriggerEvent{
		Source:     models.SourceChannelMessage,
		ExternalID: "1724880000.000100",
		RawPayload: map[string]interface{}{"text": "Met with Acme Corp."},
	})
	require.NoError(t, err)
	assert.Equal(t, "Met with Acme Corp.", result.RawText)
	assert.Zero(t, fetcher.calls)
}

func TestResolver_WebhookFetches(t *testing.T) {
	fetcher := &stubFetcher{fn: func(transcriptID string) (*Transcript, error) {
		assert.Equal(t, "meeting-1", transcriptID)
		return &Transcript{ID: transcriptID, Title: "Weekly Sync"}, nil
	}}
	resolver := NewResolver(fetcher, nil, logger.NopLogger())

	result, err := resolver.Resolve(context.Background(), models.TriggerEvent{
		Source:     models.SourceWebhookCall,
		ExternalID: "meeting-1",
		RawPayload: map[string]interface{}{"meetingId": "meeting-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Weekly Sync", result.Title)
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolver_WebhookMissingMeetingID(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Transcript, error) { return nil, nil }}
	resolver := NewResolver(fetcher, nil, logger.NopLogger())

	_, err := resolver.Resolve(context.Background(), models.TriggerEvent{
		Source:     models.SourceWebhookCall,
		RawPayload: map[string]interface{}{},
	})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Zero(t, fetcher.calls)
}

func TestResolver_OpenBreakerIsTransient(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Transcript, error) {
		return nil, apperrors.ErrTransient.WithCause(assert.AnError)
	}}

	// Trip at the first failure so the second call sees an open breaker.
	breaker := circuitbreaker.NewWrapper(circuitbreaker.Config{
		Name:        "test",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.TotalFailures >= 1 },
	})
	resolver := NewResolver(fetcher, breaker, logger.NopLogger())

	trigger := models.TriggerEvent{
		Source:     models.SourceWebhookCall,
		ExternalID: "meeting-1",
		RawPayload: map[string]interface{}{"meetingId": "meeting-1"},
	}

	_, err := resolver.Resolve(context.Background(), trigger)
	require.Error(t, err)

	_, err = resolver.Resolve(context.Background(), trigger)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 1, fetcher.calls)
}
