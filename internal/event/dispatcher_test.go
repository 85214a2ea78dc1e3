package event

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/delivery"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/internal/meeting"
	"github.com/COG-GTM/fireflies-agent/internal/transcript"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
	"github.com/COG-GTM/fireflies-agent/pkg/retry"
)

const testChannelID = "C0TARGET"

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	fn    func(models.TriggerEvent) (*transcript.Transcript, error)
}

func (f *fakeResolver) Resolve(_ context.Context, trigger models.TriggerEvent) (*transcript.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(trigger)
	}
	return &transcript.Transcript{Title: "Weekly Sync", RawText: "Met with Acme Corp."}, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	body  string
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, mctx meeting.Context, _ []string, sourceEventID string) (*models.DraftResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body := f.body
	if body == "" {
		body = "Hi " + mctx.ClientOrOrganizer + ",\n\nThank you for your time today."
	}
	return &models.DraftResult{
		BodyText:      body,
		GeneratedAt:   time.Now(),
		SourceEventID: sourceEventID,
	}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sinkCall struct {
	channelRef string
	threadRef  string
	content    string
	kind       delivery.Kind
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
	err   error
}

func (f *fakeSink) Deliver(_ context.Context, channelRef, threadRef, content string, kind delivery.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, sinkCall{channelRef: channelRef, threadRef: threadRef, content: content, kind: kind})
	return nil
}

func (f *fakeSink) deliveries() []sinkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sinkCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type failingRecordStore struct {
	RecordStore
}

func (f *failingRecordStore) Claim(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	resolver   *fakeResolver
	generator  *fakeGenerator
	sink       *fakeSink
	records    *MemoryRecordStore
}

func newDispatcherFixture(t *testing.T, mutate func(*dispatcherFixture)) *dispatcherFixture {
	t.Helper()

	fx := &dispatcherFixture{
		resolver:  &fakeResolver{},
		generator: &fakeGenerator{},
		sink:      &fakeSink{},
		records:   NewMemoryRecordStore(time.Hour, 100),
	}
	t.Cleanup(fx.records.Close)

	if mutate != nil {
		mutate(fx)
	}

	log := logger.NopLogger()
	extractor := meeting.NewExtractor(constants.ExtractionModeHeuristic, nil, log)

	fx.dispatcher = NewDispatcher(
		Config{
			TargetChannelID: testChannelID,
			Policy: retry.Policy{
				MaxAttempts:     3,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
				Multiplier:      2.0,
			},
			StageTimeout: time.Second,
		},
		fx.resolver,
		extractor,
		fx.generator,
		fx.sink,
		fx.records,
		log,
	)

	return fx
}

func webhookTrigger(id string) models.TriggerEvent {
	return models.TriggerEvent{
		Source:     models.SourceWebhookCall,
		ExternalID: id,
		RawPayload: map[string]interface{}{
			"meetingId": id,
			"eventType": constants.EventTypeTranscriptionCompleted,
		},
	}
}

func channelTrigger(id, channel, text string) models.TriggerEvent {
	return models.TriggerEvent{
		Source:     models.SourceChannelMessage,
		ExternalID: id,
		ChannelRef: channel,
		ThreadRef:  id,
		RawPayload: map[string]interface{}{"text": text},
	}
}

func TestDispatcher_WebhookDelivered(t *testing.T) {
	fx := newDispatcherFixture(t, nil)

	outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDelivered, outcome)

	deliveries := fx.sink.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, delivery.KindSuccess, deliveries[0].kind)
	// Webhook triggers carry no channel of their own.
	assert.Equal(t, testChannelID, deliveries[0].channelRef)
	assert.Contains(t, deliveries[0].content, "Thank you for your time today")

	rec, ok, err := fx.records.Get(context.Background(), "meeting-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusDelivered, rec.Status)
}

func TestDispatcher_LegacyChannelMessage(t *testing.T) {
	fx := newDispatcherFixture(t, func(fx *dispatcherFixture) {
		fx.resolver.fn = func(trigger models.TriggerEvent) (*transcript.Transcript, error) {
			text, _ := trigger.RawPayload["text"].(string)
			return &transcript.Transcript{RawText: text}, nil
		}
	})

	trigger := channelTrigger("1724880000.000100", testChannelID,
		"Met with Acme Corp. Discussed pricing for the enterprise tier. Action: send proposal by Friday.")

	outcome, err := fx.dispatcher.Handle(context.Background(), trigger)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDelivered, outcome)

	deliveries := fx.sink.deliveries()
	require.Len(t, deliveries, 1)
	// The heuristic extractor pulled the client from the message and the
	// draft replies in the originating thread.
	assert.Contains(t, deliveries[0].content, "Acme Corp")
	assert.Equal(t, testChannelID, deliveries[0].channelRef)
	assert.Equal(t, "1724880000.000100", deliveries[0].threadRef)
}

func TestDispatcher_DuplicateSuppressed(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	ctx := context.Background()

	outcome, err := fx.dispatcher.Handle(ctx, webhookTrigger("meeting-1"))
	require.NoError(t, err)
	require.Equal(t, models.OutcomeDelivered, outcome)

	outcome, err = fx.dispatcher.Handle(ctx, webhookTrigger("meeting-1"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, outcome)

	assert.Equal(t, 1, fx.resolver.callCount())
	assert.Equal(t, 1, fx.generator.callCount())
	assert.Len(t, fx.sink.deliveries(), 1)
}

func TestDispatcher_ConcurrentDuplicates(t *testing.T) {
	fx := newDispatcherFixture(t, nil)

	const goroutines = 10
	outcomes := make([]models.DeliveryOutcome, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	delivered := 0
	for _, outcome := range outcomes {
		if outcome == models.OutcomeDelivered {
			delivered++
		} else {
			assert.Equal(t, models.OutcomeDuplicate, outcome)
		}
	}
	assert.Equal(t, 1, delivered)
	assert.Len(t, fx.sink.deliveries(), 1)
}

func TestDispatcher_FiltersWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		trigger models.TriggerEvent
	}{
		{
			name:    "wrong channel",
			trigger: channelTrigger("1.0001", "C0OTHER", "some text"),
		},
		{
			name: "bot message",
			trigger: models.TriggerEvent{
				Source:     models.SourceChannelMessage,
				ExternalID: "1.0002",
				ChannelRef: testChannelID,
				RawPayload: map[string]interface{}{"text": "x", "bot_id": "B123"},
			},
		},
		{
			name: "message subtype",
			trigger: models.TriggerEvent{
				Source:     models.SourceChannelMessage,
				ExternalID: "1.0003",
				ChannelRef: testChannelID,
				RawPayload: map[string]interface{}{"text": "x", "subtype": "message_changed"},
			},
		},
		{
			name: "webhook wrong event type",
			trigger: models.TriggerEvent{
				Source:     models.SourceWebhookCall,
				ExternalID: "meeting-2",
				RawPayload: map[string]interface{}{"meetingId": "meeting-2", "eventType": "Recording started"},
			},
		},
		{
			name: "missing external id",
			trigger: models.TriggerEvent{
				Source:     models.SourceWebhookCall,
				RawPayload: map[string]interface{}{"eventType": constants.EventTypeTranscriptionCompleted},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newDispatcherFixture(t, nil)

			outcome, err := fx.dispatcher.Handle(context.Background(), tt.trigger)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeFiltered, outcome)

			// Filtered events never touch the pipeline or the record store.
			assert.Zero(t, fx.resolver.callCount())
			assert.Empty(t, fx.sink.deliveries())
			size, err := fx.records.Size(context.Background())
			require.NoError(t, err)
			assert.Zero(t, size)
		})
	}
}

func TestDispatcher_TransientExhaustionPostsErrorNotice(t *testing.T) {
	fx := newDispatcherFixture(t, func(fx *dispatcherFixture) {
		fx.resolver.fn = func(models.TriggerEvent) (*transcript.Transcript, error) {
			return nil, apperrors.ErrTransient.WithCause(assert.AnError)
		}
	})

	outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.Equal(t, 3, fx.resolver.callCount())

	deliveries := fx.sink.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, delivery.KindError, deliveries[0].kind)
	assert.True(t, strings.HasPrefix(deliveries[0].content, delivery.ErrorMarker))
	assert.Contains(t, deliveries[0].content, "resolve")

	rec, ok, err := fx.records.Get(context.Background(), "meeting-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
}

func TestDispatcher_NotFoundEscalatesImmediately(t *testing.T) {
	fx := newDispatcherFixture(t, func(fx *dispatcherFixture) {
		fx.resolver.fn = func(models.TriggerEvent) (*transcript.Transcript, error) {
			return nil, apperrors.ErrNotFound.WithDetail("transcript_id", "meeting-1")
		}
	})

	outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.Equal(t, 1, fx.resolver.callCount())

	deliveries := fx.sink.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, delivery.KindError, deliveries[0].kind)
}

func TestDispatcher_ModelRefusalIsTerminal(t *testing.T) {
	fx := newDispatcherFixture(t, func(fx *dispatcherFixture) {
		fx.generator.err = apperrors.ErrModelRefusal.WithCause(assert.AnError)
	})

	outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.Equal(t, 1, fx.generator.callCount())
	assert.True(t, apperrors.IsModelRefusal(err))

	deliveries := fx.sink.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, delivery.KindError, deliveries[0].kind)
	assert.Contains(t, deliveries[0].content, "generate")
}

func TestDispatcher_StagePanicBecomesFailure(t *testing.T) {
	fx := newDispatcherFixture(t, func(fx *dispatcherFixture) {
		fx.resolver.fn = func(models.TriggerEvent) (*transcript.Transcript, error) {
			panic("resolver blew up")
		}
	})

	outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	// A panic is fatal, not retryable.
	assert.Equal(t, 1, fx.resolver.callCount())

	deliveries := fx.sink.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, delivery.KindError, deliveries[0].kind)
}

func TestDispatcher_ClaimErrorFailsClosed(t *testing.T) {
	fx := newDispatcherFixture(t, nil)
	fx.dispatcher.records = &failingRecordStore{}

	outcome, err := fx.dispatcher.Handle(context.Background(), webhookTrigger("meeting-1"))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, outcome)
	assert.True(t, apperrors.IsTransient(err))

	// Without a claim the pipeline must not run.
	assert.Zero(t, fx.resolver.callCount())
	assert.Empty(t, fx.sink.deliveries())
}

func TestDispatcher_FailedEventStaysSettled(t *testing.T) {
	fx := newDispatcherFixture(t, func(fx *dispatcherFixture) {
		fx.resolver.fn = func(models.TriggerEvent) (*transcript.Transcript, error) {
			return nil, apperrors.ErrNotFound
		}
	})
	ctx := context.Background()

	outcome, err := fx.dispatcher.Handle(ctx, webhookTrigger("meeting-1"))
	require.Error(t, err)
	require.Equal(t, models.OutcomeFailed, outcome)

	// A redelivery of the same event inside the window is a duplicate,
	// not another run.
	outcome, err = fx.dispatcher.Handle(ctx, webhookTrigger("meeting-1"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, outcome)
	assert.Equal(t, 1, fx.resolver.callCount())
}
