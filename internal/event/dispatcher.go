package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/delivery"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/internal/meeting"
	"github.com/COG-GTM/fireflies-agent/internal/transcript"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/logging"
	"github.com/COG-GTM/fireflies-agent/pkg/metrics"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
	"github.com/COG-GTM/fireflies-agent/pkg/retry"
)

// Resolver retrieves the full meeting record for a trigger.
type Resolver interface {
	Resolve(ctx context.Context, trigger models.TriggerEvent) (*transcript.Transcript, error)
}

// Extractor normalizes a meeting record into a canonical context.
type Extractor interface {
	Extract(ctx context.Context, t *transcript.Transcript) (meeting.Context, error)
}

// Generator produces the email draft from a canonical context.
type Generator interface {
	Generate(ctx context.Context, mctx meeting.Context, discussion []string, sourceEventID string) (*models.DraftResult, error)
}

// Sink posts one message per call to the target channel/thread.
type Sink interface {
	Deliver(ctx context.Context, channelRef, threadRef, content string, kind delivery.Kind) error
}

// Config is the dispatcher's startup configuration. TargetChannelID is
// resolved once at bootstrap by name lookup and passed in here; the
// dispatcher holds no ambient globals.
type Config struct {
	TargetChannelID string
	Policy          retry.Policy
	StageTimeout    time.Duration
}

// Dispatcher drives the event-to-draft pipeline: filter, dedup, resolve,
// extract, generate, deliver. It is the only component that decides
// retry vs escalate, and the only writer of DeliveryRecords.
type Dispatcher struct {
	cfg       Config
	resolver  Resolver
	extractor Extractor
	generator Generator
	sink      Sink
	records   RecordStore
	locks     *keyedMutex
	logger    logger.Logger
}

func NewDispatcher(cfg Config, resolver Resolver, extractor Extractor, generator Generator, sink Sink, records RecordStore, log logger.Logger) *Dispatcher {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = constants.DefaultStageTimeout
	}
	return &Dispatcher{
		cfg:       cfg,
		resolver:  resolver,
		extractor: extractor,
		generator: generator,
		sink:      sink,
		records:   records,
		locks:     newKeyedMutex(),
		logger:    log,
	}
}

// Handle processes one trigger event to a terminal outcome. Accepted,
// non-duplicate events always produce exactly one visible message in the
// originating thread: a draft or an error notice.
func (d *Dispatcher) Handle(ctx context.Context, trigger models.TriggerEvent) (models.DeliveryOutcome, error) {
	start := time.Now()
	ctx = logging.WithEventID(ctx, trigger.ExternalID)

	if !d.accepts(ctx, trigger) {
		metrics.TriggerEventsTotal.WithLabelValues(string(trigger.Source), string(models.OutcomeFiltered)).Inc()
		return models.OutcomeFiltered, nil
	}

	// Serialize runs per external id; a duplicate arriving mid-flight
	// blocks here, then loses the claim below.
	unlock := d.locks.Lock(trigger.ExternalID)
	defer unlock()

	claimed, err := d.records.Claim(ctx, trigger.ExternalID)
	if err != nil {
		// No claim means no run: surfacing the error lets the webhook
		// caller retry later without risking a double delivery.
		return models.OutcomeFailed, apperrors.ErrTransient.WithCause(fmt.Errorf("dedup store claim failed: %w", err))
	}
	if !claimed {
		d.logger.InfowCtx(ctx, "Duplicate trigger suppressed")
		metrics.DuplicateEventsTotal.Inc()
		metrics.TriggerEventsTotal.WithLabelValues(string(trigger.Source), string(models.OutcomeDuplicate)).Inc()
		return models.OutcomeDuplicate, nil
	}

	outcome, err := d.run(ctx, trigger)

	metrics.TriggerEventsTotal.WithLabelValues(string(trigger.Source), string(outcome)).Inc()
	metrics.ObservePipelineDuration(string(outcome), time.Since(start))
	if size, sizeErr := d.records.Size(ctx); sizeErr == nil {
		metrics.DedupRecordCount.Set(float64(size))
	}

	return outcome, err
}

func (d *Dispatcher) run(ctx context.Context, trigger models.TriggerEvent) (models.DeliveryOutcome, error) {
	var t *transcript.Transcript
	attempts, err := d.runStage(ctx, "resolve", func(sctx context.Context) error {
		var stageErr error
		t, stageErr = d.resolver.Resolve(sctx, trigger)
		return stageErr
	})
	if err != nil {
		return d.fail(ctx, trigger, "resolve", attempts, err)
	}

	var mctx meeting.Context
	attempts, err = d.runStage(ctx, "extract", func(sctx context.Context) error {
		var stageErr error
		mctx, stageErr = d.extractor.Extract(sctx, t)
		return stageErr
	})
	if err != nil {
		return d.fail(ctx, trigger, "extract", attempts, err)
	}

	discussion := meeting.KeyDiscussion(t.Sentences, 0)

	var result *models.DraftResult
	attempts, err = d.runStage(ctx, "generate", func(sctx context.Context) error {
		var stageErr error
		result, stageErr = d.generator.Generate(sctx, mctx, discussion, trigger.ExternalID)
		return stageErr
	})
	if err != nil {
		return d.fail(ctx, trigger, "generate", attempts, err)
	}

	content := delivery.FormatDraft(t, mctx, result.BodyText)
	channelRef, threadRef := d.target(trigger)

	attempts, err = d.runStage(ctx, "deliver", func(sctx context.Context) error {
		return d.sink.Deliver(sctx, channelRef, threadRef, content, delivery.KindSuccess)
	})
	if err != nil {
		return d.fail(ctx, trigger, "deliver", attempts, err)
	}

	if err := d.records.MarkDelivered(ctx, trigger.ExternalID, attempts); err != nil {
		d.logger.ErrorwCtx(ctx, "Failed to settle delivery record", "error", err)
	}

	d.logger.InfowCtx(ctx, "Draft delivered",
		"channel", channelRef,
		"draft_chars", len(result.BodyText),
	)

	return models.OutcomeDelivered, nil
}

// runStage applies the shared retry policy and per-stage timeout to one
// pipeline stage, recording metrics per attempt.
func (d *Dispatcher) runStage(ctx context.Context, stage string, fn func(context.Context) error) (int, error) {
	attempts := 0

	err := retry.DoWithCallback(ctx, d.cfg.Policy, func() error {
		attempts++
		sctx, cancel := context.WithTimeout(ctx, d.cfg.StageTimeout)
		defer cancel()

		start := time.Now()
		stageErr := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = apperrors.RecoverPanic(r)
				}
			}()
			return fn(sctx)
		}()
		if stageErr != nil && errors.Is(stageErr, context.DeadlineExceeded) && ctx.Err() == nil {
			stageErr = apperrors.ErrTimeout.WithCause(stageErr).WithDetail("stage", stage)
		}

		status := "ok"
		if stageErr != nil {
			status = "error"
		}
		metrics.ObserveStageDuration(stage, status, time.Since(start))

		return stageErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.StageRetriesTotal.WithLabelValues(stage).Inc()
		d.logger.WarnwCtx(ctx, "Stage failed, retrying",
			"stage", stage,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})

	return attempts, err
}

// fail settles the record as Failed and posts the visible error notice.
// The end user is never left without feedback once an event is accepted.
func (d *Dispatcher) fail(ctx context.Context, trigger models.TriggerEvent, stage string, attempts int, cause error) (models.DeliveryOutcome, error) {
	d.logger.ErrorwCtx(ctx, "Pipeline stage exhausted",
		"stage", stage,
		"attempts", attempts,
		"error", cause,
	)

	if err := d.records.MarkFailed(ctx, trigger.ExternalID, attempts); err != nil {
		d.logger.ErrorwCtx(ctx, "Failed to settle delivery record", "error", err)
	}

	channelRef, threadRef := d.target(trigger)
	notice := delivery.FormatErrorNotice(trigger.ExternalID, stage, cause)

	noticeErr := retry.Do(ctx, d.cfg.Policy, func() error {
		return d.sink.Deliver(ctx, channelRef, threadRef, notice, delivery.KindError)
	})
	if noticeErr != nil {
		// Out of options: the failure stays visible in logs and metrics
		// even though the thread never saw it.
		d.logger.ErrorwCtx(ctx, "Error notice delivery failed after retries",
			"stage", stage,
			"error", noticeErr,
		)
	}

	return models.OutcomeFailed, cause
}

// accepts applies source-specific filtering with no side effects.
func (d *Dispatcher) accepts(ctx context.Context, trigger models.TriggerEvent) bool {
	switch trigger.Source {
	case models.SourceChannelMessage:
		if trigger.ChannelRef != d.cfg.TargetChannelID {
			return false
		}
		if botID, _ := trigger.RawPayload["bot_id"].(string); botID != "" {
			return false
		}
		if subtype, _ := trigger.RawPayload["subtype"].(string); subtype != "" {
			return false
		}
		return trigger.ExternalID != ""

	case models.SourceWebhookCall:
		eventType, _ := trigger.RawPayload["eventType"].(string)
		if eventType != constants.EventTypeTranscriptionCompleted {
			d.logger.DebugwCtx(ctx, "Ignoring webhook event type", "event_type", eventType)
			return false
		}
		return trigger.ExternalID != ""

	default:
		return false
	}
}

// target returns the delivery destination: the trigger's own channel and
// thread when present, otherwise the configured target channel.
func (d *Dispatcher) target(trigger models.TriggerEvent) (channelRef, threadRef string) {
	channelRef = trigger.ChannelRef
	if channelRef == "" {
		channelRef = d.cfg.TargetChannelID
	}
	return channelRef, trigger.ThreadRef
}
