package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/metrics"
)

// Kind distinguishes a success draft from an error notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// slack API error strings that mean the target is permanently wrong.
var fatalSlackErrors = []string{
	"channel_not_found",
	"not_in_channel",
	"is_archived",
	"invalid_auth",
	"account_inactive",
	"token_revoked",
}

// Sink posts exactly one message per Deliver call, threaded under the
// originating event. It performs no retries itself; the dispatcher owns
// retry policy.
type Sink struct {
	client *slack.Client
	logger logger.Logger
}

func NewSink(client *slack.Client, log logger.Logger) *Sink {
	return &Sink{
		client: client,
		logger: log,
	}
}

// ResolveChannelID looks up a channel id by name, paging through the
// conversations list. Called once at startup; the result is passed into
// the dispatcher as configuration.
func (s *Sink) ResolveChannelID(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		Limit:           200,
		ExcludeArchived: true,
	}

	for {
		channels, cursor, err := s.client.GetConversationsContext(ctx, params)
		if err != nil {
			return "", mapSlackError(err)
		}

		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}

		if cursor == "" {
			return "", apperrors.ErrNotFound.WithCause(fmt.Errorf("channel %q not found", name))
		}
		params.Cursor = cursor
	}
}

// Deliver posts content to (channelRef, threadRef). Long content is
// split under Slack's message limit; the first chunk carries the thread
// reference so the whole delivery stays in one thread.
func (s *Sink) Deliver(ctx context.Context, channelRef, threadRef, content string, kind Kind) error {
	chunks := SplitMessage(content, constants.SlackMaxMessageLen)

	parentTS := threadRef
	for i, chunk := range chunks {
		opts := []slack.MsgOption{
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionDisableLinkUnfurl(),
		}
		if parentTS != "" {
			opts = append(opts, slack.MsgOptionTS(parentTS))
		}

		_, ts, err := s.client.PostMessageContext(ctx, channelRef, opts...)
		if err != nil {
			metrics.DeliveriesTotal.WithLabelValues(string(kind), "error").Inc()
			return mapSlackError(err)
		}

		// Follow-up chunks thread under the first one when the trigger
		// did not supply a thread.
		if i == 0 && parentTS == "" {
			parentTS = ts
		}
	}

	metrics.DeliveriesTotal.WithLabelValues(string(kind), "ok").Inc()
	s.logger.DebugwCtx(ctx, "Posted message",
		"channel", channelRef,
		"thread_ts", threadRef,
		"kind", string(kind),
		"chunks", len(chunks),
	)

	return nil
}

func mapSlackError(err error) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return apperrors.ErrTransient.WithCause(err)
	}

	msg := err.Error()
	for _, fatal := range fatalSlackErrors {
		if strings.Contains(msg, fatal) {
			return apperrors.ErrValidation.WithCause(err)
		}
	}

	return apperrors.ErrTransient.WithCause(err)
}
