package meeting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/internal/transcript"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
)

type stubCompleter struct {
	calls    int
	response string
	err      error
}

func (s *stubCompleter) Complete(_ context.Context, prompt string, _ int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func heuristicExtractor() *Extractor {
	return NewExtractor(constants.ExtractionModeHeuristic, nil, logger.NopLogger())
}

func TestExtract_NilTranscript(t *testing.T) {
	mctx, err := heuristicExtractor().Extract(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, UnknownClient, mctx.ClientOrOrganizer)
	assert.NotNil(t, mctx.Participants)
	assert.NotNil(t, mctx.DiscussionPoints)
	assert.NotNil(t, mctx.ActionItems)
}

func TestExtract_StructuredTranscript(t *testing.T) {
	tr := &transcript.Transcript{
		Title:          "Q3 Planning",
		OrganizerEmail: "host@example.com",
		MeetingAttendees: []transcript.Attendee{
			{DisplayName: "Jordan Lee"},
			{Name: "Sam Reyes"},
			{Email: "pat@example.com"},
		},
		Sentences: []transcript.Sentence{
			{SpeakerName: "Jordan Lee", Text: "We agreed to expand the pilot program."},
		},
		Summary: &transcript.Summary{
			ActionItems:     []string{"Send updated roadmap", "Schedule pilot kickoff"},
			Overview:        "Quarterly planning discussion.",
			TopicsDiscussed: []string{"Pilot expansion", "Budget"},
		},
	}

	mctx, err := heuristicExtractor().Extract(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, "Jordan Lee", mctx.ClientOrOrganizer)
	assert.Equal(t, []string{"Jordan Lee", "Sam Reyes", "pat@example.com"}, mctx.Participants)
	assert.Equal(t, []string{"Pilot expansion", "Budget"}, mctx.DiscussionPoints)
	assert.Equal(t, []string{"Send updated roadmap", "Schedule pilot kickoff"}, mctx.ActionItems)
}

func TestExtract_StructuredFallsBackToOverview(t *testing.T) {
	tr := &transcript.Transcript{
		Summary: &transcript.Summary{
			Overview: "Short sync about the release checklist.",
		},
	}

	mctx, err := heuristicExtractor().Extract(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, UnknownClient, mctx.ClientOrOrganizer)
	assert.Equal(t, []string{"Short sync about the release checklist."}, mctx.DiscussionPoints)
}

func TestExtract_HeuristicFreeText(t *testing.T) {
	tr := &transcript.Transcript{
		RawText: "Met with Acme Corp. Discussed pricing for the enterprise tier. Action: send proposal by Friday.",
	}

	mctx, err := heuristicExtractor().Extract(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", mctx.ClientOrOrganizer)
	assert.Equal(t, []string{"Discussed pricing for the enterprise tier"}, mctx.DiscussionPoints)
	assert.Equal(t, []string{"send proposal by Friday"}, mctx.ActionItems)
}

func TestExtract_HeuristicVariants(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantClient string
		wantAction []string
	}{
		{
			name:       "todo marker",
			text:       "Spoke with Globex about onboarding. TODO: share the security questionnaire.",
			wantClient: "Globex about onboarding",
			wantAction: []string{"share the security questionnaire"},
		},
		{
			name:       "follow-up marker",
			text:       "Call with Initech.\nFollow-up: book the technical deep dive.",
			wantClient: "Initech",
			wantAction: []string{"book the technical deep dive"},
		},
		{
			name:       "no client sentence",
			text:       "Discussed integration timelines. Reviewed the open issues list.",
			wantClient: UnknownClient,
			wantAction: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mctx, err := heuristicExtractor().Extract(context.Background(), &transcript.Transcript{RawText: tt.text})
			require.NoError(t, err)
			assert.Equal(t, tt.wantClient, mctx.ClientOrOrganizer)
			assert.Equal(t, tt.wantAction, mctx.ActionItems)
		})
	}
}

func TestExtract_ModelMode(t *testing.T) {
	model := &stubCompleter{
		response: `{"client_or_organizer": "Acme Corp", "participants": ["Dana"], "discussion_points": ["Enterprise pricing"], "action_items": ["Send proposal"]}`,
	}
	extractor := NewExtractor(constants.ExtractionModeModel, model, logger.NopLogger())

	mctx, err := extractor.Extract(context.Background(), &transcript.Transcript{RawText: "Met with Acme Corp."})
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls)
	assert.Equal(t, "Acme Corp", mctx.ClientOrOrganizer)
	assert.Equal(t, []string{"Dana"}, mctx.Participants)
	assert.Equal(t, []string{"Enterprise pricing"}, mctx.DiscussionPoints)
	assert.Equal(t, []string{"Send proposal"}, mctx.ActionItems)
}

func TestExtract_ModelModeStripsCodeFence(t *testing.T) {
	model := &stubCompleter{
		response: "```json\n{\"client_or_organizer\": \"Globex\", \"participants\": [], \"discussion_points\": [], \"action_items\": []}\n```",
	}
	extractor := NewExtractor(constants.ExtractionModeModel, model, logger.NopLogger())

	mctx, err := extractor.Extract(context.Background(), &transcript.Transcript{RawText: "notes"})
	require.NoError(t, err)
	assert.Equal(t, "Globex", mctx.ClientOrOrganizer)
}

func TestExtract_ModelModeBadJSONFallsBack(t *testing.T) {
	model := &stubCompleter{response: "Sorry, here is a summary instead of JSON."}
	extractor := NewExtractor(constants.ExtractionModeModel, model, logger.NopLogger())

	mctx, err := extractor.Extract(context.Background(), &transcript.Transcript{
		RawText: "Met with Acme Corp. Action: send proposal by Friday.",
	})
	require.NoError(t, err)

	// The heuristic parse still yields a complete context.
	assert.Equal(t, "Acme Corp", mctx.ClientOrOrganizer)
	assert.Equal(t, []string{"send proposal by Friday"}, mctx.ActionItems)
}

func TestExtract_ModelModeErrorPropagates(t *testing.T) {
	model := &stubCompleter{err: apperrors.ErrTransient.WithCause(assert.AnError)}
	extractor := NewExtractor(constants.ExtractionModeModel, model, logger.NopLogger())

	_, err := extractor.Extract(context.Background(), &transcript.Transcript{RawText: "notes"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestExtract_SentencesJoinedWhenNoRawText(t *testing.T) {
	tr := &transcript.Transcript{
		Sentences: []transcript.Sentence{
			{Text: "Met with Acme Corp."},
			{Text: "Action: confirm the contract terms."},
		},
	}

	mctx, err := heuristicExtractor().Extract(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", mctx.ClientOrOrganizer)
	assert.Equal(t, []string{"confirm the contract terms"}, mctx.ActionItems)
}
