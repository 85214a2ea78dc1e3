package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/internal/transcript"
)

// Completer invokes the generative model for the model-assisted
// extraction strategy.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

const extractionPrompt = `Extract the following fields from this meeting note and respond with ONLY a JSON object, no prose:
{"client_or_organizer": string, "participants": [string], "discussion_points": [string], "action_items": [string]}

Use "Unknown Client" when no client or organizer is identifiable. Keep each discussion point and action item short.

Meeting note:
%s`

const extractionMaxTokens = 512

// Extractor normalizes a raw meeting record into a canonical Context.
// Structured records pass provider fields through; free text goes through
// either the heuristic parser or a constrained model call, selected by
// configuration.
type Extractor struct {
	mode   string
	model  Completer
	logger logger.Logger
}

func NewExtractor(mode string, model Completer, log logger.Logger) *Extractor {
	if mode == "" {
		mode = constants.ExtractionModeHeuristic
	}
	return &Extractor{
		mode:   mode,
		model:  model,
		logger: log,
	}
}

// Extract never returns a partially-populated Context: every field
// defaults to a placeholder. Only the model-assisted free-text path can
// fail, and only with a retryable error.
func (e *Extractor) Extract(ctx context.Context, t *transcript.Transcript) (Context, error) {
	if t == nil {
		return NewContext(), nil
	}

	if t.IsStructured() {
		return e.fromStructured(t), nil
	}

	text := t.RawText
	if text == "" {
		text = joinSentences(t.Sentences)
	}

	if e.mode == constants.ExtractionModeModel && e.model != nil {
		mctx, err := e.fromModel(ctx, text)
		if err != nil {
			return Context{}, err
		}
		return mctx, nil
	}

	return parseFreeText(text), nil
}

func (e *Extractor) fromStructured(t *transcript.Transcript) Context {
	mctx := NewContext()
	mctx.RawText = joinSentences(t.Sentences)

	if names := t.AttendeeNames(); len(names) > 0 {
		mctx.ClientOrOrganizer = names[0]
		mctx.Participants = names
	} else if len(t.Participants) > 0 {
		mctx.ClientOrOrganizer = t.Participants[0]
		mctx.Participants = append(mctx.Participants, t.Participants...)
	} else if t.OrganizerEmail != "" {
		mctx.ClientOrOrganizer = t.OrganizerEmail
	}

	switch {
	case len(t.Summary.TopicsDiscussed) > 0:
		mctx.DiscussionPoints = append(mctx.DiscussionPoints, t.Summary.TopicsDiscussed...)
	case t.Summary.Overview != "":
		mctx.DiscussionPoints = append(mctx.DiscussionPoints, t.Summary.Overview)
	default:
		mctx.DiscussionPoints = KeyDiscussion(t.Sentences, 20)
	}

	mctx.ActionItems = append(mctx.ActionItems, t.Summary.ActionItems...)

	return mctx.Normalize()
}

func (e *Extractor) fromModel(ctx context.Context, text string) (Context, error) {
	raw, err := e.model.Complete(ctx, fmt.Sprintf(extractionPrompt, text), extractionMaxTokens)
	if err != nil {
		return Context{}, err
	}

	var parsed struct {
		ClientOrOrganizer string   `json:"client_or_organizer"`
		Participants      []string `json:"participants"`
		DiscussionPoints  []string `json:"discussion_points"`
		ActionItems       []string `json:"action_items"`
	}

	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		// Unparsable model output is not worth a retry; the heuristic
		// parser still yields a complete Context.
		e.logger.WarnwCtx(ctx, "Model extraction output was not valid JSON, falling back to heuristic parse",
			"error", err,
		)
		mctx := parseFreeText(text)
		return mctx, nil
	}

	mctx := Context{
		ClientOrOrganizer: parsed.ClientOrOrganizer,
		Participants:      parsed.Participants,
		DiscussionPoints:  parsed.DiscussionPoints,
		ActionItems:       parsed.ActionItems,
		RawText:           text,
	}
	return mctx.Normalize(), nil
}

var (
	sentenceSplitRegex = regexp.MustCompile(`[.!?]\s+|\n+`)
	metWithRegex       = regexp.MustCompile(`(?i)^(?:met|meeting|call|spoke)\s+with\s+(.+)$`)
	actionRegex        = regexp.MustCompile(`(?i)^(?:action(?:\s+item)?|todo|follow[- ]?up)\s*:\s*(.+)$`)
)

// parseFreeText is the legacy heuristic for raw channel messages like
// "Met with Acme Corp. Discussed pricing. Action: send proposal by Friday."
func parseFreeText(text string) Context {
	mctx := NewContext()
	mctx.RawText = text

	for _, segment := range sentenceSplitRegex.Split(text, -1) {
		segment = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(segment), "."))
		if segment == "" {
			continue
		}

		if m := actionRegex.FindStringSubmatch(segment); m != nil {
			mctx.ActionItems = append(mctx.ActionItems, strings.TrimSpace(m[1]))
			continue
		}

		if m := metWithRegex.FindStringSubmatch(segment); m != nil {
			if mctx.ClientOrOrganizer == UnknownClient {
				mctx.ClientOrOrganizer = strings.TrimSpace(m[1])
			}
			continue
		}

		mctx.DiscussionPoints = append(mctx.DiscussionPoints, segment)
	}

	return mctx.Normalize()
}

func joinSentences(sentences []transcript.Sentence) string {
	parts := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
