package draft

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/internal/meeting"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
)

// Completer invokes the generative model with a bounded prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Generator builds the generation prompt and produces one DraftResult
// per pipeline run. Refusals get a single simplified-prompt retry here;
// transient failures propagate to the dispatcher's retry policy.
type Generator struct {
	model     Completer
	maxTokens int
	templates []string
	logger    logger.Logger
}

func NewGenerator(model Completer, maxTokens int, templates []string, log logger.Logger) *Generator {
	return &Generator{
		model:     model,
		maxTokens: maxTokens,
		templates: templates,
		logger:    log,
	}
}

// LoadTemplates reads reference email templates (*.txt) from dir in a
// stable order. A missing directory is not an error: templates are style
// exemplars, not required input.
func LoadTemplates(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".txt" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	templates := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			templates = append(templates, text)
		}
	}
	return templates, nil
}

// Generate invokes the model once with the full prompt; on a refusal it
// retries exactly once with the simplified prompt, then escalates.
func (g *Generator) Generate(ctx context.Context, mctx meeting.Context, discussion []string, sourceEventID string) (*models.DraftResult, error) {
	prompt := BuildEmailPrompt(mctx, discussion, meeting.TechnologyTerms(mctx.RawText), g.templates)

	body, err := g.model.Complete(ctx, prompt, g.maxTokens)
	if err != nil {
		if !apperrors.IsModelRefusal(err) {
			return nil, err
		}

		g.logger.WarnwCtx(ctx, "Model refused full prompt, retrying with simplified prompt",
			"source_event_id", sourceEventID,
		)

		body, err = g.model.Complete(ctx, BuildSimplifiedPrompt(mctx), g.maxTokens)
		if err != nil {
			return nil, err
		}
	}

	return &models.DraftResult{
		BodyText:      body,
		GeneratedAt:   time.Now(),
		SourceEventID: sourceEventID,
	}, nil
}
