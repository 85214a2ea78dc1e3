package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/COG-GTM/fireflies-agent/internal/config"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
)

// transcriptQuery mirrors the provider's GraphQL schema for a single
// transcript lookup.
const transcriptQuery = `
query Transcript($transcriptId: String!) {
    transcript(id: $transcriptId) {
        id
        title
        date
        dateString
        duration
        organizer_email
        host_email
        participants
        meeting_attendees {
            displayName
            email
            name
        }
        sentences {
            speaker_name
            text
            start_time
        }
        summary {
            action_items
            overview
            keywords
            topics_discussed
        }
        transcript_url
    }
}`

// Client queries the transcript provider's GraphQL endpoint.
type Client struct {
	apiURL string
	apiKey string
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg config.FirefliesConfig, log logger.Logger) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphqlResponse struct {
	Data *struct {
		Transcript *Transcript `json:"transcript"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// Fetch retrieves the full transcript by id. A null transcript in a 200
// response means the identifier is permanently invalid (NotFound, no
// retry); network failures, timeouts, 429 and 5xx are transient.
func (c *Client) Fetch(ctx context.Context, transcriptID string) (*Transcript, error) {
	body, err := json.Marshal(graphqlRequest{
		Query:     transcriptQuery,
		Variables: map[string]interface{}{"transcriptId": transcriptID},
	})
	if err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.ErrTransient.WithCause(fmt.Errorf("transcript provider request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to body handling
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.ErrUnauthorized.WithCause(fmt.Errorf("transcript provider returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperrors.ErrTransient.WithCause(fmt.Errorf("transcript provider returned %d", resp.StatusCode))
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, apperrors.ErrValidation.WithCause(fmt.Errorf("transcript provider returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, apperrors.ErrTransient.WithCause(fmt.Errorf("failed to decode provider response: %w", err))
	}

	if len(gqlResp.Errors) > 0 {
		return nil, c.mapGraphQLErrors(transcriptID, gqlResp.Errors)
	}

	if gqlResp.Data == nil || gqlResp.Data.Transcript == nil {
		return nil, apperrors.ErrNotFound.WithDetail("transcript_id", transcriptID)
	}

	c.logger.DebugwCtx(ctx, "Fetched transcript",
		"transcript_id", gqlResp.Data.Transcript.ID,
		"title", gqlResp.Data.Transcript.Title,
		"sentences", len(gqlResp.Data.Transcript.Sentences),
	)

	return gqlResp.Data.Transcript, nil
}

func (c *Client) mapGraphQLErrors(transcriptID string, errs []graphqlError) error {
	first := errs[0]
	cause := fmt.Errorf("graphql error: %s", first.Message)

	code := strings.ToLower(first.Extensions.Code)
	switch {
	case strings.Contains(code, "not_found") || strings.Contains(strings.ToLower(first.Message), "not found"):
		return apperrors.ErrNotFound.WithCause(cause).WithDetail("transcript_id", transcriptID)
	case strings.Contains(code, "forbidden") || strings.Contains(code, "unauth"):
		return apperrors.ErrUnauthorized.WithCause(cause)
	default:
		return apperrors.ErrTransient.WithCause(cause)
	}
}
