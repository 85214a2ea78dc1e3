package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/models"
)

// Dispatcher runs one trigger event to a terminal outcome.
type Dispatcher interface {
	Handle(ctx context.Context, trigger models.TriggerEvent) (models.DeliveryOutcome, error)
}

// Handler exposes the two trigger ingestion surfaces: the Fireflies
// webhook and the Slack Events API callback.
type Handler struct {
	dispatcher    Dispatcher
	signingSecret string
	logger        logger.Logger
}

func NewHandler(dispatcher Dispatcher, signingSecret string, log logger.Logger) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		signingSecret: signingSecret,
		logger:        log,
	}
}

// RegisterRoutes mounts the ingestion endpoints. The bare POST / route
// is kept for older Fireflies webhook configurations that predate the
// named path.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/", h.HandleFirefliesWebhook)
	router.POST("/webhook/fireflies", h.HandleFirefliesWebhook)
	router.POST("/slack/events", h.HandleSlackEvents)
}

type firefliesWebhookPayload struct {
	MeetingID         string `json:"meetingId"`
	EventType         string `json:"eventType"`
	ClientReferenceID string `json:"clientReferenceId"`
}

// HandleFirefliesWebhook processes the webhook synchronously so that a
// non-2xx status reaches the provider and drives its redelivery.
func (h *Handler) HandleFirefliesWebhook(c *gin.Context) {
	var payload firefliesWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrValidation.WithCause(err)))
		return
	}

	if payload.EventType == constants.EventTypeTranscriptionCompleted && payload.MeetingID == "" {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrValidation.WithDetail("field", "meetingId")))
		return
	}

	trigger := models.TriggerEvent{
		Source:     models.SourceWebhookCall,
		ExternalID: payload.MeetingID,
		RawPayload: map[string]interface{}{
			"meetingId":         payload.MeetingID,
			"eventType":         payload.EventType,
			"clientReferenceId": payload.ClientReferenceID,
		},
	}

	outcome, err := h.dispatcher.Handle(c.Request.Context(), trigger)
	if err != nil {
		c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

// HandleSlackEvents answers the Events API: echoes url_verification
// challenges and acknowledges message callbacks immediately, running the
// pipeline in the background as Slack's 3-second ack window requires.
func (h *Handler) HandleSlackEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrValidation.WithCause(err)))
		return
	}

	if h.signingSecret != "" {
		if err := h.verifySignature(c.Request.Header, body); err != nil {
			c.JSON(http.StatusUnauthorized, apperrors.ToErrorResponse(
				apperrors.ErrUnauthorized.WithCause(err)))
			return
		}
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrValidation.WithCause(err)))
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
				apperrors.ErrValidation.WithCause(err)))
			return
		}
		c.String(http.StatusOK, challenge.Challenge)

	case slackevents.CallbackEvent:
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			h.dispatchMessage(c.Request.Context(), msg)
		}
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})

	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *Handler) dispatchMessage(ctx context.Context, msg *slackevents.MessageEvent) {
	trigger := models.TriggerEvent{
		Source:     models.SourceChannelMessage,
		ExternalID: msg.TimeStamp,
		ChannelRef: msg.Channel,
		ThreadRef:  msg.TimeStamp,
		RawPayload: map[string]interface{}{
			"text":    msg.Text,
			"bot_id":  msg.BotID,
			"subtype": msg.SubType,
		},
	}

	// Detach from the request context so the acked response does not
	// cancel the in-flight pipeline.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := h.dispatcher.Handle(bgCtx, trigger); err != nil {
			h.logger.ErrorwCtx(bgCtx, "Background event handling failed",
				"event_id", trigger.ExternalID,
				"error", err,
			)
		}
	}()
}

func (h *Handler) verifySignature(header http.Header, body []byte) error {
	verifier, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := verifier.Write(body); err != nil {
		return err
	}
	return verifier.Ensure()
}
