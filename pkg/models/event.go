package models

import "time"

// Source identifies how a trigger event entered the system.
type Source string

const (
	SourceChannelMessage Source = "channel_message"
	SourceWebhookCall    Source = "webhook_call"
)

// TriggerEvent is an inbound signal that may start one pipeline run.
// Immutable once constructed; discarded after the run completes or fails
// terminally.
type TriggerEvent struct {
	Source     Source
	ExternalID string
	ChannelRef string
	ThreadRef  string
	RawPayload map[string]interface{}
}

// DeliveryOutcome is the dispatcher's verdict for one trigger event.
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeDuplicate DeliveryOutcome = "duplicate"
	OutcomeFiltered  DeliveryOutcome = "filtered"
	OutcomeFailed    DeliveryOutcome = "failed"
)

// DeliveryStatus is the lifecycle state of a DeliveryRecord.
type DeliveryStatus string

const (
	StatusInFlight  DeliveryStatus = "in_flight"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// DeliveryRecord enforces at-most-once delivery per external id. Created
// when a run claims an event, updated on completion, retained for the
// dedup window.
type DeliveryRecord struct {
	EventID   string         `json:"event_id"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DraftResult is the generated email draft produced once per accepted
// trigger event.
type DraftResult struct {
	BodyText      string
	GeneratedAt   time.Time
	SourceEventID string
}
