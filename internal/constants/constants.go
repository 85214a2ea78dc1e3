package constants

import "time"

const (
	ServiceName = "followup-agent"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	// EventTypeTranscriptionCompleted is the only webhook event kind that
	// starts a pipeline run.
	EventTypeTranscriptionCompleted = "Transcription completed"
)

const (
	CacheKeyPrefixDelivery = "followup:delivery:"
)

const (
	DefaultDedupTTL        = 24 * time.Hour
	DefaultMaxDedupRecords = 10000
)

const (
	DefaultStageTimeout = 60 * time.Second
)

const (
	// SlackMaxMessageLen is Slack's hard limit for a single message body.
	SlackMaxMessageLen = 4000
)

const (
	DefaultAnthropicAPIURL = "https://api.anthropic.com/v1/messages"
	DefaultFirefliesAPIURL = "https://api.fireflies.ai/graphql"
)

const (
	ExtractionModeHeuristic = "heuristic"
	ExtractionModeModel     = "model"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)
