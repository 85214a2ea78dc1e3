package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetEventID(ctx))
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetServiceName(ctx))

	ctx = WithEventID(ctx, "meeting-1")
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithServiceName(ctx, "followup-agent")

	assert.Equal(t, "meeting-1", GetEventID(ctx))
	assert.Equal(t, "req-42", GetRequestID(ctx))
	assert.Equal(t, "followup-agent", GetServiceName(ctx))
}

func TestGetLogFields(t *testing.T) {
	ctx := WithEventID(context.Background(), "meeting-1")
	ctx = WithServiceName(ctx, "followup-agent")

	fields := GetLogFields(ctx)
	assert.Equal(t, []interface{}{
		"event_id", "meeting-1",
		"service_name", "followup-agent",
	}, fields)

	assert.Empty(t, GetLogFields(context.Background()))
}
