package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEventKeepsLiteralMessage(t *testing.T) {
	// Messages containing format verbs must pass through untouched
	AddEvent("info", "sampling at 50% of requests")
	AddEvent("warning", "drop rate %d exceeded")
	AddEvent("error", "writer failed: %v")

	events := GetEventLog()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "writer failed: %v", events[0].Message)
	assert.Equal(t, "drop rate %d exceeded", events[1].Message)
	assert.Equal(t, "sampling at 50% of requests", events[2].Message)
}

func TestEventLogCapped(t *testing.T) {
	for i := 0; i < 150; i++ {
		AddEvent("info", "event")
	}
	assert.Len(t, GetEventLog(), 100)
}
