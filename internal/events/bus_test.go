package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBus_PublishDeliversToSubscribedType tests that handlers only receive
// events of the type they subscribed to
func TestBus_PublishDeliversToSubscribedType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(JobProgress, func(event *Event) {
		received = append(received, event)
	})

	bus.Emit(JobProgress, "optimization", &JobStatusData{JobID: "job-1", Status: "progress"})
	bus.Emit(JobCompleted, "optimization", &JobStatusData{JobID: "job-1", Status: "completed"})

	require.Len(t, received, 1)
	assert.Equal(t, JobProgress, received[0].Type)
	assert.Equal(t, "optimization", received[0].Module)
}

// TestBus_PublishFillsTimestamp tests that Publish stamps events missing a time
func TestBus_PublishFillsTimestamp(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got *Event
	bus.Subscribe(JobStarted, func(event *Event) {
		got = event
	})

	before := time.Now().UTC()
	bus.Publish(&Event{Type: JobStarted, Module: "backtest"})

	require.NotNil(t, got)
	assert.False(t, got.Timestamp.Before(before))
}

// TestBus_MultipleHandlersAllInvoked tests fan-out to every subscriber
func TestBus_MultipleHandlersAllInvoked(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(HistoryImported, func(event *Event) {
			count++
		})
	}

	bus.Emit(HistoryImported, "history", &HistoryImportedData{Symbol: "XAUUSD", Timeframe: "M15", Imported: 100})

	assert.Equal(t, 3, count)
}

// TestBus_PublishNilIsNoop tests that a nil event does not panic
func TestBus_PublishNilIsNoop(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(JobFailed, func(event *Event) {
		t.Fatal("handler should not be called for nil event")
	})

	bus.Publish(nil)
}

// TestBus_UnsubscribeStopsDelivery tests that the returned cancel function
// removes exactly the handler it belongs to
func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	first := 0
	second := 0
	cancel := bus.Subscribe(JobProgress, func(event *Event) { first++ })
	bus.Subscribe(JobProgress, func(event *Event) { second++ })

	bus.Emit(JobProgress, "jobs", nil)
	cancel()
	bus.Emit(JobProgress, "jobs", nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

// TestBus_UnsubscribeTwiceIsSafe tests that calling cancel twice is harmless
func TestBus_UnsubscribeTwiceIsSafe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	cancel := bus.Subscribe(JobStarted, func(event *Event) {})
	cancel()
	assert.NotPanics(t, func() { cancel() })
}
