package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventQueueDelivers(t *testing.T) {
	q := NewEventQueue(zap.NewNop(), 8)

	q.MonitoringStateChanged(true)
	q.StatusMessage("Monitoring started...")
	q.InfoUpdate(Info{BatteryPercent: 80, BatteryAvailable: true})

	e := <-q.Events()
	assert.Equal(t, EventMonitoring, e.Kind)
	assert.True(t, e.Monitoring)
	assert.False(t, e.At.IsZero())

	e = <-q.Events()
	assert.Equal(t, EventStatus, e.Kind)
	assert.Equal(t, "Monitoring started...", e.Message)

	e = <-q.Events()
	assert.Equal(t, EventInfo, e.Kind)
	assert.Equal(t, 80.0, e.Info.BatteryPercent)
}

func TestEventQueueDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	q := NewEventQueue(zap.New(core), 2)

	q.StatusMessage("one")
	q.StatusMessage("two")
	q.StatusMessage("three")
	q.InfoUpdate(Info{})

	assert.Equal(t, uint64(2), q.Dropped())
	require.Len(t, q.Events(), 2)
	assert.Equal(t, "one", (<-q.Events()).Message)

	assert.Equal(t, 1, logs.FilterMessage("Front-end not draining events, dropped one").Len())
	assert.Equal(t, 1, logs.FilterMessage("Dropped info update").Len())
}
