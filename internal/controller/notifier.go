package controller

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shizukutanaka/smartplug/internal/signals"
)

// Info is the host condition shown by the front-end.
type Info struct {
	BatteryPercent   float64
	Charging         bool
	BatteryAvailable bool
	AppRunning       bool
}

func infoFrom(sig signals.Signal) Info {
	return Info{
		BatteryPercent:   sig.Battery.Percent,
		Charging:         sig.Battery.Charging,
		BatteryAvailable: sig.BatteryAvailable,
		AppRunning:       sig.AppRunning,
	}
}

// Notifier receives everything the controller reports to a front-end.
// Calls are fire-and-forget and may come from any goroutine, so
// implementations must not block.
type Notifier interface {
	StatusMessage(text string)
	InfoUpdate(info Info)
	MonitoringStateChanged(enabled bool)
}

type nopNotifier struct{}

func (nopNotifier) StatusMessage(string)        {}
func (nopNotifier) InfoUpdate(Info)             {}
func (nopNotifier) MonitoringStateChanged(bool) {}

// EventKind tells which Notifier call produced an Event.
type EventKind int

const (
	EventStatus EventKind = iota
	EventInfo
	EventMonitoring
)

// Event is one notification queued for the front-end.
type Event struct {
	Kind       EventKind
	At         time.Time
	Message    string
	Info       Info
	Monitoring bool
}

// EventQueue is a Notifier that hands events to a single consumer goroutine
// through a buffered channel. When the consumer falls behind, new events are
// dropped rather than blocking the controller.
type EventQueue struct {
	logger  *zap.Logger
	events  chan Event
	dropped atomic.Uint64
}

// NewEventQueue creates a queue holding up to size undelivered events.
func NewEventQueue(logger *zap.Logger, size int) *EventQueue {
	if size <= 0 {
		size = 64
	}
	return &EventQueue{
		logger: logger.Named("events"),
		events: make(chan Event, size),
	}
}

// Events is drained by the front-end.
func (q *EventQueue) Events() <-chan Event {
	return q.events
}

// Dropped returns how many events were discarded so far.
func (q *EventQueue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *EventQueue) StatusMessage(text string) {
	q.push(Event{Kind: EventStatus, Message: text})
}

func (q *EventQueue) InfoUpdate(info Info) {
	q.push(Event{Kind: EventInfo, Info: info})
}

func (q *EventQueue) MonitoringStateChanged(enabled bool) {
	q.push(Event{Kind: EventMonitoring, Monitoring: enabled})
}

func (q *EventQueue) push(e Event) {
	e.At = time.Now()
	select {
	case q.events <- e:
	default:
		n := q.dropped.Add(1)
		// Info updates arrive every second; only report status losses loudly.
		if e.Kind == EventInfo {
			q.logger.Debug("Dropped info update", zap.Uint64("dropped_total", n))
			return
		}
		q.logger.Warn("Front-end not draining events, dropped one",
			zap.Int("kind", int(e.Kind)),
			zap.String("message", e.Message),
			zap.Uint64("dropped_total", n),
		)
	}
}
