package events

import (
	"log/slog"
	"time"

	"github.com/mbd888/cardledger/internal/idgen"
	"github.com/prometheus/client_golang/prometheus"
)

var eventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cardledger",
	Subsystem: "events",
	Name:      "emitted_total",
	Help:      "Total lifecycle events emitted by event type.",
}, []string{"event_type"})

func init() {
	prometheus.MustRegister(eventsEmittedTotal)
}

// Emitter fans lifecycle events out to registered sinks.
// All methods are fire-and-forget and nil-safe: a nil *Emitter drops
// everything, and sink panics are swallowed so accounting never fails
// because an observer did.
type Emitter struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewEmitter creates an emitter publishing to the given sinks.
func NewEmitter(logger *slog.Logger, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, logger: logger}
}

// Emit publishes one event with the given payload.
func (e *Emitter) Emit(eventType Type, data map[string]any) {
	if e == nil {
		return
	}
	eventsEmittedTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	for _, s := range e.sinks {
		e.publish(s, event)
	}
}

func (e *Emitter) publish(s Sink, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("event sink panicked", "event", event.Type, "panic", r)
		}
	}()
	s.Publish(event)
}
