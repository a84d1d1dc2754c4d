// Package guard gates mutating ledger operations behind a capability
// check and a pause switch. The payment processor consults the gate at
// the top of every mutating operation and assumes the check passed for
// the rest of the call.
package guard

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrPaused        = errors.New("ledger operations are paused")
	ErrNotAuthorized = errors.New("caller lacks the capability for this operation")
)

var rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cardledger",
	Subsystem: "guard",
	Name:      "rejections_total",
	Help:      "Operations rejected by the guard, by operation and reason.",
}, []string{"operation", "reason"})

func init() {
	prometheus.MustRegister(rejectionsTotal)
}

// CapabilityFunc decides whether the calling principal may perform the
// named operation. A nil func allows everything.
type CapabilityFunc func(ctx context.Context, operation string) error

// Gate is the default guard: a pause switch plus an optional capability
// check.
type Gate struct {
	mu         sync.RWMutex
	paused     bool
	capability CapabilityFunc
}

// New creates an unpaused gate with the given capability check.
func New(capability CapabilityFunc) *Gate {
	return &Gate{capability: capability}
}

// Check returns nil when the operation may proceed. Pause wins over the
// capability check.
func (g *Gate) Check(ctx context.Context, operation string) error {
	g.mu.RLock()
	paused := g.paused
	capability := g.capability
	g.mu.RUnlock()

	if paused {
		rejectionsTotal.WithLabelValues(operation, "paused").Inc()
		return ErrPaused
	}
	if capability != nil {
		if err := capability(ctx, operation); err != nil {
			rejectionsTotal.WithLabelValues(operation, "capability").Inc()
			return errors.Join(ErrNotAuthorized, err)
		}
	}
	return nil
}

// Pause stops all mutating operations. Returns true if the state changed.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	return true
}

// Resume re-enables mutating operations. Returns true if the state changed.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	return true
}

// Paused reports the current pause state.
func (g *Gate) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}
