package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "linemart",
	Subsystem: "provider",
	Name:      "circuit_transitions_total",
	Help:      "Payment backend circuit transitions by provider and direction.",
}, []string{"provider", "from", "to"})

func init() {
	prometheus.MustRegister(breakerTransitions)
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// guarded wraps a Provider with a circuit so a struggling backend is
// rejected fast instead of being hammered. Only transport-level failures
// count against the circuit; a clean "unknown invoice" answer does not.
//
// The circuit is per backend: each wrapped provider carries its own state.
// Open circuits admit a single probe call after the cooldown; the probe's
// outcome decides whether the circuit closes again or reopens.
type guarded struct {
	inner Provider
	name  string

	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
}

// WithBreaker decorates a payment backend with a named circuit. The circuit
// opens after 5 consecutive backend failures and probes again after 30
// seconds.
func WithBreaker(p Provider, name string) Provider {
	return &guarded{
		inner:     p,
		name:      name,
		threshold: 5,
		cooldown:  30 * time.Second,
	}
}

func (g *guarded) CreateInvoice(ctx context.Context, amount int64, currency string) (*Invoice, error) {
	if !g.admit() {
		return nil, ErrUnavailable
	}
	inv, err := g.inner.CreateInvoice(ctx, amount, currency)
	g.observe(err)
	return inv, err
}

func (g *guarded) QueryStatus(ctx context.Context, invoiceID string) (State, error) {
	if !g.admit() {
		return StateUnknown, ErrUnavailable
	}
	state, err := g.inner.QueryStatus(ctx, invoiceID)
	g.observe(err)
	return state, err
}

// admit reports whether a call may reach the backend, moving an open
// circuit to half-open once the cooldown has passed.
func (g *guarded) admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case circuitOpen:
		if time.Since(g.openedAt) < g.cooldown {
			return false
		}
		g.shift(circuitHalfOpen)
		return true
	case circuitHalfOpen:
		// A probe is already in flight.
		return false
	}
	return true
}

func (g *guarded) observe(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		if g.state == circuitHalfOpen {
			g.shift(circuitClosed)
		}
		g.failures = 0
		return
	}
	if !errors.Is(err, ErrUnavailable) {
		return
	}

	g.failures++
	if g.state == circuitHalfOpen || (g.state == circuitClosed && g.failures >= g.threshold) {
		g.shift(circuitOpen)
		g.openedAt = time.Now()
	}
}

// shift records the transition. Caller holds g.mu.
func (g *guarded) shift(to circuitState) {
	breakerTransitions.WithLabelValues(g.name, g.state.String(), to.String()).Inc()
	g.state = to
}
