package app

import (
	"sync/atomic"

	"github.com/florianilch/msgbridge/internal/proxy"
)

// Phase is a step of the application lifecycle.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseReady
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "healthy"
	case PhaseDraining:
		return "draining"
	default:
		return "starting"
	}
}

// Health tracks the lifecycle phase reported by the probe endpoints. Only PhaseReady
// accepts traffic. All methods are safe for concurrent use.
type Health struct {
	phase atomic.Int32
}

var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth returns a Health in PhaseStarting.
func NewHealth() *Health {
	return &Health{}
}

func (h *Health) Set(p Phase) {
	h.phase.Store(int32(p))
}

func (h *Health) Phase() Phase {
	return Phase(h.phase.Load())
}

func (h *Health) IsReady() bool {
	return h.Phase() == PhaseReady
}

// State names the current phase for /health.
func (h *Health) State() string {
	return h.Phase().String()
}
