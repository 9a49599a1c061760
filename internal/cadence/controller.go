package cadence

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Phase is the operating mode of the cadence controller
type Phase string

const (
	PhaseBoot   Phase = "boot"
	PhaseSteady Phase = "steady"
)

// bootDomains are the only domains evaluated during the boot phase
var bootDomains = map[string]bool{
	"guardian": true,
	"system":   true,
	"kernel":   true,
}

// Controller governs how aggressively clusters are triaged. It starts in the
// boot phase (fast fixed tick, high threshold, infrastructure domains only)
// and moves once, on an external boot-complete signal, to the steady phase
// (slow randomized tick, low threshold, all domains). The transition is
// one-way and idempotent; without the signal the controller stays in boot
// indefinitely.
type Controller struct {
	mu    sync.RWMutex
	phase Phase

	bootInterval    time.Duration
	steadyMin       time.Duration
	steadyMax       time.Duration
	bootThreshold   float64
	steadyThreshold float64

	rng    *rand.Rand
	logger *slog.Logger
}

// NewController creates a cadence controller in the boot phase
func NewController(bootInterval, steadyMin, steadyMax time.Duration, bootThreshold, steadyThreshold float64, logger *slog.Logger) *Controller {
	return &Controller{
		phase:           PhaseBoot,
		bootInterval:    bootInterval,
		steadyMin:       steadyMin,
		steadyMax:       steadyMax,
		bootThreshold:   bootThreshold,
		steadyThreshold: steadyThreshold,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:          logger,
	}
}

// Phase returns the current phase
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// MarkBootComplete transitions boot to steady. Idempotent; repeated calls
// after the first are no-ops.
func (c *Controller) MarkBootComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseSteady {
		return
	}
	c.phase = PhaseSteady
	c.logger.Info("Cadence transitioned to steady phase",
		"steady_interval_min", c.steadyMin, "steady_interval_max", c.steadyMax,
		"threshold", c.steadyThreshold)
}

// NextInterval returns the wait before the next triage tick. In steady phase
// the interval is re-randomized on every call.
func (c *Controller) NextInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseBoot {
		return c.bootInterval
	}
	spread := c.steadyMax - c.steadyMin
	if spread <= 0 {
		return c.steadyMin
	}
	return c.steadyMin + time.Duration(c.rng.Int63n(int64(spread)))
}

// Threshold returns the admission threshold for the current phase
func (c *Controller) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.phase == PhaseBoot {
		return c.bootThreshold
	}
	return c.steadyThreshold
}

// DomainAllowed reports whether a domain is evaluated in the current phase.
// Boot restricts triage to infrastructure-class domains; steady evaluates
// everything.
func (c *Controller) DomainAllowed(domain string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.phase == PhaseBoot {
		return bootDomains[domain]
	}
	return true
}

// Status returns the controller state for the query surface
func (c *Controller) Status() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	threshold := c.steadyThreshold
	if c.phase == PhaseBoot {
		threshold = c.bootThreshold
	}
	return map[string]interface{}{
		"phase":     string(c.phase),
		"threshold": threshold,
	}
}
