package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsmend/opsmend/internal/cadence"
	"github.com/opsmend/opsmend/internal/cluster"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/scheduler"
)

// Pipeline runs the three independently-ticking control loops: the engine
// loop folding pending events into clusters, the cadence-governed triage
// loop turning qualifying clusters into missions, and the scheduler loop
// admitting missions into bounded execution. A panic inside any tick is
// caught at the tick boundary and the loop continues on its next cycle.
type Pipeline struct {
	engine  *cluster.Engine
	cadence *cadence.Controller
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	logger  *slog.Logger

	engineInterval    time.Duration
	schedulerInterval time.Duration

	wg sync.WaitGroup
}

// New creates a pipeline over the given components
func New(engine *cluster.Engine, cad *cadence.Controller, sched *scheduler.Scheduler, m *metrics.Metrics, engineInterval, schedulerInterval time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		engine:            engine,
		cadence:           cad,
		sched:             sched,
		metrics:           m,
		logger:            logger,
		engineInterval:    engineInterval,
		schedulerInterval: schedulerInterval,
	}
}

// Start launches the control loops. They stop when the context is
// cancelled; Wait blocks until all have exited.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(3)
	go p.engineLoop(ctx)
	go p.triageLoop(ctx)
	go p.schedulerLoop(ctx)
}

// Wait blocks until all loops have stopped
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// engineLoop folds the pending event buffer into clusters on a fixed
// interval and garbage-collects resolved clusters past retention
func (p *Pipeline) engineLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.engineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeTick("engine", func() {
				p.engine.ProcessPending()
				p.engine.GC(time.Now())
			})
		}
	}
}

// triageLoop evaluates clusters on the cadence controller's schedule and
// creates missions for those that qualify. The interval is re-read each
// cycle so the boot-to-steady transition takes effect on the next tick.
func (p *Pipeline) triageLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		interval := p.cadence.NextInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			p.safeTick("triage", p.triageTick)
		}
	}
}

// triageTick runs one triage pass
func (p *Pipeline) triageTick() {
	// Fold in anything that arrived since the last engine tick so triage
	// sees current counts.
	p.engine.ProcessPending()

	threshold := p.cadence.Threshold()
	qualifying := p.engine.Qualifying(threshold, p.cadence.DomainAllowed)
	for _, c := range qualifying {
		p.sched.CreateMission(c)
	}

	if len(qualifying) > 0 {
		p.logger.Info("Triage pass created missions",
			"qualifying", len(qualifying), "threshold", threshold,
			"phase", string(p.cadence.Phase()))
	}
}

// schedulerLoop admits missions on a fixed interval
func (p *Pipeline) schedulerLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.schedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeTick("scheduler", func() {
				p.sched.Tick(ctx)
			})
		}
	}
}

// safeTick runs one tick with a panic guard and duration metric
func (p *Pipeline) safeTick(loop string, fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Tick panicked, loop continues", "loop", loop, "panic", r)
		}
		p.metrics.ObserveTick(loop, time.Since(start).Seconds())
	}()
	fn()
}
