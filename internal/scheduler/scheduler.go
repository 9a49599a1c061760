package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsmend/opsmend/internal/admission"
	"github.com/opsmend/opsmend/internal/audit"
	"github.com/opsmend/opsmend/internal/executor"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/model"
)

// SchedulerPrincipal is the principal ID the scheduler uses when requesting
// admission for its missions
const SchedulerPrincipal = "mission_scheduler"

// ClusterTracker is the slice of the cluster engine the scheduler needs to
// record mission ownership and resolution
type ClusterTracker interface {
	SetMission(key, missionID string) bool
	Resolve(key, actor string) bool
}

// Scheduler turns qualifying clusters into missions, ranks them by combined
// score, enforces the concurrency bound, and drives each admitted mission
// through the admission gate before dispatching it to the executor. The
// missions map and active set are owned exclusively by the scheduler.
type Scheduler struct {
	mu       sync.Mutex
	missions map[string]*model.Mission
	active   map[string]context.CancelFunc

	maxConcurrent int
	execTimeout   time.Duration

	gate    *admission.Gate
	exec    executor.Executor
	tracker ClusterTracker
	sink    audit.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewScheduler creates a mission scheduler
func NewScheduler(gate *admission.Gate, exec executor.Executor, tracker ClusterTracker, sink audit.Sink, m *metrics.Metrics, maxConcurrent int, execTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		missions:      make(map[string]*model.Mission),
		active:        make(map[string]context.CancelFunc),
		maxConcurrent: maxConcurrent,
		execTimeout:   execTimeout,
		gate:          gate,
		exec:          exec,
		tracker:       tracker,
		sink:          sink,
		metrics:       m,
		logger:        logger,
	}
}

// CreateMission builds a pending mission from a qualifying cluster snapshot
// and records the mission on the cluster. Returns nil if the cluster has
// already been claimed by another mission.
func (s *Scheduler) CreateMission(c *model.Cluster) *model.Mission {
	risk := MissionRiskScore(c.Domain, c.Severity)
	impact := ImpactScore(c.EventCount, c.UrgencyScore, c.RecurrenceScore)
	combined := CombinedScore(risk, impact)

	mission := &model.Mission{
		ID:   "mission-" + uuid.New().String(),
		Type: "remediation",
		Description: fmt.Sprintf("Remediate recurring %s events in %s domain (%d events, severity %s)",
			c.Pattern, c.Domain, c.EventCount, c.Severity),
		Context: map[string]interface{}{
			"cluster_key": c.Key,
			"domain":      c.Domain,
			"severity":    c.Severity,
			"pattern":     c.Pattern,
			"event_count": c.EventCount,
			"production":  isProductionDomain(c.Domain),
		},
		Priority:      combined,
		LaunchedBy:    SchedulerPrincipal,
		Status:        model.MissionStatusPending,
		CreatedAt:     time.Now().UTC(),
		RiskScore:     risk,
		ImpactScore:   impact,
		CombinedScore: combined,
	}

	if !s.tracker.SetMission(c.Key, mission.ID) {
		return nil
	}

	s.mu.Lock()
	s.missions[mission.ID] = mission
	s.mu.Unlock()

	s.metrics.MissionsCreated.Inc()
	s.sink.Append("mission", "created", SchedulerPrincipal, "create", mission.ID, map[string]interface{}{
		"cluster_key":    c.Key,
		"risk_score":     risk,
		"impact_score":   impact,
		"combined_score": combined,
	})
	s.logger.Info("Mission created", "mission_id", mission.ID,
		"cluster_key", c.Key, "combined_score", combined)
	return mission
}

// isProductionDomain flags domains whose remediation modifies production
// infrastructure
func isProductionDomain(domain string) bool {
	return domain == "guardian" || domain == "system"
}

// Tick runs one scheduling pass: prune the active set, then, if a
// concurrency slot is free, admit the highest-scored pending mission. At
// most one mission is admitted per tick. The slot is reserved (status set to
// running, handle added to the active set) before the admission request so
// concurrent ticks can never exceed the bound.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()

	// Prune handles for missions that reached a terminal state.
	for id, cancel := range s.active {
		m := s.missions[id]
		if m == nil || (m.Status != model.MissionStatusRunning) {
			cancel()
			delete(s.active, id)
		}
	}

	if len(s.active) >= s.maxConcurrent {
		s.mu.Unlock()
		return
	}

	candidate := s.pickLocked()
	if candidate == nil {
		s.mu.Unlock()
		return
	}

	// Reserve the slot before asking for approval.
	now := time.Now().UTC()
	candidate.Status = model.MissionStatusRunning
	candidate.StartedAt = &now
	missionCtx, cancel := context.WithCancel(ctx)
	s.active[candidate.ID] = cancel
	activeCount := len(s.active)
	s.mu.Unlock()

	s.metrics.ActiveMissions.Set(float64(activeCount))
	s.sink.Append("mission", "admitted", SchedulerPrincipal, "start", candidate.ID, map[string]interface{}{
		"combined_score": candidate.CombinedScore,
	})
	s.logger.Info("Mission admitted", "mission_id", candidate.ID,
		"active", activeCount, "max_concurrent", s.maxConcurrent)

	go s.runMission(missionCtx, candidate)
}

// pickLocked selects the highest-combined-score pending mission, ties broken
// by earliest creation. Caller holds s.mu.
func (s *Scheduler) pickLocked() *model.Mission {
	var best *model.Mission
	for _, m := range s.missions {
		if m.Status != model.MissionStatusPending || m.Suspended {
			continue
		}
		if best == nil ||
			m.CombinedScore > best.CombinedScore ||
			(m.CombinedScore == best.CombinedScore && m.CreatedAt.Before(best.CreatedAt)) {
			best = m
		}
	}
	return best
}

// runMission drives one admitted mission through approval and execution.
// The concurrency slot is always released and a terminal audit entry always
// written, whatever the outcome.
func (s *Scheduler) runMission(ctx context.Context, mission *model.Mission) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Mission execution panicked", "mission_id", mission.ID, "panic", r)
			s.failMission(mission, fmt.Sprintf("panic during execution: %v", r))
		}
		s.releaseSlot(mission.ID)
	}()

	resourceType := "staging_model"
	if prod, ok := mission.Context["production"].(bool); ok && prod {
		resourceType = "production_model"
	}

	req := &model.ApprovalRequest{
		RequestID:    uuid.New().String(),
		ResourceType: resourceType,
		ResourceID:   mission.ID,
		Action:       "modify",
		Requester:    mission.LaunchedBy,
		Context:      mission.Context,
	}

	result := s.gate.RequestApproval(req)
	if result.Decision == model.DecisionPending {
		// Wait for a manual decision. The slot stays reserved; there is no
		// approval timeout, so an unresolved request holds it until
		// shutdown.
		var err error
		result, err = s.gate.WaitDecision(ctx, req.RequestID)
		if err != nil {
			s.failMission(mission, fmt.Sprintf("approval wait aborted: %v", err))
			return
		}
	}

	switch result.Decision {
	case model.DecisionAutoApproved, model.DecisionApproved:
		// fall through to execution
	case model.DecisionEscalated:
		// Escalation has no resolution flow; treated as denial for now.
		s.failMission(mission, "admission escalated: "+result.Reason)
		return
	default:
		s.failMission(mission, "admission denied: "+result.Reason)
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, s.execTimeout)
	defer cancel()

	execResult, err := s.exec.Execute(execCtx, mission.Type, mission.Context)
	if err != nil {
		s.failMission(mission, err.Error())
		return
	}
	s.completeMission(mission, execResult)
}

// releaseSlot removes a mission's handle from the active set
func (s *Scheduler) releaseSlot(missionID string) {
	s.mu.Lock()
	if cancel, ok := s.active[missionID]; ok {
		cancel()
		delete(s.active, missionID)
	}
	activeCount := len(s.active)
	s.mu.Unlock()

	s.metrics.ActiveMissions.Set(float64(activeCount))
}

// completeMission records a successful outcome and resolves the source
// cluster
func (s *Scheduler) completeMission(mission *model.Mission, result map[string]interface{}) {
	now := time.Now().UTC()

	s.mu.Lock()
	mission.Status = model.MissionStatusCompleted
	mission.CompletedAt = &now
	mission.Result = result
	s.mu.Unlock()

	s.metrics.MissionsCompleted.Inc()
	s.sink.Append("mission", "completed", SchedulerPrincipal, "complete", mission.ID, map[string]interface{}{
		"result": result,
	})
	s.logger.Info("Mission completed", "mission_id", mission.ID)

	if key, ok := mission.Context["cluster_key"].(string); ok {
		s.tracker.Resolve(key, mission.ID)
	}
}

// failMission records a failed, denied, or escalated outcome. The source
// cluster stays open; a retry requires a new mission.
func (s *Scheduler) failMission(mission *model.Mission, reason string) {
	now := time.Now().UTC()

	s.mu.Lock()
	if mission.Status == model.MissionStatusCompleted || mission.Status == model.MissionStatusFailed {
		s.mu.Unlock()
		return
	}
	mission.Status = model.MissionStatusFailed
	mission.CompletedAt = &now
	mission.Error = reason
	s.mu.Unlock()

	s.metrics.MissionsFailed.Inc()
	s.sink.Append("mission", "failed", SchedulerPrincipal, "fail", mission.ID, map[string]interface{}{
		"reason": reason,
	})
	s.logger.Warn("Mission failed", "mission_id", mission.ID, "reason", reason)
}

// Suspend parks a pending mission. Only valid while the mission is pending;
// any other status is a no-op returning false.
func (s *Scheduler) Suspend(missionID, reason string) bool {
	s.mu.Lock()
	m, ok := s.missions[missionID]
	if !ok || m.Status != model.MissionStatusPending || m.Suspended {
		s.mu.Unlock()
		return false
	}
	m.Status = model.MissionStatusSuspended
	m.Suspended = true
	m.SuspensionReason = reason
	s.mu.Unlock()

	s.sink.Append("mission", "suspended", SchedulerPrincipal, "suspend", missionID, map[string]interface{}{
		"reason": reason,
	})
	s.logger.Info("Mission suspended", "mission_id", missionID, "reason", reason)
	return true
}

// Resume returns a suspended mission to pending
func (s *Scheduler) Resume(missionID string) bool {
	s.mu.Lock()
	m, ok := s.missions[missionID]
	if !ok || m.Status != model.MissionStatusSuspended {
		s.mu.Unlock()
		return false
	}
	m.Status = model.MissionStatusPending
	m.Suspended = false
	m.SuspensionReason = ""
	s.mu.Unlock()

	s.sink.Append("mission", "resumed", SchedulerPrincipal, "resume", missionID, nil)
	s.logger.Info("Mission resumed", "mission_id", missionID)
	return true
}

// Get returns a copy of a mission
func (s *Scheduler) Get(missionID string) (*model.Mission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[missionID]
	if !ok {
		return nil, false
	}
	mc := *m
	return &mc, true
}

// List returns copies of missions, optionally filtered by status
func (s *Scheduler) List(status model.MissionStatus) []*model.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		if status != "" && m.Status != status {
			continue
		}
		mc := *m
		out = append(out, &mc)
	}
	return out
}

// ActiveCount returns the number of reserved concurrency slots
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := make(map[string]int)
	for _, m := range s.missions {
		byStatus[string(m.Status)]++
	}
	return map[string]interface{}{
		"missions_total": len(s.missions),
		"by_status":      byStatus,
		"active":         len(s.active),
		"max_concurrent": s.maxConcurrent,
	}
}
