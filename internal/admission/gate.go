package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opsmend/opsmend/internal/audit"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/model"
	"github.com/opsmend/opsmend/internal/rbac"
)

// PermissionChecker is the slice of the permission registry the gate needs
type PermissionChecker interface {
	CheckPermission(principalID, resourceType, resourceID, action string) bool
}

// pendingApproval tracks a request queued for manual resolution
type pendingApproval struct {
	request  *model.ApprovalRequest
	result   *model.ApprovalResult
	resolved chan struct{}
}

// Gate is the two-phase admission control gate: an RBAC check via the
// permission registry followed by a continuous risk score that yields
// auto-approval, queued manual approval, or escalation. The gate owns the
// pending-approvals map; other components interact only through its methods.
type Gate struct {
	registry PermissionChecker
	sink     audit.Sink
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	autoApproveThreshold float64
	escalationThreshold  float64

	mu      sync.Mutex
	pending map[string]*pendingApproval
	decided *lru.Cache[string, *model.ApprovalResult]
}

// decidedCacheSize bounds the memory held for already-resolved request IDs
const decidedCacheSize = 10000

// NewGate creates an admission gate
func NewGate(registry PermissionChecker, sink audit.Sink, notifier Notifier, m *metrics.Metrics, autoApproveThreshold, escalationThreshold float64, logger *slog.Logger) *Gate {
	decided, _ := lru.New[string, *model.ApprovalResult](decidedCacheSize)

	return &Gate{
		registry:             registry,
		sink:                 sink,
		notifier:             notifier,
		metrics:              m,
		logger:               logger,
		autoApproveThreshold: autoApproveThreshold,
		escalationThreshold:  escalationThreshold,
		pending:              make(map[string]*pendingApproval),
		decided:              decided,
	}
}

// RequestApproval evaluates a request and returns its decision. A pending
// decision stays queued until ApprovePending or DenyPending resolves it;
// callers that need the final outcome use WaitDecision. The request and its
// outcome are audited before returning.
func (g *Gate) RequestApproval(req *model.ApprovalRequest) *model.ApprovalResult {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	g.sink.Append("admission", "request", req.Requester, req.Action, req.ResourceID, map[string]interface{}{
		"request_id":    req.RequestID,
		"resource_type": req.ResourceType,
	})

	// Phase 1: RBAC. A failed permission check denies unconditionally,
	// regardless of risk score.
	if !g.registry.CheckPermission(req.Requester, req.ResourceType, req.ResourceID, req.Action) {
		result := &model.ApprovalResult{
			RequestID: req.RequestID,
			Decision:  model.DecisionDenied,
			RiskLevel: model.RiskLevelHigh,
			Reason:    "rbac_denied: requester lacks permission or scope for resource",
			DecidedAt: time.Now().UTC(),
		}
		g.finalize(req, result)
		g.notifier.NotifyDenial(req, result)
		return result
	}

	// Phase 2: risk scoring and decision policy.
	risk := ScoreRisk(req)
	level := ClassifyRisk(risk)

	switch {
	case risk < g.autoApproveThreshold:
		result := &model.ApprovalResult{
			RequestID: req.RequestID,
			Decision:  model.DecisionAutoApproved,
			RiskLevel: level,
			RiskScore: risk,
			Reason:    fmt.Sprintf("risk %.2f below auto-approve threshold %.2f", risk, g.autoApproveThreshold),
			DecidedAt: time.Now().UTC(),
		}
		g.finalize(req, result)
		return result

	case risk > g.escalationThreshold:
		result := &model.ApprovalResult{
			RequestID: req.RequestID,
			Decision:  model.DecisionEscalated,
			RiskLevel: level,
			RiskScore: risk,
			Reason:    fmt.Sprintf("risk %.2f above escalation threshold %.2f", risk, g.escalationThreshold),
			DecidedAt: time.Now().UTC(),
		}
		g.finalize(req, result)
		g.notifier.NotifyEscalation(req, result)
		return result

	default:
		result := &model.ApprovalResult{
			RequestID: req.RequestID,
			Decision:  model.DecisionPending,
			RiskLevel: level,
			RiskScore: risk,
			Reason:    fmt.Sprintf("risk %.2f requires manual approval", risk),
		}

		g.mu.Lock()
		g.pending[req.RequestID] = &pendingApproval{
			request:  req,
			result:   result,
			resolved: make(chan struct{}),
		}
		pendingCount := len(g.pending)
		g.mu.Unlock()

		g.metrics.IncApprovals(string(model.DecisionPending))
		g.metrics.PendingApprovals.Set(float64(pendingCount))
		g.sink.Append("admission", "decision", "admission_gate", string(model.DecisionPending), req.ResourceID, map[string]interface{}{
			"request_id": req.RequestID,
			"risk_score": risk,
			"risk_level": string(level),
		})
		g.logger.Info("Approval request queued for manual resolution",
			"request_id", req.RequestID, "risk_score", risk, "requester", req.Requester)

		// Return a snapshot; the stored result is mutated on resolution.
		snapshot := *result
		return &snapshot
	}
}

// WaitDecision blocks until a pending request is resolved or the context is
// cancelled. For already-decided requests it returns immediately.
func (g *Gate) WaitDecision(ctx context.Context, requestID string) (*model.ApprovalResult, error) {
	g.mu.Lock()
	if result, ok := g.decided.Get(requestID); ok {
		g.mu.Unlock()
		return result, nil
	}
	pa, ok := g.pending[requestID]
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown approval request %q", requestID)
	}

	select {
	case <-pa.resolved:
		return pa.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ApprovePending resolves a queued request as approved. Each request ID can
// be resolved exactly once; resolving an already-decided ID is an error.
func (g *Gate) ApprovePending(requestID, approvedBy string) (*model.ApprovalResult, error) {
	return g.resolve(requestID, model.DecisionApproved, approvedBy, "manually approved")
}

// DenyPending resolves a queued request as denied
func (g *Gate) DenyPending(requestID, deniedBy, reason string) (*model.ApprovalResult, error) {
	if reason == "" {
		reason = "manual_denied"
	}
	return g.resolve(requestID, model.DecisionDenied, deniedBy, reason)
}

// resolve moves a pending request to its final decision
func (g *Gate) resolve(requestID string, decision model.Decision, actor, reason string) (*model.ApprovalResult, error) {
	g.mu.Lock()
	if _, ok := g.decided.Get(requestID); ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("approval request %q already resolved", requestID)
	}
	pa, ok := g.pending[requestID]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("unknown approval request %q", requestID)
	}
	delete(g.pending, requestID)

	pa.result.Decision = decision
	pa.result.Reason = reason
	pa.result.ApprovedBy = actor
	pa.result.DecidedAt = time.Now().UTC()
	g.decided.Add(requestID, pa.result)
	close(pa.resolved)
	pendingCount := len(g.pending)
	g.mu.Unlock()

	g.metrics.IncApprovals(string(decision))
	g.metrics.PendingApprovals.Set(float64(pendingCount))
	g.sink.Append("admission", "decision", actor, string(decision), pa.request.ResourceID, map[string]interface{}{
		"request_id": requestID,
		"reason":     reason,
	})
	if decision == model.DecisionDenied {
		g.notifier.NotifyDenial(pa.request, pa.result)
	}

	g.logger.Info("Pending approval resolved", "request_id", requestID,
		"decision", string(decision), "actor", actor)
	return pa.result, nil
}

// finalize records a terminal decision reached without queueing
func (g *Gate) finalize(req *model.ApprovalRequest, result *model.ApprovalResult) {
	g.mu.Lock()
	g.decided.Add(req.RequestID, result)
	g.mu.Unlock()

	g.metrics.IncApprovals(string(result.Decision))
	g.sink.Append("admission", "decision", "admission_gate", string(result.Decision), req.ResourceID, map[string]interface{}{
		"request_id": req.RequestID,
		"risk_score": result.RiskScore,
		"risk_level": string(result.RiskLevel),
		"reason":     result.Reason,
	})
	g.logger.Info("Admission decision", "request_id", req.RequestID,
		"decision", string(result.Decision), "risk_score", result.RiskScore,
		"requester", req.Requester)
}

// PendingRequests returns the requests currently awaiting manual resolution
func (g *Gate) PendingRequests() []*model.ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*model.ApprovalRequest, 0, len(g.pending))
	for _, pa := range g.pending {
		out = append(out, pa.request)
	}
	return out
}

// GetResult returns the decision for a request, pending or decided
func (g *Gate) GetResult(requestID string) (*model.ApprovalResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if result, ok := g.decided.Get(requestID); ok {
		return result, true
	}
	if pa, ok := g.pending[requestID]; ok {
		// Snapshot; the stored result is mutated on resolution.
		snapshot := *pa.result
		return &snapshot, true
	}
	return nil, false
}

// ensure the concrete registry satisfies the checker interface
var _ PermissionChecker = (*rbac.Registry)(nil)
