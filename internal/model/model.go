package model

import (
	"time"
)

// Event represents a single operational event reported by a producer
type Event struct {
	Type       string                 `json:"type"`
	Domain     string                 `json:"domain"`
	Severity   string                 `json:"severity"` // low, medium, high, critical
	Pattern    string                 `json:"pattern"`  // error, anomaly, degradation, blocked, general
	Payload    map[string]interface{} `json:"payload,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
}

// Cluster aggregates events that share the same (domain, severity, pattern)
// signature. The key is "domain:severity:pattern".
type Cluster struct {
	Key        string    `json:"key"`
	Domain     string    `json:"domain"`
	Severity   string    `json:"severity"`
	Pattern    string    `json:"pattern"`
	EventCount int       `json:"event_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	MissionID  string    `json:"mission_id,omitempty"`
	Resolved   bool      `json:"resolved"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`

	// Scores computed at snapshot time, not stored state.
	UrgencyScore    float64 `json:"urgency_score"`
	RecurrenceScore float64 `json:"recurrence_score"`

	// Recent holds up to the last 100 events for the cluster.
	Recent []*Event `json:"recent,omitempty"`
}

// MissionStatus defines the lifecycle state of a mission
type MissionStatus string

const (
	MissionStatusPending   MissionStatus = "pending"
	MissionStatusRunning   MissionStatus = "running"
	MissionStatusCompleted MissionStatus = "completed"
	MissionStatusFailed    MissionStatus = "failed"
	MissionStatusSuspended MissionStatus = "suspended"
)

// Mission is a unit of remediation work created from a qualifying cluster
type Mission struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Priority    float64                `json:"priority"` // 0.0 to 1.0
	LaunchedBy  string                 `json:"launched_by"`
	Status      MissionStatus          `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`

	RiskScore     float64 `json:"risk_score"`     // 0.0 to 1.0
	ImpactScore   float64 `json:"impact_score"`   // 0.0 to 1.0
	CombinedScore float64 `json:"combined_score"` // 0.0 to 1.0

	Suspended        bool   `json:"suspended"`
	SuspensionReason string `json:"suspension_reason,omitempty"`
}

// Decision is the outcome of an admission check
type Decision string

const (
	DecisionAutoApproved Decision = "auto_approved"
	DecisionApproved     Decision = "approved"
	DecisionDenied       Decision = "denied"
	DecisionPending      Decision = "pending"
	DecisionEscalated    Decision = "escalated"
)

// RiskLevel classifies an admission risk score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// ApprovalRequest asks the admission gate to authorize an action on a resource
type ApprovalRequest struct {
	RequestID    string                 `json:"request_id"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Action       string                 `json:"action"`
	Requester    string                 `json:"requester"`
	Context      map[string]interface{} `json:"context,omitempty"`
	RequestedAt  time.Time              `json:"requested_at"`
}

// ApprovalResult is the decided outcome for an ApprovalRequest
type ApprovalResult struct {
	RequestID  string    `json:"request_id"`
	Decision   Decision  `json:"decision"`
	RiskLevel  RiskLevel `json:"risk_level"`
	RiskScore  float64   `json:"risk_score"`
	Reason     string    `json:"reason"`
	ApprovedBy string    `json:"approved_by,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Clamp01 bounds a score to the [0, 1] interval
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
