package cluster

import (
	"strings"
)

// Severity levels, lowest to highest
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityWeights ranks severities for urgency scoring
var severityWeights = map[string]float64{
	SeverityCritical: 1.0,
	SeverityHigh:     0.8,
	SeverityMedium:   0.5,
	SeverityLow:      0.2,
}

// ClassifyDomain infers the owning domain from an event type. Precedence:
// guardian/infra, then boot/system, then knowledge/agent, else unknown.
func ClassifyDomain(eventType string) string {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "guardian") || strings.Contains(t, "infra"):
		return "guardian"
	case strings.Contains(t, "boot") || strings.Contains(t, "system"):
		return "system"
	case strings.Contains(t, "knowledge") || strings.Contains(t, "agent"):
		return "agent"
	default:
		return "unknown"
	}
}

// ClassifySeverity infers severity from an event type. An explicitly
// supplied severity always wins.
func ClassifySeverity(eventType, explicit string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "critical") || strings.Contains(t, "failed"):
		return SeverityHigh
	case strings.Contains(t, "error") || strings.Contains(t, "warning") ||
		strings.Contains(t, "degraded") || strings.Contains(t, "anomaly"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ClassifyPattern infers the failure pattern from an event type
func ClassifyPattern(eventType string) string {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "error") || strings.Contains(t, "failed"):
		return "error"
	case strings.Contains(t, "anomaly"):
		return "anomaly"
	case strings.Contains(t, "degrad"):
		return "degradation"
	case strings.Contains(t, "blocked"):
		return "blocked"
	default:
		return "general"
	}
}

// SeverityWeight returns the urgency weight for a severity, defaulting to
// the low weight for unknown values
func SeverityWeight(severity string) float64 {
	if w, ok := severityWeights[strings.ToLower(severity)]; ok {
		return w
	}
	return severityWeights[SeverityLow]
}
