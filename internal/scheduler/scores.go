package scheduler

import (
	"strings"

	"github.com/opsmend/opsmend/internal/model"
)

// domainRiskWeights carries the base risk of remediating in each domain.
// Unlisted domains use defaultDomainWeight.
var domainRiskWeights = map[string]float64{
	"guardian":      0.9,
	"system":        0.8,
	"agent":         0.6,
	"remote_access": 0.5,
	"rag":           0.4,
}

// severityMultipliers scales domain risk by cluster severity
var severityMultipliers = map[string]float64{
	"critical": 1.5,
	"high":     1.2,
	"medium":   1.0,
	"low":      0.7,
}

const (
	defaultDomainWeight       = 0.5
	defaultSeverityMultiplier = 1.0
)

// MissionRiskScore computes the mission-priority risk for a cluster's
// domain and severity
func MissionRiskScore(domain, severity string) float64 {
	weight := defaultDomainWeight
	if w, ok := domainRiskWeights[strings.ToLower(domain)]; ok {
		weight = w
	}
	multiplier := defaultSeverityMultiplier
	if m, ok := severityMultipliers[strings.ToLower(severity)]; ok {
		multiplier = m
	}
	return model.Clamp01(weight * multiplier)
}

// ImpactScore blends event volume, urgency, and recurrence 30/40/30
func ImpactScore(eventCount int, urgency, recurrence float64) float64 {
	volume := float64(eventCount) / 10
	if volume > 1 {
		volume = 1
	}
	return model.Clamp01(volume*0.3 + urgency*0.4 + recurrence*0.3)
}

// CombinedScore blends mission risk and impact 40/60 for scheduling order
func CombinedScore(risk, impact float64) float64 {
	return risk*0.4 + impact*0.6
}
