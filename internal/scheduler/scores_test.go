package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissionRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		severity string
		expected float64
	}{
		{"guardian critical clamps", "guardian", "critical", 1.0}, // 0.9*1.5=1.35
		{"guardian high", "guardian", "high", 1.0},                // 0.9*1.2=1.08
		{"system medium", "system", "medium", 0.8},
		{"agent low", "agent", "low", 0.42}, // 0.6*0.7
		{"rag medium", "rag", "medium", 0.4},
		{"remote access high", "remote_access", "high", 0.6}, // 0.5*1.2
		{"unknown domain default", "unknown", "medium", 0.5},
		{"unknown severity multiplier", "agent", "weird", 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, MissionRiskScore(tt.domain, tt.severity), 1e-9)
		})
	}
}

func TestImpactScore(t *testing.T) {
	// min(1, count/10)*0.3 + urgency*0.4 + recurrence*0.3
	assert.InDelta(t, 0.5*0.3+0.6*0.4+0.4*0.3, ImpactScore(5, 0.6, 0.4), 1e-9)

	// Event volume saturates at 10.
	assert.InDelta(t, 1.0*0.3+0.5*0.4+0.5*0.3, ImpactScore(50, 0.5, 0.5), 1e-9)

	// Fully loaded input clamps to 1.
	assert.Equal(t, 1.0, ImpactScore(100, 1.0, 1.0))
}

func TestCombinedScore(t *testing.T) {
	// risk*0.4 + impact*0.6 reproduces exactly for given floats.
	assert.InDelta(t, 0.72, CombinedScore(0.9, 0.6), 1e-9)
	assert.InDelta(t, 0.0, CombinedScore(0, 0), 1e-9)
	assert.InDelta(t, 1.0, CombinedScore(1, 1), 1e-9)
}
