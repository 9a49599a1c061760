package admission

import (
	"strings"

	"github.com/opsmend/opsmend/internal/model"
)

// resourceTypeWeights carries the base risk contribution of each resource
// type. Unlisted types use defaultResourceWeight.
var resourceTypeWeights = map[string]float64{
	"production_model": 1.0,
	"staging_model":    0.6,
	"deployment":       0.8,
	"file_system":      0.7,
	"test_environment": 0.2,
}

// actionWeights carries the base risk contribution of each action. Unlisted
// actions use defaultActionWeight.
var actionWeights = map[string]float64{
	"delete":  1.0,
	"execute": 0.8,
	"modify":  0.7,
	"write":   0.6,
	"create":  0.5,
	"read":    0.2,
}

const (
	defaultResourceWeight = 0.5
	defaultActionWeight   = 0.5
)

// ScoreRisk computes the admission risk for a request:
// base = resourceWeight*0.6 + actionWeight*0.4, then contextual modifiers
// applied in order, then clamped to [0,1].
func ScoreRisk(req *model.ApprovalRequest) float64 {
	resourceWeight := defaultResourceWeight
	if w, ok := resourceTypeWeights[req.ResourceType]; ok {
		resourceWeight = w
	}
	actionWeight := defaultActionWeight
	if w, ok := actionWeights[strings.ToLower(req.Action)]; ok {
		actionWeight = w
	}

	risk := resourceWeight*0.6 + actionWeight*0.4

	if strings.Contains(req.ResourceType, "production") {
		risk *= 1.2
	}
	if strings.Contains(req.ResourceType, "test") || strings.Contains(req.ResourceType, "dev") {
		risk *= 0.5
	}
	if failures := contextFloat(req.Context, "prior_failures"); failures > 0 {
		risk *= 1 + 0.1*failures
	}
	if rate := contextFloat(req.Context, "success_rate"); rate > 0.9 {
		risk *= 0.8
	}

	return model.Clamp01(risk)
}

// ClassifyRisk maps a risk score to its level
func ClassifyRisk(score float64) model.RiskLevel {
	switch {
	case score < 0.3:
		return model.RiskLevelLow
	case score < 0.6:
		return model.RiskLevelMedium
	case score < 0.85:
		return model.RiskLevelHigh
	default:
		return model.RiskLevelCritical
	}
}

// contextFloat extracts a numeric context value, tolerating the types JSON
// decoding produces
func contextFloat(ctx map[string]interface{}, key string) float64 {
	if ctx == nil {
		return 0
	}
	switch v := ctx[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
