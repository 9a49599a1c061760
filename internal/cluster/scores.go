package cluster

import (
	"time"
)

// minRecurrenceSpan is the minimum observed lifespan before the event rate
// carries any signal
const minRecurrenceSpan = 60 * time.Second

// RecurrenceScore maps a cluster's event rate to a [0,1] score. Clusters
// observed for less than a minute return a flat 0.3 (insufficient signal).
func RecurrenceScore(eventCount int, firstSeen, lastSeen time.Time) float64 {
	span := lastSeen.Sub(firstSeen)
	if span < minRecurrenceSpan {
		return 0.3
	}

	rate := float64(eventCount) / span.Hours()
	switch {
	case rate > 10:
		return 1.0
	case rate > 5:
		return 0.8
	case rate > 2:
		return 0.6
	case rate > 1:
		return 0.4
	default:
		return 0.2
	}
}

// UrgencyScore blends severity weight with recurrence, 60/40
func UrgencyScore(severity string, recurrence float64) float64 {
	return SeverityWeight(severity)*0.6 + recurrence*0.4
}
