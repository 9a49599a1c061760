package cluster

import (
	"container/ring"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/opsmend/opsmend/internal/audit"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/model"
)

// recentEventCap bounds the per-cluster history of recent events
const recentEventCap = 100

// clusterState is the engine-owned mutable state for one cluster
type clusterState struct {
	key        string
	domain     string
	severity   string
	pattern    string
	eventCount int
	firstSeen  time.Time
	lastSeen   time.Time
	missionID  string
	resolved   bool
	resolvedAt time.Time
	recent     *ring.Ring
}

// Engine ingests operational events and buckets them into clusters keyed by
// (domain, severity, pattern). Ingest never blocks the caller; events land in
// a pending buffer that each engine tick atomically swaps out and processes.
// The clusters map is owned exclusively by the engine.
type Engine struct {
	bufMu   sync.Mutex
	pending []*model.Event

	mu       sync.RWMutex
	clusters map[string]*clusterState

	retention time.Duration
	metrics   *metrics.Metrics
	sink      audit.Sink
	logger    *slog.Logger
}

// NewEngine creates an event cluster engine. retention controls how long
// resolved clusters are kept before garbage collection.
func NewEngine(retention time.Duration, m *metrics.Metrics, sink audit.Sink, logger *slog.Logger) *Engine {
	return &Engine{
		clusters:  make(map[string]*clusterState),
		retention: retention,
		metrics:   m,
		sink:      sink,
		logger:    logger,
	}
}

// Ingest classifies an event and appends it to the pending buffer. Safe for
// concurrent use by any number of producers; never blocks beyond the buffer
// mutex. Severity may be empty, in which case it is inferred from the type.
func (e *Engine) Ingest(eventType string, payload map[string]interface{}, severity string) {
	if eventType == "" {
		e.logger.Warn("Dropping event with empty type")
		e.metrics.EventsInvalidTotal.Inc()
		return
	}

	domain := ClassifyDomain(eventType)
	if d, ok := payload["domain"].(string); ok && d != "" {
		domain = d
	}

	ev := &model.Event{
		Type:       eventType,
		Domain:     domain,
		Severity:   ClassifySeverity(eventType, severity),
		Pattern:    ClassifyPattern(eventType),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	e.bufMu.Lock()
	e.pending = append(e.pending, ev)
	e.bufMu.Unlock()

	e.metrics.EventsTotal.Inc()
}

// ProcessPending swaps the pending buffer for an empty one and folds the
// swapped events into clusters. The swap is an atomic exchange under the
// buffer mutex so events arriving concurrently are never lost. Returns the
// number of events processed.
func (e *Engine) ProcessPending() int {
	e.bufMu.Lock()
	batch := e.pending
	e.pending = nil
	e.bufMu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range batch {
		key := fmt.Sprintf("%s:%s:%s", ev.Domain, ev.Severity, ev.Pattern)
		c, ok := e.clusters[key]
		if !ok {
			c = &clusterState{
				key:       key,
				domain:    ev.Domain,
				severity:  ev.Severity,
				pattern:   ev.Pattern,
				firstSeen: ev.ReceivedAt,
				recent:    ring.New(recentEventCap),
			}
			e.clusters[key] = c
			e.metrics.ClustersCreated.Inc()
			e.logger.Info("Cluster created", "cluster_key", key,
				"domain", ev.Domain, "severity", ev.Severity, "pattern", ev.Pattern)
		}

		c.eventCount++
		c.lastSeen = ev.ReceivedAt
		c.recent.Value = ev
		c.recent = c.recent.Next()
	}

	e.updateOpenGauge()
	return len(batch)
}

// snapshotLocked builds a read-only view of a cluster with scores computed.
// Caller must hold at least a read lock.
func (e *Engine) snapshotLocked(c *clusterState, withRecent bool) *model.Cluster {
	recurrence := RecurrenceScore(c.eventCount, c.firstSeen, c.lastSeen)
	out := &model.Cluster{
		Key:             c.key,
		Domain:          c.domain,
		Severity:        c.severity,
		Pattern:         c.pattern,
		EventCount:      c.eventCount,
		FirstSeen:       c.firstSeen,
		LastSeen:        c.lastSeen,
		MissionID:       c.missionID,
		Resolved:        c.resolved,
		ResolvedAt:      c.resolvedAt,
		RecurrenceScore: recurrence,
		UrgencyScore:    UrgencyScore(c.severity, recurrence),
	}
	if withRecent {
		c.recent.Do(func(v interface{}) {
			if ev, ok := v.(*model.Event); ok {
				out.Recent = append(out.Recent, ev)
			}
		})
	}
	return out
}

// Snapshot returns clusters sorted by descending urgency
func (e *Engine) Snapshot(includeResolved bool) []*model.Cluster {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*model.Cluster, 0, len(e.clusters))
	for _, c := range e.clusters {
		if c.resolved && !includeResolved {
			continue
		}
		out = append(out, e.snapshotLocked(c, false))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UrgencyScore > out[j].UrgencyScore
	})
	return out
}

// Get returns a snapshot of a single cluster, recent events included
func (e *Engine) Get(key string) (*model.Cluster, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.clusters[key]
	if !ok {
		return nil, false
	}
	return e.snapshotLocked(c, true), true
}

// ShouldAdmit reports whether a cluster merits remediation at the given
// urgency threshold. Clusters that already have a mission or are resolved
// never qualify.
func ShouldAdmit(c *model.Cluster, threshold float64) bool {
	if c.MissionID != "" || c.Resolved {
		return false
	}
	return c.UrgencyScore >= threshold ||
		c.RecurrenceScore >= 0.8 ||
		c.EventCount >= 5 ||
		c.Severity == SeverityCritical
}

// Qualifying returns admissible clusters, most urgent first, filtered by the
// cadence controller's domain policy.
func (e *Engine) Qualifying(threshold float64, domainAllowed func(string) bool) []*model.Cluster {
	all := e.Snapshot(false)

	var out []*model.Cluster
	for _, c := range all {
		if !domainAllowed(c.Domain) {
			continue
		}
		if ShouldAdmit(c, threshold) {
			out = append(out, c)
		}
	}
	return out
}

// SetMission records the mission launched for a cluster. The mission ID is
// set once; later calls are rejected.
func (e *Engine) SetMission(key, missionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clusters[key]
	if !ok || c.missionID != "" {
		return false
	}
	c.missionID = missionID
	return true
}

// Resolve marks a cluster resolved. The transition is monotonic; resolving
// an already-resolved or unknown cluster returns false.
func (e *Engine) Resolve(key, actor string) bool {
	e.mu.Lock()
	c, ok := e.clusters[key]
	if !ok || c.resolved {
		e.mu.Unlock()
		return false
	}
	c.resolved = true
	c.resolvedAt = time.Now().UTC()
	eventCount := c.eventCount
	e.updateOpenGauge()
	e.mu.Unlock()

	e.metrics.ClustersResolved.Inc()
	e.sink.Append("cluster", "resolved", actor, "resolve", key, map[string]interface{}{
		"event_count": eventCount,
	})
	e.logger.Info("Cluster resolved", "cluster_key", key, "actor", actor)
	return true
}

// GC removes resolved clusters older than the retention window
func (e *Engine) GC(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	cutoff := now.Add(-e.retention)
	for key, c := range e.clusters {
		if c.resolved && c.resolvedAt.Before(cutoff) {
			delete(e.clusters, key)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Info("Garbage-collected resolved clusters", "removed", removed)
	}
	return removed
}

// Stats returns engine statistics
func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	open := 0
	for _, c := range e.clusters {
		if !c.resolved {
			open++
		}
	}

	e.bufMu.Lock()
	pending := len(e.pending)
	e.bufMu.Unlock()

	return map[string]interface{}{
		"clusters_total": len(e.clusters),
		"clusters_open":  open,
		"events_pending": pending,
	}
}

// updateOpenGauge refreshes the open-clusters gauge. Caller holds e.mu.
func (e *Engine) updateOpenGauge() {
	open := 0
	for _, c := range e.clusters {
		if !c.resolved {
			open++
		}
	}
	e.metrics.ClustersOpen.Set(float64(open))
}
