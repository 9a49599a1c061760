package cluster

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmend/opsmend/internal/audit"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(24*time.Hour, m, audit.NopSink{}, logger)
}

func TestEngineClusterKeyUniqueness(t *testing.T) {
	engine := newTestEngine(t)

	// Same signature from different event types lands in one cluster.
	engine.Ingest("agent_task_error", nil, "")
	engine.Ingest("agent_sync_error", nil, "")
	engine.Ingest("guardian_check_failed", nil, "")
	engine.ProcessPending()

	clusters := engine.Snapshot(true)
	require.Len(t, clusters, 2)

	keys := map[string]bool{}
	for _, c := range clusters {
		keys[c.Key] = true
	}
	assert.True(t, keys["agent:medium:error"])
	assert.True(t, keys["guardian:high:error"])
}

func TestEngineBufferSwapKeepsConcurrentEvents(t *testing.T) {
	engine := newTestEngine(t)

	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 50

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				engine.Ingest(fmt.Sprintf("agent_error_%d", n%2), nil, "")
				if j%10 == 0 {
					engine.ProcessPending()
				}
			}
		}(i)
	}
	wg.Wait()
	engine.ProcessPending()

	total := 0
	for _, c := range engine.Snapshot(true) {
		total += c.EventCount
	}
	assert.Equal(t, producers*perProducer, total, "no event may be lost across buffer swaps")
}

func TestShouldAdmit(t *testing.T) {
	tests := []struct {
		name      string
		cluster   *model.Cluster
		threshold float64
		expected  bool
	}{
		{
			name: "urgency above threshold",
			cluster: &model.Cluster{
				UrgencyScore: 0.75, RecurrenceScore: 0.2, EventCount: 2, Severity: SeverityHigh,
			},
			threshold: 0.7,
			expected:  true,
		},
		{
			name: "high recurrence alone qualifies",
			cluster: &model.Cluster{
				UrgencyScore: 0.1, RecurrenceScore: 0.8, EventCount: 2, Severity: SeverityLow,
			},
			threshold: 0.7,
			expected:  true,
		},
		{
			name: "five events qualify despite low urgency",
			cluster: &model.Cluster{
				UrgencyScore: 0.24, RecurrenceScore: 0.3, EventCount: 5, Severity: SeverityLow,
			},
			threshold: 0.3,
			expected:  true,
		},
		{
			name: "critical severity always qualifies",
			cluster: &model.Cluster{
				UrgencyScore: 0.1, RecurrenceScore: 0.1, EventCount: 1, Severity: SeverityCritical,
			},
			threshold: 0.7,
			expected:  true,
		},
		{
			name: "quiet cluster does not qualify",
			cluster: &model.Cluster{
				UrgencyScore: 0.2, RecurrenceScore: 0.2, EventCount: 2, Severity: SeverityLow,
			},
			threshold: 0.3,
			expected:  false,
		},
		{
			name: "existing mission blocks admission",
			cluster: &model.Cluster{
				UrgencyScore: 0.9, RecurrenceScore: 0.9, EventCount: 20,
				Severity: SeverityCritical, MissionID: "mission-1",
			},
			threshold: 0.3,
			expected:  false,
		},
		{
			name: "resolved cluster blocks admission",
			cluster: &model.Cluster{
				UrgencyScore: 0.9, RecurrenceScore: 0.9, EventCount: 20,
				Severity: SeverityCritical, Resolved: true,
			},
			threshold: 0.3,
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldAdmit(tt.cluster, tt.threshold))
		})
	}
}

func TestFiveLowSeverityErrorsQualify(t *testing.T) {
	engine := newTestEngine(t)

	// 5 "error" events for domain=agent at explicit low severity within a
	// short window: urgency stays below the steady threshold but the event
	// count triggers admission.
	for i := 0; i < 5; i++ {
		engine.Ingest("agent_error", nil, "low")
	}
	engine.ProcessPending()

	qualifying := engine.Qualifying(0.3, func(string) bool { return true })
	require.Len(t, qualifying, 1)
	c := qualifying[0]
	assert.Equal(t, "agent:low:error", c.Key)
	assert.Less(t, c.UrgencyScore, 0.3)
	assert.GreaterOrEqual(t, c.EventCount, 5)
}

func TestEngineDomainFilter(t *testing.T) {
	engine := newTestEngine(t)

	for i := 0; i < 5; i++ {
		engine.Ingest("agent_error", nil, "")
		engine.Ingest("system_error", nil, "")
	}
	engine.ProcessPending()

	infraOnly := map[string]bool{"guardian": true, "system": true, "kernel": true}
	qualifying := engine.Qualifying(0.7, func(d string) bool { return infraOnly[d] })
	require.Len(t, qualifying, 1)
	assert.Equal(t, "system", qualifying[0].Domain)
}

func TestEngineSetMissionOnce(t *testing.T) {
	engine := newTestEngine(t)
	engine.Ingest("agent_error", nil, "")
	engine.ProcessPending()

	assert.True(t, engine.SetMission("agent:medium:error", "mission-1"))
	assert.False(t, engine.SetMission("agent:medium:error", "mission-2"))
	assert.False(t, engine.SetMission("no:such:cluster", "mission-3"))

	c, ok := engine.Get("agent:medium:error")
	require.True(t, ok)
	assert.Equal(t, "mission-1", c.MissionID)
}

func TestEngineResolveMonotonic(t *testing.T) {
	engine := newTestEngine(t)
	engine.Ingest("agent_error", nil, "")
	engine.ProcessPending()

	assert.True(t, engine.Resolve("agent:medium:error", "tester"))
	assert.False(t, engine.Resolve("agent:medium:error", "tester"))
	assert.False(t, engine.Resolve("no:such:cluster", "tester"))

	assert.Empty(t, engine.Snapshot(false))
	assert.Len(t, engine.Snapshot(true), 1)
}

func TestEngineGC(t *testing.T) {
	engine := newTestEngine(t)
	engine.Ingest("agent_error", nil, "")
	engine.ProcessPending()
	engine.Resolve("agent:medium:error", "tester")

	assert.Equal(t, 0, engine.GC(time.Now()))
	assert.Equal(t, 1, engine.GC(time.Now().Add(25*time.Hour)))
	assert.Empty(t, engine.Snapshot(true))
}

func TestEngineRecentEventsBounded(t *testing.T) {
	engine := newTestEngine(t)
	for i := 0; i < 150; i++ {
		engine.Ingest("agent_error", map[string]interface{}{"seq": i}, "")
	}
	engine.ProcessPending()

	c, ok := engine.Get("agent:medium:error")
	require.True(t, ok)
	assert.Equal(t, 150, c.EventCount)
	assert.Len(t, c.Recent, recentEventCap)
}

func TestEngineExplicitDomainOverride(t *testing.T) {
	engine := newTestEngine(t)
	engine.Ingest("connection_error", map[string]interface{}{"domain": "remote_access"}, "")
	engine.ProcessPending()

	_, ok := engine.Get("remote_access:medium:error")
	assert.True(t, ok)
}
