package tracker

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(validity time.Duration) (*Tracker, *fakeClock) {
	clock := newFakeClock()
	return New(Config{ReportValidity: validity, MaxNodesToReport: 5}, nil, clock), clock
}

func metricsFor(latency float64) models.OutlierMetrics {
	return models.OutlierMetrics{Latency: latency, MedianLatency: 40, MAD: 5, UpperLatencyLimit: 70}
}

func TestConfigFromInterval(t *testing.T) {
	cfg := ConfigFromInterval(30*time.Minute, 7)
	assert.Equal(t, 90*time.Minute, cfg.ReportValidity)
	assert.Equal(t, 7, cfg.MaxNodesToReport)

	tr := New(cfg, nil, nil)
	assert.Equal(t, 90*time.Minute, tr.ReportValidity())
	assert.Equal(t, 7, tr.MaxNodesToReport())
}

func TestReportsExpireAfterValidityWindow(t *testing.T) {
	tr, clock := newTestTracker(300 * time.Millisecond)
	tr.AddReport("dn1", "dn2", metricsFor(120.5))

	clock.Advance(100 * time.Millisecond)
	reports := tr.ReportsForNode("dn1")
	require.Len(t, reports, 1)
	assert.Equal(t, "dn2", reports[0].ReportingNode)

	clock.Advance(300 * time.Millisecond)
	assert.Empty(t, tr.ReportsForNode("dn1"))
	assert.Empty(t, tr.ReportsForAllNodes())
	assert.Empty(t, tr.SlowNodes(3))

	text, ok := tr.SnapshotJSON()
	require.True(t, ok)
	assert.Equal(t, "[]", text)
}

func TestReportAtExactValidityIsStale(t *testing.T) {
	tr, clock := newTestTracker(time.Second)
	tr.AddReport("dn1", "dn2", metricsFor(1))

	clock.Advance(time.Second - time.Nanosecond)
	assert.Len(t, tr.ReportsForNode("dn1"), 1)

	clock.Advance(time.Nanosecond)
	assert.Empty(t, tr.ReportsForNode("dn1"))
}

func TestUnknownNodeHasNoReports(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	assert.Empty(t, tr.ReportsForNode("missing"))
	assert.Empty(t, tr.ReportsForAllNodes())
	assert.Zero(t, tr.Len())
}

func TestLaterReportOverwritesEarlier(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.AddReport("dn1", "dn2", models.OutlierMetrics{Latency: 10, MedianLatency: 1, MAD: 2, UpperLatencyLimit: 3})
	clock.Advance(50 * time.Second)
	tr.AddReport("dn1", "dn2", models.OutlierMetrics{Latency: 20, MedianLatency: 4, MAD: 5, UpperLatencyLimit: 6})

	reports := tr.ReportsForNode("dn1")
	require.Len(t, reports, 1)
	assert.Equal(t, models.SlowPeerReport{
		ReportingNode:     "dn2",
		Latency:           20,
		MedianLatency:     4,
		MAD:               5,
		UpperLatencyLimit: 6,
	}, reports[0])

	// The overwrite also refreshed the timestamp.
	clock.Advance(30 * time.Second)
	assert.Len(t, tr.ReportsForNode("dn1"), 1)
}

func TestReportsOrderedByReportingNode(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	for _, reporter := range []string{"dn9", "dn3", "dn5", "dn1"} {
		tr.AddReport("slow", reporter, metricsFor(1))
	}

	var got []string
	for _, r := range tr.ReportsForNode("slow") {
		got = append(got, r.ReportingNode)
	}
	assert.Equal(t, []string{"dn1", "dn3", "dn5", "dn9"}, got)
}

func TestReportsForAllNodesOmitsStaleOnlyNodes(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.AddReport("old", "dn1", metricsFor(1))
	clock.Advance(45 * time.Second)
	tr.AddReport("fresh", "dn1", metricsFor(2))
	tr.AddReport("mixed", "dn1", metricsFor(3))
	clock.Advance(30 * time.Second)
	tr.AddReport("mixed", "dn2", metricsFor(4))

	all := tr.ReportsForAllNodes()
	assert.NotContains(t, all, "old")
	require.Contains(t, all, "fresh")
	require.Contains(t, all, "mixed")
	for node, reports := range all {
		assert.NotEmpty(t, reports, "node %s has an empty report set", node)
	}
	assert.Equal(t, 3, tr.Len())
}

func addVotes(tr *Tracker, slowNode string, votes int) {
	for i := 0; i < votes; i++ {
		tr.AddReport(slowNode, fmt.Sprintf("reporter-%d", i), metricsFor(float64(i)))
	}
}

func TestSlowNodesReturnsMostCorroborated(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	addVotes(tr, "A", 5)
	addVotes(tr, "B", 3)
	addVotes(tr, "C", 3)
	addVotes(tr, "D", 1)

	got := tr.SlowNodes(2)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0])
	assert.Contains(t, []string{"B", "C"}, got[1])

	assert.Equal(t, []string{"A", "B", "C", "D"}, tr.SlowNodes(10))
}

func TestSlowNodesRespectsLimit(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	addVotes(tr, "stale", 9)
	clock.Advance(2 * time.Minute)
	for i := 0; i < 6; i++ {
		addVotes(tr, fmt.Sprintf("node-%d", i), i+1)
	}

	for limit := 0; limit <= 8; limit++ {
		got := tr.SlowNodes(limit)
		assert.LessOrEqual(t, len(got), limit)
		assert.NotContains(t, got, "stale")
		for _, id := range got {
			assert.NotEmpty(t, tr.ReportsForNode(id))
		}
	}
	assert.Empty(t, tr.SlowNodes(-1))
}

func TestConcurrentFirstReportsAreAllRetained(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)

	const reporters = 64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < reporters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tr.AddReport("new-node", fmt.Sprintf("reporter-%02d", i), metricsFor(float64(i)))
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Len(t, tr.ReportsForNode("new-node"), reporters)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)

	const (
		writers = 16
		nodes   = 32
	)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < nodes; n++ {
				tr.AddReport(fmt.Sprintf("node-%d", n), fmt.Sprintf("writer-%d", w), metricsFor(float64(n)))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tr.ReportsForAllNodes()
				_ = tr.SlowNodes(5)
				_, _ = tr.SnapshotJSON()
			}
		}()
	}
	wg.Wait()

	all := tr.ReportsForAllNodes()
	require.Len(t, all, nodes)
	for node, reports := range all {
		assert.Len(t, reports, writers, "node %s", node)
	}
}

func TestSweepRemovesStaleOnlyNodes(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.AddReport("gone", "dn1", metricsFor(1))
	tr.AddReport("kept", "dn1", metricsFor(1))
	clock.Advance(50 * time.Second)
	tr.AddReport("kept", "dn2", metricsFor(1))
	clock.Advance(20 * time.Second)

	assert.Equal(t, 1, tr.Sweep())
	assert.Equal(t, 1, tr.Len())
	assert.Len(t, tr.ReportsForNode("kept"), 1)
	assert.Zero(t, tr.Sweep())

	tr.AddReport("gone", "dn3", metricsFor(2))
	assert.Len(t, tr.ReportsForNode("gone"), 1)
}

func TestReportsRacingSweepAreNotLost(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)

	const nodes = 64
	for n := 0; n < nodes; n++ {
		tr.AddReport(fmt.Sprintf("node-%d", n), "old-reporter", metricsFor(1))
	}
	clock.Advance(2 * time.Minute)

	stop := make(chan struct{})
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		for {
			select {
			case <-stop:
				return
			default:
				tr.Sweep()
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < nodes; n++ {
				tr.AddReport(fmt.Sprintf("node-%d", n), fmt.Sprintf("writer-%d", w), metricsFor(2))
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	<-sweeperDone

	for n := 0; n < nodes; n++ {
		assert.Len(t, tr.ReportsForNode(fmt.Sprintf("node-%d", n)), 8, "node-%d", n)
	}
}

func TestAddReportsBatch(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	stored := tr.AddReports(models.ReportBatch{
		ReportingNode: "dn2",
		SlowPeers: map[string]models.OutlierMetrics{
			"dn1": metricsFor(10),
			"dn3": metricsFor(30),
		},
	})
	assert.Equal(t, 2, stored)
	assert.Len(t, tr.ReportsForNode("dn1"), 1)
	assert.Len(t, tr.ReportsForNode("dn3"), 1)
}

func TestSetMaxNodesToReport(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	addVotes(tr, "A", 3)
	addVotes(tr, "B", 2)
	addVotes(tr, "C", 1)

	tr.SetMaxNodesToReport(2)
	assert.Len(t, tr.Snapshot(), 2)

	tr.SetMaxNodesToReport(-4)
	assert.Zero(t, tr.MaxNodesToReport())
	assert.Empty(t, tr.Snapshot())

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.SetMaxNodesToReport(n)
		}(i)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, tr.MaxNodesToReport(), 1)
	assert.LessOrEqual(t, tr.MaxNodesToReport(), 10)
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.AddReport("dn1", "dn2", models.OutlierMetrics{Latency: 1, MedianLatency: 1, MAD: 1, UpperLatencyLimit: 1})
	tr.AddReport("dn1", "dn2", models.OutlierMetrics{Latency: 120.5, MedianLatency: 40, MAD: 5, UpperLatencyLimit: 70})
	tr.AddReport("dn1", "dn3", models.OutlierMetrics{Latency: 99, MedianLatency: 41, MAD: 6, UpperLatencyLimit: 71})
	tr.AddReport("dn4", "dn2", models.OutlierMetrics{Latency: 300, MedianLatency: 50, MAD: 7, UpperLatencyLimit: 80})
	tr.AddReport("dn5", "dn6", metricsFor(8))
	clock.Advance(90 * time.Second)
	tr.AddReport("dn4", "dn2", models.OutlierMetrics{Latency: 300, MedianLatency: 50, MAD: 7, UpperLatencyLimit: 80})

	text, ok := tr.SnapshotJSON()
	require.True(t, ok)

	var parsed []models.SlowPeerJSONReport
	require.NoError(t, json.Unmarshal([]byte(text), &parsed))
	assert.Equal(t, []models.SlowPeerJSONReport{
		{
			SlowNode: "dn4",
			Reports: []models.SlowPeerReport{
				{ReportingNode: "dn2", Latency: 300, MedianLatency: 50, MAD: 7, UpperLatencyLimit: 80},
			},
		},
	}, parsed)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &raw))
	require.Len(t, raw, 1)
	assert.Contains(t, raw[0], "slowNode")
	assert.Contains(t, raw[0], "reports")
}

func TestSnapshotJSONFailsSoftly(t *testing.T) {
	tr, _ := newTestTracker(time.Minute)
	tr.AddReport("dn1", "dn2", models.OutlierMetrics{Latency: math.NaN()})

	text, ok := tr.SnapshotJSON()
	assert.False(t, ok)
	assert.Empty(t, text)

	// Read paths that do not serialize are unaffected.
	assert.Equal(t, []string{"dn1"}, tr.SlowNodes(1))
}
