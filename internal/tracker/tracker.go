// Package tracker aggregates slow peer reports received via heartbeats.
//
// Every cluster member periodically reports the peers it observed with
// outlier latency. The Tracker keeps the latest report per (slow node,
// reporting node) pair, hides reports older than the validity window and
// ranks slow nodes by the number of peers currently corroborating them.
//
// Stale reports are never removed proactively. A slow node's entry survives
// until Sweep is called, which only happens when the owner opts in.
package tracker

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

// ValidityMultiplier keeps a report alive across at least two missed reporting cycles.
const ValidityMultiplier = 3

// Clock returns the current time. Implementations must carry a monotonic
// reading (time.Now does) so that wall-clock jumps do not age reports.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config fixes the tracker's validity window and initial snapshot size.
type Config struct {
	ReportValidity   time.Duration
	MaxNodesToReport int
}

// ConfigFromInterval derives the validity window from the peers' reporting interval.
func ConfigFromInterval(reportInterval time.Duration, maxNodesToReport int) Config {
	return Config{
		ReportValidity:   reportInterval * ValidityMultiplier,
		MaxNodesToReport: maxNodesToReport,
	}
}

type observation struct {
	at      time.Time
	metrics models.OutlierMetrics
}

// nodeReports holds every reporter's latest observation about one slow node.
// Writers share mu for reading so that reports from distinct reporters never
// contend; only Sweep takes it exclusively to detach the entry.
type nodeReports struct {
	mu         sync.RWMutex
	detached   bool
	byReporter sync.Map // reporting node -> observation
}

// Tracker is safe for concurrent use by any number of reporters and readers.
type Tracker struct {
	logger   *slog.Logger
	clock    Clock
	validity time.Duration

	reports sync.Map // slow node -> *nodeReports

	maxMu            sync.Mutex
	maxNodesToReport atomic.Int64
}

// New constructs a Tracker. A nil logger falls back to slog.Default and a nil
// clock to the system monotonic clock.
func New(cfg Config, logger *slog.Logger, clock Clock) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = systemClock{}
	}
	t := &Tracker{
		logger:   logger,
		clock:    clock,
		validity: cfg.ReportValidity,
	}
	t.SetMaxNodesToReport(cfg.MaxNodesToReport)
	return t
}

// AddReport records that reportingNode currently considers slowNode slow,
// replacing any earlier report from the same reporter.
func (t *Tracker) AddReport(slowNode, reportingNode string, metrics models.OutlierMetrics) {
	obs := observation{at: t.clock.Now(), metrics: metrics}
	for {
		// LoadOrStore makes every concurrent first writer land in the same entry.
		v, _ := t.reports.LoadOrStore(slowNode, &nodeReports{})
		entry := v.(*nodeReports)

		entry.mu.RLock()
		if entry.detached {
			entry.mu.RUnlock()
			continue
		}
		entry.byReporter.Store(reportingNode, obs)
		entry.mu.RUnlock()
		return
	}
}

// AddReports records every slow peer in batch on behalf of its reporting node
// and returns the number of reports stored.
func (t *Tracker) AddReports(batch models.ReportBatch) int {
	for slowNode, metrics := range batch.SlowPeers {
		t.AddReport(slowNode, batch.ReportingNode, metrics)
	}
	return len(batch.SlowPeers)
}

// ReportsForNode returns the valid reports implicating slowNode, ordered by
// reporting node. Unknown nodes yield an empty result.
func (t *Tracker) ReportsForNode(slowNode string) []models.SlowPeerReport {
	v, ok := t.reports.Load(slowNode)
	if !ok {
		return nil
	}
	return t.validReports(v.(*nodeReports), t.clock.Now())
}

// ReportsForAllNodes returns the valid reports of every slow node that has at
// least one. The view is weakly consistent with concurrent writers.
func (t *Tracker) ReportsForAllNodes() map[string][]models.SlowPeerReport {
	now := t.clock.Now()
	out := make(map[string][]models.SlowPeerReport)
	t.reports.Range(func(key, value any) bool {
		if valid := t.validReports(value.(*nodeReports), now); len(valid) > 0 {
			out[key.(string)] = valid
		}
		return true
	})
	return out
}

// SlowNodes returns up to limit node ids with the most corroborating reports,
// most corroborated first.
func (t *Tracker) SlowNodes(limit int) []string {
	ranked := selectTopN(t.ReportsForAllNodes(), limit)
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.SlowNode)
	}
	if len(ids) > 0 {
		t.logger.Warn("slow nodes detected", slog.Any("nodes", ids))
	}
	return ids
}

// Len returns the number of slow nodes tracked, stale ones included.
func (t *Tracker) Len() int {
	n := 0
	t.reports.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep drops slow nodes whose reports have all gone stale and returns how
// many were removed. Reports that race with the sweep are retained.
func (t *Tracker) Sweep() int {
	now := t.clock.Now()
	removed := 0
	t.reports.Range(func(key, value any) bool {
		entry := value.(*nodeReports)
		entry.mu.Lock()
		if !entry.detached && !t.hasValid(entry, now) {
			entry.detached = true
			t.reports.CompareAndDelete(key, entry)
			removed++
		}
		entry.mu.Unlock()
		return true
	})
	if removed > 0 {
		t.logger.Debug("swept stale slow nodes", slog.Int("removed", removed))
	}
	return removed
}

// ReportValidity is the age at which a report stops counting.
func (t *Tracker) ReportValidity() time.Duration {
	return t.validity
}

// MaxNodesToReport is the number of nodes included in the JSON snapshot.
func (t *Tracker) MaxNodesToReport() int {
	return int(t.maxNodesToReport.Load())
}

// SetMaxNodesToReport changes the snapshot size for subsequent snapshots.
// Negative values are treated as zero.
func (t *Tracker) SetMaxNodesToReport(n int) {
	if n < 0 {
		n = 0
	}
	t.maxMu.Lock()
	defer t.maxMu.Unlock()
	t.maxNodesToReport.Store(int64(n))
}

func (t *Tracker) validReports(entry *nodeReports, now time.Time) []models.SlowPeerReport {
	var out []models.SlowPeerReport
	entry.byReporter.Range(func(key, value any) bool {
		obs := value.(observation)
		if t.isValid(obs, now) {
			out = append(out, models.NewSlowPeerReport(key.(string), obs.metrics))
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ReportingNode < out[j].ReportingNode })
	return out
}

func (t *Tracker) hasValid(entry *nodeReports, now time.Time) bool {
	found := false
	entry.byReporter.Range(func(_, value any) bool {
		found = t.isValid(value.(observation), now)
		return !found
	})
	return found
}
