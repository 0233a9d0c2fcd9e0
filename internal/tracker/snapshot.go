package tracker

import (
	"encoding/json"
	"log/slog"

	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

// Snapshot returns the top MaxNodesToReport entries, most corroborated first.
// The limit is read once, so a concurrent SetMaxNodesToReport only affects
// later snapshots.
func (t *Tracker) Snapshot() []models.SlowPeerJSONReport {
	return selectTopN(t.ReportsForAllNodes(), t.MaxNodesToReport())
}

// SnapshotJSON renders Snapshot as JSON. It returns false when rendering
// fails; the failure is logged at debug level only.
func (t *Tracker) SnapshotJSON() (string, bool) {
	reports := t.Snapshot()
	if reports == nil {
		reports = []models.SlowPeerJSONReport{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		t.logger.Debug("failed to serialize slow peer statistics", slog.Any("error", err))
		return "", false
	}
	return string(data), true
}
