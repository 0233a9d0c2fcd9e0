package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-slowpeers/internal/metrics"
	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

// SlowPeerReader is the read side of the tracker exposed over HTTP.
type SlowPeerReader interface {
	Enabled() bool
	Snapshot() (string, bool)
	SlowNodes(limit int) []string
	DefaultSlowNodes() []string
	ReportsForNode(slowNode string) []models.SlowPeerReport
	ReportsForAllNodes() map[string][]models.SlowPeerReport
}

// NewMonitorHandler serves the monitoring endpoint:
//
//	GET /api/v1/slowpeers                 ranked JSON snapshot
//	GET /api/v1/slowpeers/nodes?limit=N   ranked slow node ids, snapshot size without limit
//	GET /api/v1/slowpeers/reports         valid reports of every slow node
//	GET /api/v1/slowpeers/reports/{node}  valid reports of one slow node
//
// Reports carrying NaN or infinite metrics cannot be encoded as JSON and are
// left out of the report listings.
//	GET /healthz
//	GET /metrics
func NewMonitorHandler(reader SlowPeerReader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &monitorHandler{reader: reader, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/slowpeers", metrics.Instrument("snapshot", http.HandlerFunc(h.snapshot)))
	mux.Handle("GET /api/v1/slowpeers/nodes", metrics.Instrument("slow_nodes", http.HandlerFunc(h.slowNodes)))
	mux.Handle("GET /api/v1/slowpeers/reports", metrics.Instrument("reports", http.HandlerFunc(h.allReports)))
	mux.Handle("GET /api/v1/slowpeers/reports/{node}", metrics.Instrument("node_reports", http.HandlerFunc(h.nodeReports)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type monitorHandler struct {
	reader SlowPeerReader
	logger *slog.Logger
}

func (h *monitorHandler) snapshot(w http.ResponseWriter, _ *http.Request) {
	if !h.reader.Enabled() {
		http.Error(w, "slow peer tracking is disabled", http.StatusServiceUnavailable)
		return
	}
	text, ok := h.reader.Snapshot()
	if !ok {
		http.Error(w, "slow peer snapshot unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(text))
}

func (h *monitorHandler) slowNodes(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if r.URL.Query().Has("limit") {
		n, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || CheckLimit("limit", n) != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		ids = h.reader.SlowNodes(n)
	} else {
		ids = h.reader.DefaultSlowNodes()
	}
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, map[string][]string{"slowNodes": ids})
}

func (h *monitorHandler) allReports(w http.ResponseWriter, _ *http.Request) {
	all := h.reader.ReportsForAllNodes()
	out := make(map[string][]models.SlowPeerReport, len(all))
	for node, reports := range all {
		if finite := h.finiteReports(node, reports); len(finite) > 0 {
			out[node] = finite
		}
	}
	h.writeJSON(w, out)
}

func (h *monitorHandler) nodeReports(w http.ResponseWriter, r *http.Request) {
	node := r.PathValue("node")
	h.writeJSON(w, h.finiteReports(node, h.reader.ReportsForNode(node)))
}

// finiteReports drops reports whose metrics JSON cannot represent. The result
// is never nil.
func (h *monitorHandler) finiteReports(node string, reports []models.SlowPeerReport) []models.SlowPeerReport {
	out := make([]models.SlowPeerReport, 0, len(reports))
	for _, r := range reports {
		if !finite(r.Latency, r.MedianLatency, r.MAD, r.UpperLatencyLimit) {
			h.logger.Debug("skipping report with non-finite metrics",
				slog.String("slow_node", node), slog.String("reporting_node", r.ReportingNode))
			continue
		}
		out = append(out, r)
	}
	return out
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (h *monitorHandler) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Debug("failed to encode monitoring response", slog.Any("error", err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
