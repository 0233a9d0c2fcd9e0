package models

// OutlierMetrics is the latency summary a reporting node computed for one of its peers.
// The tracker stores it verbatim.
type OutlierMetrics struct {
	Latency           float64 `json:"latency"`
	MedianLatency     float64 `json:"medianLatency"`
	MAD               float64 `json:"mad"`
	UpperLatencyLimit float64 `json:"upperLatencyLimit"`
}

// SlowPeerReport is a reporting node's latest valid accusation against a peer.
type SlowPeerReport struct {
	ReportingNode     string  `json:"reportingNode"`
	Latency           float64 `json:"latency"`
	MedianLatency     float64 `json:"medianLatency"`
	MAD               float64 `json:"mad"`
	UpperLatencyLimit float64 `json:"upperLatencyLimit"`
}

// NewSlowPeerReport flattens metrics into the report tuple exposed to callers.
func NewSlowPeerReport(reportingNode string, m OutlierMetrics) SlowPeerReport {
	return SlowPeerReport{
		ReportingNode:     reportingNode,
		Latency:           m.Latency,
		MedianLatency:     m.MedianLatency,
		MAD:               m.MAD,
		UpperLatencyLimit: m.UpperLatencyLimit,
	}
}

// Metrics returns the outlier metrics carried by the report.
func (r SlowPeerReport) Metrics() OutlierMetrics {
	return OutlierMetrics{
		Latency:           r.Latency,
		MedianLatency:     r.MedianLatency,
		MAD:               r.MAD,
		UpperLatencyLimit: r.UpperLatencyLimit,
	}
}

// SlowPeerJSONReport is one entry of the ranked snapshot.
type SlowPeerJSONReport struct {
	SlowNode string           `json:"slowNode"`
	Reports  []SlowPeerReport `json:"reports"`
}

// ReportBatch is the set of slow peers one node flagged in a single heartbeat.
type ReportBatch struct {
	ReportingNode string
	SlowPeers     map[string]OutlierMetrics
}
