package api

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-slowpeers/internal/models"
	"github.com/miradorstack/mirador-slowpeers/internal/utils"
)

const (
	fieldReportingNode     = "reportingNode"
	fieldSlowPeers         = "slowPeers"
	fieldLatency           = "latency"
	fieldMedianLatency     = "medianLatency"
	fieldMAD               = "mad"
	fieldUpperLatencyLimit = "upperLatencyLimit"
	fieldLimit             = "limit"
)

// FromProtoReportBatch maps an AddReports payload into a domain ReportBatch.
func FromProtoReportBatch(req *structpb.Struct) (models.ReportBatch, error) {
	const op = "AddReports"
	if req == nil {
		return models.ReportBatch{}, utils.InvalidReport(op, "request is nil")
	}
	fields := req.GetFields()

	reporting := fields[fieldReportingNode].GetStringValue()
	if reporting == "" {
		return models.ReportBatch{}, utils.InvalidReport(op, "reportingNode is required")
	}
	peers := fields[fieldSlowPeers].GetStructValue()
	if peers == nil {
		return models.ReportBatch{}, utils.InvalidReport(op, "slowPeers must be an object")
	}

	batch := models.ReportBatch{
		ReportingNode: reporting,
		SlowPeers:     make(map[string]models.OutlierMetrics, len(peers.GetFields())),
	}
	for node, value := range peers.GetFields() {
		if node == "" {
			return models.ReportBatch{}, utils.InvalidReport(op, "slow node id must not be empty")
		}
		metrics, err := metricsFromStruct(value.GetStructValue())
		if err != nil {
			return models.ReportBatch{}, utils.InvalidReport(op, fmt.Sprintf("slowPeers[%s]: %v", node, err))
		}
		batch.SlowPeers[node] = metrics
	}
	return batch, nil
}

// ToProtoReportBatch converts a batch into the AddReports payload.
func ToProtoReportBatch(batch models.ReportBatch) *structpb.Struct {
	peers := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(batch.SlowPeers))}
	for node, m := range batch.SlowPeers {
		peers.Fields[node] = structpb.NewStructValue(metricsToStruct(m))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldReportingNode: structpb.NewStringValue(batch.ReportingNode),
		fieldSlowPeers:     structpb.NewStructValue(peers),
	}}
}

// ToProtoReports converts an ordered report set into a list of objects.
func ToProtoReports(reports []models.SlowPeerReport) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(reports))
	for _, r := range reports {
		s := metricsToStruct(r.Metrics())
		s.Fields[fieldReportingNode] = structpb.NewStringValue(r.ReportingNode)
		values = append(values, structpb.NewStructValue(s))
	}
	return &structpb.ListValue{Values: values}
}

// FromProtoReports converts a list produced by ToProtoReports back into reports.
func FromProtoReports(list *structpb.ListValue) ([]models.SlowPeerReport, error) {
	out := make([]models.SlowPeerReport, 0, len(list.GetValues()))
	for i, value := range list.GetValues() {
		s := value.GetStructValue()
		metrics, err := metricsFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		out = append(out, models.NewSlowPeerReport(s.GetFields()[fieldReportingNode].GetStringValue(), metrics))
	}
	return out, nil
}

// ToProtoAllReports converts the per-node view into a struct keyed by slow node.
func ToProtoAllReports(all map[string][]models.SlowPeerReport) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(all))}
	for node, reports := range all {
		out.Fields[node] = structpb.NewListValue(ToProtoReports(reports))
	}
	return out
}

// FromProtoAllReports converts a struct produced by ToProtoAllReports.
func FromProtoAllReports(s *structpb.Struct) (map[string][]models.SlowPeerReport, error) {
	out := make(map[string][]models.SlowPeerReport, len(s.GetFields()))
	for node, value := range s.GetFields() {
		reports, err := FromProtoReports(value.GetListValue())
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node, err)
		}
		out[node] = reports
	}
	return out, nil
}

// ToProtoNodeIDs converts ranked node ids into a list of strings.
func ToProtoNodeIDs(ids []string) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(ids))
	for _, id := range ids {
		values = append(values, structpb.NewStringValue(id))
	}
	return &structpb.ListValue{Values: values}
}

// FromProtoNodeIDs keeps the order of the list.
func FromProtoNodeIDs(list *structpb.ListValue) []string {
	ids := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		ids = append(ids, v.GetStringValue())
	}
	return ids
}

// ToProtoSlowNodesRequest builds a GetSlowNodes payload asking for at most
// limit ids. The limit must fit CheckLimit.
func ToProtoSlowNodesRequest(limit int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldLimit: structpb.NewNumberValue(float64(limit)),
	}}
}

// DefaultSlowNodesRequest builds a GetSlowNodes payload without a limit so the
// server applies its configured snapshot size.
func DefaultSlowNodesRequest() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}

// FromProtoSlowNodesRequest extracts the requested limit. given is false when
// the payload carries no limit.
func FromProtoSlowNodesRequest(req *structpb.Struct) (limit int, given bool, err error) {
	const op = "GetSlowNodes"
	v, ok := req.GetFields()[fieldLimit]
	if !ok {
		return 0, false, nil
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, true, utils.NewAppError(op, "limit must be a number", nil)
	}
	f := num.NumberValue
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, true, utils.NewAppError(op, fmt.Sprintf("limit must be an integer in [0, %d], got %v", math.MaxInt32, f), nil)
	}
	return int(f), true, nil
}

// CheckLimit rejects counts that are negative or do not fit the wire's int32.
func CheckLimit(name string, n int) error {
	if n < 0 || int64(n) > math.MaxInt32 {
		return fmt.Errorf("%s must be in [0, %d], got %d", name, math.MaxInt32, n)
	}
	return nil
}

// SortedNodes returns the keys of all in ascending order.
func SortedNodes(all map[string][]models.SlowPeerReport) []string {
	nodes := make([]string, 0, len(all))
	for node := range all {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

func metricsToStruct(m models.OutlierMetrics) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldLatency:           structpb.NewNumberValue(m.Latency),
		fieldMedianLatency:     structpb.NewNumberValue(m.MedianLatency),
		fieldMAD:               structpb.NewNumberValue(m.MAD),
		fieldUpperLatencyLimit: structpb.NewNumberValue(m.UpperLatencyLimit),
	}}
}

func metricsFromStruct(s *structpb.Struct) (models.OutlierMetrics, error) {
	if s == nil {
		return models.OutlierMetrics{}, fmt.Errorf("metrics must be an object")
	}
	var m models.OutlierMetrics
	for name, dst := range map[string]*float64{
		fieldLatency:           &m.Latency,
		fieldMedianLatency:     &m.MedianLatency,
		fieldMAD:               &m.MAD,
		fieldUpperLatencyLimit: &m.UpperLatencyLimit,
	} {
		v, ok := s.GetFields()[name]
		if !ok {
			return models.OutlierMetrics{}, fmt.Errorf("%s is required", name)
		}
		num, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return models.OutlierMetrics{}, fmt.Errorf("%s must be a number", name)
		}
		*dst = num.NumberValue
	}
	return m, nil
}
