package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/mirador-slowpeers/internal/api"
	"github.com/miradorstack/mirador-slowpeers/internal/grpc/slowpeerv1"
	"github.com/miradorstack/mirador-slowpeers/internal/metrics"
	"github.com/miradorstack/mirador-slowpeers/internal/models"
	"github.com/miradorstack/mirador-slowpeers/internal/tracker"
	"github.com/miradorstack/mirador-slowpeers/internal/utils"
)

// ErrTrackerDisabled is returned by operations that need an enabled tracker.
var ErrTrackerDisabled = errors.New("slow peer tracking is disabled")

// SlowPeerService implements the gRPC SlowPeerService and backs the
// monitoring endpoint and snapshot publisher.
type SlowPeerService struct {
	slowpeerv1.UnimplementedSlowPeerServiceServer

	logger    *slog.Logger
	tracker   *tracker.Tracker
	enabled   bool
	latencies *utils.LatencyWindow
}

// NewSlowPeerService constructs the service facade. When enabled is false
// reports are dropped and every read path returns no data.
func NewSlowPeerService(logger *slog.Logger, tr *tracker.Tracker, enabled bool) *SlowPeerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlowPeerService{
		logger:    logger,
		tracker:   tr,
		enabled:   enabled && tr != nil,
		latencies: utils.NewLatencyWindow(256),
	}
}

// Enabled reports whether slow peer tracking is active.
func (s *SlowPeerService) Enabled() bool {
	return s.enabled
}

// Ingest stores every report in batch and returns how many were accepted.
func (s *SlowPeerService) Ingest(batch models.ReportBatch) int {
	if !s.enabled {
		s.logger.Debug("dropping slow peer reports, tracking disabled", slog.String("reporting_node", batch.ReportingNode))
		return 0
	}
	n := s.tracker.AddReports(batch)
	metrics.ObserveReports(n)
	return n
}

// ReportsForNode returns the valid reports implicating slowNode.
func (s *SlowPeerService) ReportsForNode(slowNode string) []models.SlowPeerReport {
	if !s.enabled {
		return nil
	}
	return s.tracker.ReportsForNode(slowNode)
}

// ReportsForAllNodes returns the valid reports of every slow node.
func (s *SlowPeerService) ReportsForAllNodes() map[string][]models.SlowPeerReport {
	if !s.enabled {
		return map[string][]models.SlowPeerReport{}
	}
	return s.tracker.ReportsForAllNodes()
}

// SlowNodes returns at most limit slow node ids, most corroborated first.
// A non-positive limit yields no ids.
func (s *SlowPeerService) SlowNodes(limit int) []string {
	if !s.enabled || limit <= 0 {
		return nil
	}
	ids := s.tracker.SlowNodes(limit)
	metrics.SetSlowNodes(len(ids))
	return ids
}

// DefaultSlowNodes is SlowNodes limited to the configured snapshot size.
func (s *SlowPeerService) DefaultSlowNodes() []string {
	if !s.enabled {
		return nil
	}
	return s.SlowNodes(s.tracker.MaxNodesToReport())
}

// Snapshot returns the ranked JSON snapshot, or false when none is available.
func (s *SlowPeerService) Snapshot() (string, bool) {
	if !s.enabled {
		return "", false
	}
	start := time.Now()
	text, ok := s.tracker.SnapshotJSON()
	duration := time.Since(start)

	metrics.ObserveSnapshot(duration.Seconds(), ok)
	metrics.SetTrackedNodes(s.tracker.Len())
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 64 && count%64 == 0 {
		s.logger.Debug("snapshot latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return text, ok
}

// MaxNodesToReport returns the current snapshot size.
func (s *SlowPeerService) MaxNodesToReport() int {
	if s.tracker == nil {
		return 0
	}
	return s.tracker.MaxNodesToReport()
}

// UpdateMaxNodesToReport changes the snapshot size.
func (s *SlowPeerService) UpdateMaxNodesToReport(n int) error {
	if !s.enabled {
		return ErrTrackerDisabled
	}
	if n < 0 {
		return utils.NewAppError("UpdateMaxNodesToReport", fmt.Sprintf("limit must not be negative, got %d", n), nil)
	}
	s.tracker.SetMaxNodesToReport(n)
	s.logger.Info("updated max slow nodes to report", slog.Int("max_nodes", n))
	return nil
}

// Sweep removes slow nodes whose reports are all stale.
func (s *SlowPeerService) Sweep() int {
	if !s.enabled {
		return 0
	}
	removed := s.tracker.Sweep()
	metrics.ObserveSweep(removed)
	metrics.SetTrackedNodes(s.tracker.Len())
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval disables sweeping.
func (s *SlowPeerService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || !s.enabled {
		return
	}
	s.logger.Info("stale slow node sweep enabled", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Info("swept stale slow nodes", slog.Int("removed", removed))
			}
		}
	}
}

// AddReports ingests one reporting node's heartbeat payload.
func (s *SlowPeerService) AddReports(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int32Value, error) {
	batch, err := api.FromProtoReportBatch(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.Int32(int32(s.Ingest(batch))), nil
}

// GetReportsForNode returns the valid reports for one slow node.
func (s *SlowPeerService) GetReportsForNode(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return api.ToProtoReports(s.ReportsForNode(req.GetValue())), nil
}

// GetReportsForAllNodes returns the valid reports of every slow node.
func (s *SlowPeerService) GetReportsForAllNodes(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return api.ToProtoAllReports(s.ReportsForAllNodes()), nil
}

// GetSlowNodes returns ranked slow node ids. Without a limit the configured
// snapshot size applies.
func (s *SlowPeerService) GetSlowNodes(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	limit, given, err := api.FromProtoSlowNodesRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !given {
		return api.ToProtoNodeIDs(s.DefaultSlowNodes()), nil
	}
	return api.ToProtoNodeIDs(s.SlowNodes(limit)), nil
}

// GetSnapshot returns the ranked JSON snapshot.
func (s *SlowPeerService) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if !s.enabled {
		return nil, status.Error(codes.FailedPrecondition, ErrTrackerDisabled.Error())
	}
	text, ok := s.Snapshot()
	if !ok {
		return nil, status.Error(codes.NotFound, "slow peer snapshot unavailable")
	}
	return wrapperspb.String(text), nil
}

// SetMaxNodesToReport updates the snapshot size.
func (s *SlowPeerService) SetMaxNodesToReport(ctx context.Context, req *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	if err := s.UpdateMaxNodesToReport(int(req.GetValue())); err != nil {
		if errors.Is(err, ErrTrackerDisabled) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &emptypb.Empty{}, nil
}
