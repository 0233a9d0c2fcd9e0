package services

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/mirador-slowpeers/internal/api"
	"github.com/miradorstack/mirador-slowpeers/internal/models"
	"github.com/miradorstack/mirador-slowpeers/internal/tracker"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, enabled bool) (*SlowPeerService, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	tr := tracker.New(tracker.Config{ReportValidity: time.Minute, MaxNodesToReport: 2}, nil, clock)
	return NewSlowPeerService(nil, tr, enabled), clock
}

func heartbeat(reporting string, slow ...string) models.ReportBatch {
	batch := models.ReportBatch{ReportingNode: reporting, SlowPeers: map[string]models.OutlierMetrics{}}
	for _, node := range slow {
		batch.SlowPeers[node] = models.OutlierMetrics{Latency: 120.5, MedianLatency: 40, MAD: 5, UpperLatencyLimit: 70}
	}
	return batch
}

func TestAddReportsThroughGRPCMethods(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()

	accepted, err := svc.AddReports(ctx, api.ToProtoReportBatch(heartbeat("dn2", "dn1", "dn3")))
	require.NoError(t, err)
	assert.Equal(t, int32(2), accepted.GetValue())

	_, err = svc.AddReports(ctx, api.ToProtoReportBatch(heartbeat("dn4", "dn1")))
	require.NoError(t, err)

	list, err := svc.GetReportsForNode(ctx, wrapperspb.String("dn1"))
	require.NoError(t, err)
	reports, err := api.FromProtoReports(list)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "dn2", reports[0].ReportingNode)
	assert.Equal(t, "dn4", reports[1].ReportingNode)

	ids, err := svc.GetSlowNodes(ctx, api.DefaultSlowNodesRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"dn1", "dn3"}, api.FromProtoNodeIDs(ids))

	all, err := svc.GetReportsForAllNodes(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	decoded, err := api.FromProtoAllReports(all)
	require.NoError(t, err)
	assert.Len(t, decoded, 2)
}

func TestSlowNodesHonoursExplicitLimit(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()
	svc.Ingest(heartbeat("dn2", "dn1", "dn3", "dn5"))
	require.NoError(t, svc.UpdateMaxNodesToReport(5))

	assert.Empty(t, svc.SlowNodes(0))
	assert.Empty(t, svc.SlowNodes(-3))
	assert.Len(t, svc.SlowNodes(2), 2)
	assert.Len(t, svc.DefaultSlowNodes(), 3)

	ids, err := svc.GetSlowNodes(ctx, api.ToProtoSlowNodesRequest(0))
	require.NoError(t, err)
	assert.Empty(t, api.FromProtoNodeIDs(ids))

	negative, err := structpb.NewStruct(map[string]any{"limit": -1})
	require.NoError(t, err)
	_, err = svc.GetSlowNodes(ctx, negative)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	fractional, err := structpb.NewStruct(map[string]any{"limit": 1.5})
	require.NoError(t, err)
	_, err = svc.GetSlowNodes(ctx, fractional)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAddReportsRejectsMalformedPayload(t *testing.T) {
	svc, _ := newService(t, true)

	payload, err := structpb.NewStruct(map[string]any{"slowPeers": map[string]any{}})
	require.NoError(t, err)

	_, err = svc.AddReports(context.Background(), payload)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetSnapshot(t *testing.T) {
	svc, _ := newService(t, true)
	svc.Ingest(heartbeat("dn2", "dn1"))
	svc.Ingest(heartbeat("dn3", "dn1", "dn4"))
	svc.Ingest(heartbeat("dn5", "dn6"))

	resp, err := svc.GetSnapshot(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	var snapshot []models.SlowPeerJSONReport
	require.NoError(t, json.Unmarshal([]byte(resp.GetValue()), &snapshot))
	require.Len(t, snapshot, 2)
	assert.Equal(t, "dn1", snapshot[0].SlowNode)
	assert.Len(t, snapshot[0].Reports, 2)
}

func TestGetSnapshotUnavailable(t *testing.T) {
	svc, _ := newService(t, true)
	svc.Ingest(models.ReportBatch{
		ReportingNode: "dn2",
		SlowPeers:     map[string]models.OutlierMetrics{"dn1": {Latency: math.Inf(1)}},
	})

	_, err := svc.GetSnapshot(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestSetMaxNodesToReport(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()

	_, err := svc.SetMaxNodesToReport(ctx, wrapperspb.Int32(7))
	require.NoError(t, err)
	assert.Equal(t, 7, svc.MaxNodesToReport())

	_, err = svc.SetMaxNodesToReport(ctx, wrapperspb.Int32(-1))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 7, svc.MaxNodesToReport())
}

func TestDisabledServiceDropsEverything(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	assert.False(t, svc.Enabled())

	accepted, err := svc.AddReports(ctx, api.ToProtoReportBatch(heartbeat("dn2", "dn1")))
	require.NoError(t, err)
	assert.Zero(t, accepted.GetValue())

	assert.Empty(t, svc.ReportsForNode("dn1"))
	assert.Empty(t, svc.ReportsForAllNodes())
	assert.Empty(t, svc.SlowNodes(5))

	_, err = svc.GetSnapshot(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = svc.SetMaxNodesToReport(ctx, wrapperspb.Int32(3))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestRunSweeperRemovesStaleNodes(t *testing.T) {
	svc, clock := newService(t, true)
	svc.Ingest(heartbeat("dn2", "dn1"))
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.RunSweeper(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return svc.tracker.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunSweeperDisabledByInterval(t *testing.T) {
	svc, _ := newService(t, true)
	returned := make(chan struct{})
	go func() {
		svc.RunSweeper(context.Background(), 0)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper with zero interval should return immediately")
	}
}
