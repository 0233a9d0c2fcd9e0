package api

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/mirador-slowpeers/internal/grpc/slowpeerv1"
	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

// Client is a typed wrapper over the SlowPeerService gRPC client.
type Client struct {
	conn *grpc.ClientConn
	rpc  slowpeerv1.SlowPeerServiceClient
}

// Dial connects to a tracker at target. Without explicit options the
// connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, rpc: slowpeerv1.NewSlowPeerServiceClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// AddReports submits one reporting node's batch and returns the accepted count.
func (c *Client) AddReports(ctx context.Context, batch models.ReportBatch) (int, error) {
	resp, err := c.rpc.AddReports(ctx, ToProtoReportBatch(batch))
	if err != nil {
		return 0, fmt.Errorf("add reports: %w", err)
	}
	return int(resp.GetValue()), nil
}

// ReportsForNode fetches the valid reports for slowNode.
func (c *Client) ReportsForNode(ctx context.Context, slowNode string) ([]models.SlowPeerReport, error) {
	resp, err := c.rpc.GetReportsForNode(ctx, wrapperspb.String(slowNode))
	if err != nil {
		return nil, fmt.Errorf("get reports for %s: %w", slowNode, err)
	}
	return FromProtoReports(resp)
}

// ReportsForAllNodes fetches the valid reports of every slow node.
func (c *Client) ReportsForAllNodes(ctx context.Context) (map[string][]models.SlowPeerReport, error) {
	resp, err := c.rpc.GetReportsForAllNodes(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("get reports for all nodes: %w", err)
	}
	return FromProtoAllReports(resp)
}

// SlowNodes fetches at most limit ranked slow node ids.
func (c *Client) SlowNodes(ctx context.Context, limit int) ([]string, error) {
	if err := CheckLimit("limit", limit); err != nil {
		return nil, err
	}
	return c.slowNodes(ctx, ToProtoSlowNodesRequest(limit))
}

// DefaultSlowNodes fetches ranked slow node ids using the server's snapshot size.
func (c *Client) DefaultSlowNodes(ctx context.Context) ([]string, error) {
	return c.slowNodes(ctx, DefaultSlowNodesRequest())
}

func (c *Client) slowNodes(ctx context.Context, req *structpb.Struct) ([]string, error) {
	resp, err := c.rpc.GetSlowNodes(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get slow nodes: %w", err)
	}
	return FromProtoNodeIDs(resp), nil
}

// Snapshot fetches the ranked JSON snapshot.
func (c *Client) Snapshot(ctx context.Context) (string, error) {
	resp, err := c.rpc.GetSnapshot(ctx, &emptypb.Empty{})
	if err != nil {
		return "", fmt.Errorf("get snapshot: %w", err)
	}
	return resp.GetValue(), nil
}

// SetMaxNodesToReport changes the server's snapshot size.
func (c *Client) SetMaxNodesToReport(ctx context.Context, n int) error {
	if int64(n) > math.MaxInt32 || int64(n) < math.MinInt32 {
		return fmt.Errorf("max nodes to report %d out of range", n)
	}
	if _, err := c.rpc.SetMaxNodesToReport(ctx, wrapperspb.Int32(int32(n))); err != nil {
		return fmt.Errorf("set max nodes to report: %w", err)
	}
	return nil
}
