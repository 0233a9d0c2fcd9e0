package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-slowpeers/internal/api"
	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

var (
	serverAddr string
	rpcTimeout time.Duration
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the ranked JSON snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			text, err := c.Snapshot(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		})
	},
}

var slowNodesCmd = &cobra.Command{
	Use:   "slow-nodes",
	Short: "List the nodes reported slow by the most peers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		explicit := cmd.Flags().Changed("limit")
		if explicit {
			if err := api.CheckLimit("--limit", limit); err != nil {
				return err
			}
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			var (
				nodes []string
				err   error
			)
			if explicit {
				nodes, err = c.SlowNodes(ctx, limit)
			} else {
				nodes, err = c.DefaultSlowNodes(ctx)
			}
			if err != nil {
				return err
			}
			for _, node := range nodes {
				fmt.Fprintln(cmd.OutOrStdout(), node)
			}
			return nil
		})
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports [slow-node]",
	Short: "Show valid reports for one slow node, or for all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			var (
				out any
				err error
			)
			if len(args) == 1 {
				out, err = c.ReportsForNode(ctx, args[0])
			} else {
				out, err = c.ReportsForAllNodes(ctx)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <reporting-node> <slow-node>...",
	Short: "Submit a slow peer report on behalf of a datanode",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		latency, _ := flags.GetFloat64("latency")
		median, _ := flags.GetFloat64("median")
		mad, _ := flags.GetFloat64("mad")
		upper, _ := flags.GetFloat64("upper")

		batch := models.ReportBatch{ReportingNode: args[0], SlowPeers: make(map[string]models.OutlierMetrics, len(args)-1)}
		for _, node := range args[1:] {
			batch.SlowPeers[node] = models.OutlierMetrics{Latency: latency, MedianLatency: median, MAD: mad, UpperLatencyLimit: upper}
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			accepted, err := c.AddReports(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted %d report(s)\n", accepted)
			return nil
		})
	},
}

var setMaxCmd = &cobra.Command{
	Use:   "set-max <n>",
	Short: "Change how many slow nodes the snapshot includes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[0], err)
		}
		if err := api.CheckLimit("count", n); err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.SetMaxNodesToReport(ctx, n)
		})
	},
}

func init() {
	defaultAddr := os.Getenv("MIRADOR_SLOWPEERS_SERVER_ADDRESS")
	if defaultAddr == "" {
		defaultAddr = "localhost:50061"
	}
	for _, c := range []*cobra.Command{snapshotCmd, slowNodesCmd, reportsCmd, reportCmd, setMaxCmd} {
		c.Flags().StringVar(&serverAddr, "addr", defaultAddr, "Tracker gRPC address")
		c.Flags().DurationVar(&rpcTimeout, "timeout", 5*time.Second, "Per-call timeout")
		rootCmd.AddCommand(c)
	}

	slowNodesCmd.Flags().Int("limit", 0, "Maximum nodes to list (omit to use the server's snapshot size)")

	reportCmd.Flags().Float64("latency", 0, "Observed latency to the slow peer in ms")
	reportCmd.Flags().Float64("median", 0, "Median latency across peers in ms")
	reportCmd.Flags().Float64("mad", 0, "Median absolute deviation in ms")
	reportCmd.Flags().Float64("upper", 0, "Upper latency limit in ms")
}

func withClient(fn func(context.Context, *api.Client) error) error {
	c, err := api.Dial(serverAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	return fn(ctx, c)
}
