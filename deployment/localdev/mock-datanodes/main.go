package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/miradorstack/mirador-slowpeers/internal/api"
	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

// mock-datanodes simulates a cluster heartbeating slow peer reports into a
// local tracker. A fixed set of nodes is persistently slow so the ranking
// is stable enough to eyeball.
func main() {
	addr := flag.String("addr", "localhost:50061", "tracker gRPC address")
	nodes := flag.Int("nodes", 12, "number of simulated datanodes")
	slow := flag.Int("slow", 3, "number of persistently slow datanodes")
	interval := flag.Duration("interval", 3*time.Second, "heartbeat interval")
	flag.Parse()

	logger := log.New(log.Writer(), "mock-datanodes ", log.LstdFlags|log.Lmicroseconds)

	client, err := api.Dial(*addr)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	logger.Printf("sending heartbeats for %d datanodes to %s", *nodes, *addr)
	for {
		for i := 0; i < *nodes; i++ {
			batch := heartbeat(rng, i, *nodes, *slow)
			if len(batch.SlowPeers) == 0 {
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, time.Second)
			if _, err := client.AddReports(callCtx, batch); err != nil {
				logger.Printf("%s: %v", batch.ReportingNode, err)
			}
			cancel()
		}
		select {
		case <-ctx.Done():
			logger.Println("stopped")
			return
		case <-ticker.C:
		}
	}
}

// heartbeat builds the report of datanode self. Each persistently slow node
// is flagged with probability 0.7 and any other peer with probability 0.05.
func heartbeat(rng *rand.Rand, self, nodes, slow int) models.ReportBatch {
	batch := models.ReportBatch{ReportingNode: nodeName(self), SlowPeers: map[string]models.OutlierMetrics{}}
	for peer := 0; peer < nodes; peer++ {
		if peer == self {
			continue
		}
		p := 0.05
		if peer < slow {
			p = 0.7
		}
		if rng.Float64() >= p {
			continue
		}
		median := 20 + rng.Float64()*10
		mad := 2 + rng.Float64()*3
		batch.SlowPeers[nodeName(peer)] = models.OutlierMetrics{
			Latency:           median + 10*mad + rng.Float64()*200,
			MedianLatency:     median,
			MAD:               mad,
			UpperLatencyLimit: median + 3*mad,
		}
	}
	return batch
}

func nodeName(i int) string {
	return fmt.Sprintf("dn%02d:9866", i)
}
