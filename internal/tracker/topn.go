package tracker

import (
	"container/heap"
	"sort"

	"github.com/miradorstack/mirador-slowpeers/internal/models"
)

// reportHeap is a min-heap of snapshot entries keyed by report count.
type reportHeap []models.SlowPeerJSONReport

func (h reportHeap) Len() int           { return len(h) }
func (h reportHeap) Less(i, j int) bool { return len(h[i].Reports) < len(h[j].Reports) }
func (h reportHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *reportHeap) Push(x any) { *h = append(*h, x.(models.SlowPeerJSONReport)) }

func (h *reportHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// boundedHeap retains the n largest entries offered to it.
type boundedHeap struct {
	n     int
	items reportHeap
}

func newBoundedHeap(n int) *boundedHeap {
	return &boundedHeap{n: n, items: make(reportHeap, 0, n)}
}

// Offer keeps entry when the heap has room or when entry has strictly more
// reports than the current minimum. Ties at the boundary keep the earlier entry.
func (b *boundedHeap) Offer(entry models.SlowPeerJSONReport) {
	if b.n <= 0 {
		return
	}
	if b.items.Len() < b.n {
		heap.Push(&b.items, entry)
		return
	}
	if len(entry.Reports) > len(b.items[0].Reports) {
		b.items[0] = entry
		heap.Fix(&b.items, 0)
	}
}

// Items returns the retained entries in heap order.
func (b *boundedHeap) Items() []models.SlowPeerJSONReport {
	return b.items
}

// selectTopN picks the n slow nodes with the most valid reports. Nodes
// without reports are skipped. Which of several equally-corroborated nodes
// survives at the boundary depends on map iteration order. The result is
// ranked by report count descending, then by node id.
func selectTopN(all map[string][]models.SlowPeerReport, n int) []models.SlowPeerJSONReport {
	if n <= 0 || len(all) == 0 {
		return nil
	}
	top := newBoundedHeap(min(n, len(all)))
	for node, reports := range all {
		if len(reports) == 0 {
			continue
		}
		top.Offer(models.SlowPeerJSONReport{SlowNode: node, Reports: reports})
	}
	ranked := top.Items()
	sort.Slice(ranked, func(i, j int) bool {
		if len(ranked[i].Reports) != len(ranked[j].Reports) {
			return len(ranked[i].Reports) > len(ranked[j].Reports)
		}
		return ranked[i].SlowNode < ranked[j].SlowNode
	})
	return ranked
}
