package crawler

import (
	"container/heap"

	"github.com/nao1215/brokersafety/internal/model"
)

// frontier is a max-heap of candidates ordered by score, ties broken by
// insertion order. It is not safe for concurrent use; the spider guards it.
type frontier struct {
	items candidateHeap
	seq   int
}

type frontierItem struct {
	candidate model.CandidateURL
	seq       int
}

type candidateHeap []frontierItem

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].candidate.Score != h[j].candidate.Score {
		return h[i].candidate.Score > h[j].candidate.Score
	}
	return h[i].seq < h[j].seq
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(frontierItem)) //nolint:forcetypeassert // only frontierItem is pushed
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func newFrontier() *frontier {
	return &frontier{}
}

func (f *frontier) push(c model.CandidateURL) {
	heap.Push(&f.items, frontierItem{candidate: c, seq: f.seq})
	f.seq++
}

func (f *frontier) pop() (model.CandidateURL, bool) {
	if len(f.items) == 0 {
		return model.CandidateURL{}, false
	}
	it := heap.Pop(&f.items).(frontierItem) //nolint:forcetypeassert // only frontierItem is pushed
	return it.candidate, true
}

func (f *frontier) len() int {
	return len(f.items)
}
