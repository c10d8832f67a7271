// Package router implements the Info Event Router: the single consumer
// that turns the DHT servers' raw info events into prioritized,
// deduplicated fetch tasks for the metadata fetcher pool.
//
// Grounded on original_source/main.py's event loop (priority/target-port
// classification, the `processed_tasks` seen-set cleared at ~50,000
// entries, and the `PriorityQueue` the workers pull from) generalized into
// its own goroutine per spec.md §5's concurrency model -- the original
// inlines this in a single-process main loop and uses stdlib's heapq via
// queue.PriorityQueue; here that's container/heap behind a condition
// variable.
package router

import (
	"container/heap"
	"sync"

	"dhtcrawl/dhtserver"
	"dhtcrawl/identity"
)

// Priority orders fetch tasks: lower values are served first.
type Priority int

const (
	PriorityAnnounce  Priority = 1
	PriorityPeerValue Priority = 2
	PriorityGetPeers  Priority = 3
)

// defaultPort is used when neither the event nor its source give a better
// guess at the peer's BT listen port.
const defaultPort = 6881

// FetchTask is one admitted unit of work for the metadata fetcher pool.
type FetchTask struct {
	Priority   Priority
	InfoHash   identity.ID
	IP         [4]byte
	TargetPort uint16
}

func classify(ev dhtserver.InfoEvent) FetchTask {
	t := FetchTask{InfoHash: ev.InfoHash, IP: ev.SourceIP}
	switch ev.Kind {
	case dhtserver.KindAnnounce:
		t.Priority = PriorityAnnounce
		t.TargetPort = firstNonZero(ev.Port, ev.SourcePort)
	case dhtserver.KindPeerValue:
		t.Priority = PriorityPeerValue
		t.TargetPort = firstNonZero(ev.Port, ev.SourcePort)
	case dhtserver.KindGetPeers:
		t.Priority = PriorityGetPeers
		t.TargetPort = firstNonZero(ev.SourcePort)
	default:
		t.Priority = PriorityGetPeers
		t.TargetPort = defaultPort
	}
	return t
}

func firstNonZero(ports ...uint16) uint16 {
	for _, p := range ports {
		if p != 0 {
			return p
		}
	}
	return defaultPort
}

// seenKey identifies a (info-hash, source IP) admission.
type seenKey struct {
	ih identity.ID
	ip [4]byte
}

// taskHeap is a min-heap ordered by Priority, then by insertion order so
// same-priority tasks stay FIFO.
type taskHeap struct {
	items []heapEntry
}

type heapEntry struct {
	task FetchTask
	seq  uint64
}

func (h taskHeap) Len() int { return len(h.items) }
func (h taskHeap) Less(i, j int) bool {
	if h.items[i].task.Priority != h.items[j].task.Priority {
		return h.items[i].task.Priority < h.items[j].task.Priority
	}
	return h.items[i].seq < h.items[j].seq
}
func (h taskHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *taskHeap) Push(x interface{}) {
	h.items = append(h.items, x.(heapEntry))
}
func (h *taskHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	last := old[n-1]
	h.items = old[:n-1]
	return last
}

// Router consumes InfoEvents from every DHT server, deduplicates, and
// serves fetch tasks to workers in priority order.
type Router struct {
	seenMu  sync.Mutex
	seen    map[seenKey]struct{}
	seenCap int

	queueMu  sync.Mutex
	queueCnd *sync.Cond
	queue    taskHeap
	capacity int
	nextSeq  uint64
	closed   bool
}

// New creates a Router whose output queue holds at most outCapacity tasks
// and whose seen-set is cleared once it exceeds seenCapacity entries.
func New(outCapacity, seenCapacity int) *Router {
	r := &Router{
		seen:     make(map[seenKey]struct{}),
		seenCap:  seenCapacity,
		capacity: outCapacity,
	}
	r.queueCnd = sync.NewCond(&r.queueMu)
	return r
}

// Run consumes events until the channel is closed, pushing a FetchTask for
// each newly-admitted (info-hash, ip) pair. Intended to run in its own
// goroutine; it is the single writer of the seen-set and the queue by
// construction (spec.md §5).
func (r *Router) Run(events <-chan dhtserver.InfoEvent) {
	for ev := range events {
		r.Handle(ev)
	}
}

// Handle processes one event synchronously; exported so tests (and a
// single-threaded embedding) don't need a live channel.
func (r *Router) Handle(ev dhtserver.InfoEvent) {
	key := seenKey{ih: ev.InfoHash, ip: ev.SourceIP}
	if !r.admit(key) {
		return
	}
	r.push(classify(ev))
}

// admit reports whether key had not yet been seen, recording it as seen
// either way. The set is hard-cleared once it exceeds its capacity -- a
// deliberate space/duplicate-work trade, not an LRU eviction, matching
// original_source/main.py's `processed_tasks.clear()`.
func (r *Router) admit(key seenKey) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false
	}
	if len(r.seen) >= r.seenCap {
		r.seen = make(map[seenKey]struct{})
	}
	r.seen[key] = struct{}{}
	return true
}

func (r *Router) push(t FetchTask) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if r.closed {
		return
	}
	if r.queue.Len() >= r.capacity {
		// Non-blocking offer semantics: drop under backpressure
		// rather than stall the DHT servers feeding this router.
		return
	}
	heap.Push(&r.queue, heapEntry{task: t, seq: r.nextSeq})
	r.nextSeq++
	r.queueCnd.Signal()
}

// Pop blocks until a task is available or Close is called, in which case ok
// is false.
func (r *Router) Pop() (FetchTask, bool) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	for r.queue.Len() == 0 && !r.closed {
		r.queueCnd.Wait()
	}
	if r.queue.Len() == 0 {
		return FetchTask{}, false
	}
	entry := heap.Pop(&r.queue).(heapEntry)
	return entry.task, true
}

// Close wakes any workers blocked in Pop and makes further Pop calls return
// immediately with ok=false. Safe to call once during shutdown.
func (r *Router) Close() {
	r.queueMu.Lock()
	r.closed = true
	r.queueMu.Unlock()
	r.queueCnd.Broadcast()
}

// QueueLen returns the current number of queued, unserved tasks; exposed
// for the orchestrator's stats line.
func (r *Router) QueueLen() int {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return r.queue.Len()
}

// SeenCount returns the current size of the dedup set; exposed for the
// orchestrator's stats line.
func (r *Router) SeenCount() int {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	return len(r.seen)
}
