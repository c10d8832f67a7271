// Package sink defines the narrow, one-way consumer interface the crawler
// delivers verified metadata records to, plus a handful of reference
// implementations. None of these are wired into the core crawl-and-fetch
// pipeline's correctness -- the orchestrator only ever depends on the Sink
// interface -- but they show how a real deployment plugs in storage.
//
// Grounded on modasi-mika's store/mysql and store/redis packages for the
// persistence conventions, and on original_source/workers/db_writer.py for
// the batching trigger shape.
package sink

import (
	"container/ring"
	"net"
	"sync"

	"dhtcrawl/identity"
	"dhtcrawl/metainfo"
)

// Sink is a one-way consumer of verified metadata records. Calls are
// concurrent from multiple fetcher workers; there is no acknowledgement,
// and a returned error only ever gets logged -- it never propagates back
// into the crawler or rewinds its progress (spec.md §4.7, §7).
type Sink interface {
	Accept(infoHash identity.ID, info metainfo.Dict, rawInfoBytes []byte, sourceIP net.IP) error
}

// Record is a verified metadata record, used by MemorySink and as the
// common shape other sinks translate into their own storage model.
type Record struct {
	InfoHash identity.ID
	Name     string
	Size     int64
	SourceIP net.IP
}

// MemorySink keeps the last N accepted records in a ring buffer. It
// requires no external services, making it the default sink for
// cmd/dhtcrawld and for tests.
type MemorySink struct {
	mu       sync.Mutex
	r        *ring.Ring
	capacity int
	count    int
}

// NewMemorySink returns a MemorySink retaining at most capacity records.
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{r: ring.New(capacity), capacity: capacity}
}

func (m *MemorySink) Accept(infoHash identity.ID, info metainfo.Dict, rawInfoBytes []byte, sourceIP net.IP) error {
	name, _ := info.Name()
	size, _ := info.TotalSize()
	rec := Record{InfoHash: infoHash, Name: name, Size: size, SourceIP: sourceIP}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.r.Value = rec
	m.r = m.r.Next()
	if m.count < m.capacity {
		m.count++
	}
	return nil
}

// Records returns a snapshot of the retained records, oldest first.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, m.count)
	start := m.r
	// m.r currently points at the oldest unoverwritten slot (one past
	// the most recently written entry) once the ring has wrapped; when
	// it hasn't wrapped yet, walking from the zero value simply skips
	// unset entries.
	start.Do(func(v interface{}) {
		if v == nil {
			return
		}
		out = append(out, v.(Record))
	})
	return out
}

// Len returns the number of records currently retained.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
