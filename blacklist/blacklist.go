// Package blacklist implements the metadata fetcher's adaptive peer
// backoff: a peer that fails enough metadata fetches is temporarily
// skipped, with the ban growing with repeated failure.
//
// Grounded on original_source/main.py's ip_blacklist handling inside
// metadata_worker: ban_duration = min(BASE * fail_count, cap), keyed by
// peer IP, cleared on success. Implemented with plain sync.Mutex + map,
// matching the scale of STX5-dht's own mutex-guarded maps (peer_store.go,
// routing_table.go) rather than reaching for a cache library: entries here
// need monotonically increasing ban windows per key, which no pack
// dependency (groupcache/lru, go-redis) models any more directly than a
// map does.
package blacklist

import (
	"sync"
	"time"
)

const (
	// DefaultBase is the per-failure backoff increment.
	DefaultBase = 180 * time.Second
	// DefaultCap bounds how long a single ban can grow to.
	DefaultCap = 1800 * time.Second
)

type entry struct {
	failures  int
	bannedAt  time.Time
	banLength time.Duration
}

// Blacklist tracks ban state per IP string. Zero value is not usable; use
// New.
type Blacklist struct {
	mu       sync.Mutex
	entries  map[string]*entry
	base     time.Duration
	capacity time.Duration
	now      func() time.Time
}

// New returns a Blacklist with the given base backoff and cap. Passing zero
// for either uses the package defaults.
func New(base, capacity time.Duration) *Blacklist {
	if base <= 0 {
		base = DefaultBase
	}
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Blacklist{
		entries:  make(map[string]*entry),
		base:     base,
		capacity: capacity,
		now:      time.Now,
	}
}

// Banned reports whether ip is currently within its ban window.
func (b *Blacklist) Banned(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ip]
	if !ok {
		return false
	}
	return b.now().Sub(e.bannedAt) < e.banLength
}

// RecordFailure increments ip's failure count and extends its ban window to
// min(base*failures, cap).
func (b *Blacklist) RecordFailure(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ip]
	if !ok {
		e = &entry{}
		b.entries[ip] = e
	}
	e.failures++
	ban := b.base * time.Duration(e.failures)
	if ban > b.capacity {
		ban = b.capacity
	}
	e.banLength = ban
	e.bannedAt = b.now()
}

// RecordSuccess clears ip's failure history entirely, matching the
// reference worker's behavior of deleting an IP from the blacklist once a
// fetch from it succeeds.
func (b *Blacklist) RecordSuccess(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, ip)
}

// Len returns the number of IPs with recorded failure history, including
// ones whose ban window has already expired.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Sweep drops entries whose ban window has expired, bounding the map's
// growth under sustained one-off failures from many distinct IPs.
func (b *Blacklist) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for ip, e := range b.entries {
		if now.Sub(e.bannedAt) >= e.banLength {
			delete(b.entries, ip)
		}
	}
}
