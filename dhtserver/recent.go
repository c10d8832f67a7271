package dhtserver

import (
	"sync"

	"dhtcrawl/identity"

	"github.com/golang/groupcache/lru"
)

// recentHashes is a fixed-capacity membership test for info-hashes this
// server has already emitted a GET_PEERS event for. It suppresses
// re-emitting the same event on every repeated get_peers query for a hash
// that's merely popular, independent of the router's separate, much larger
// (hash, ip) seen-set.
//
// Grounded on original_source/dht_server.py's `recent_hashes =
// deque(maxlen=2000)`: a bounded membership test over the last ~2000
// distinct hashes. A plain deque only evicts by insertion order; this
// backs the same bound with groupcache/lru.Cache instead of a hand-rolled
// ring, which is a better fit for the access pattern -- a hash that keeps
// getting asked about stays resident, and only genuinely cold entries age
// out, instead of a popular hash's emission suppression expiring purely
// because 2000 other hashes were seen in the meantime.
type recentHashes struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newRecentHashes(capacity int) *recentHashes {
	return &recentHashes{cache: lru.New(capacity)}
}

// SeenRecently reports whether ih was already admitted. If not, it is
// admitted as a side effect -- this mirrors the reference server's
// deque-membership check-and-insert being a single critical section.
func (r *recentHashes) SeenRecently(ih identity.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache.Get(ih); ok {
		return true
	}
	r.cache.Add(ih, struct{}{})
	return false
}
