package sink

import (
	"fmt"
	"net"
	"time"

	"dhtcrawl/identity"
	"dhtcrawl/logger"
	"dhtcrawl/metainfo"

	"github.com/go-redis/redis/v7"
)

const dedupeKeyPrefix = "dht:seen:"

// RedisDedupeSink wraps another Sink and suppresses re-delivery of an
// info-hash seen within ttl, using a redis SETNX-style check so the window
// is shared across process restarts and across multiple crawler instances
// pointed at the same redis.
//
// Grounded on modasi-mika/store/redis's TorrentStore (redis.NewClient,
// *redis.Options construction) generalized from its hash-per-record model
// to a single per-hash existence key.
type RedisDedupeSink struct {
	client *redis.Client
	next   Sink
	ttl    time.Duration
	log    logger.DebugLogger
}

// NewRedisDedupeSink dials addr and returns a sink that forwards to next
// only for info-hashes not seen (by this redis instance) within ttl. A nil
// log defaults to logger.NullLogger.
func NewRedisDedupeSink(addr, password string, db int, ttl time.Duration, next Sink, log logger.DebugLogger) *RedisDedupeSink {
	if log == nil {
		log = &logger.NullLogger{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDedupeSink{client: client, next: next, ttl: ttl, log: log}
}

func dedupeKey(ih identity.ID) string {
	return fmt.Sprintf("%s%s", dedupeKeyPrefix, ih.String())
}

// Accept forwards to the wrapped sink only the first time infoHash is seen
// within ttl; redis errors fail open, forwarding the record rather than
// risking silent data loss (spec.md §7: sink errors never block the
// pipeline).
func (s *RedisDedupeSink) Accept(infoHash identity.ID, info metainfo.Dict, rawInfoBytes []byte, sourceIP net.IP) error {
	set, err := s.client.SetNX(dedupeKey(infoHash), 1, s.ttl).Result()
	if err != nil {
		s.log.Errorf("sink: redis dedupe check failed, forwarding anyway: %v", err)
		return s.next.Accept(infoHash, info, rawInfoBytes, sourceIP)
	}
	if !set {
		return nil
	}
	return s.next.Accept(infoHash, info, rawInfoBytes, sourceIP)
}

// Close closes the underlying redis client.
func (s *RedisDedupeSink) Close() error {
	return s.client.Close()
}
