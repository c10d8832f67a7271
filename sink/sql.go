package sink

import (
	"net"
	"sync"
	"time"

	"dhtcrawl/identity"
	"dhtcrawl/logger"
	"dhtcrawl/metainfo"

	"github.com/jmoiron/sqlx"
)

// sqlRecord is what BatchingSQLSink hands to its insert statement; field
// order matches a typical `(info_hash, name, size, source_ip)` prepared
// insert.
type sqlRecord struct {
	InfoHash string `db:"info_hash"`
	Name     string `db:"name"`
	Size     int64  `db:"size"`
	SourceIP string `db:"source_ip"`
}

// BatchingSQLSink accumulates accepted records and flushes them together,
// either once BatchSize records have queued up or BatchTimeout has elapsed
// since the last flush -- whichever comes first. A flush runs the insert
// statement once per pending record; it does not issue a single multi-row
// exec.
//
// It owns no schema migration (out of scope per spec.md §1); callers
// supply an already-open *sqlx.DB and the exact named-parameter insert
// statement to run for each record, e.g.:
//
//	INSERT INTO torrents (info_hash, name, size, source_ip)
//	VALUES (:info_hash, :name, :size, :source_ip)
//
// Grounded on original_source/workers/db_writer.py's DBWriter.worker
// (batch_size/batch_timeout trigger) and modasi-mika/store/mysql's use of
// sqlx.MustConnect/NamedExec against a *sqlx.DB.
type BatchingSQLSink struct {
	db        *sqlx.DB
	insertSQL string

	mu      sync.Mutex
	pending []sqlRecord

	batchSize int
	flushTick *time.Ticker
	stop      chan struct{}
	log       logger.DebugLogger
}

// NewBatchingSQLSink creates a sink flushing to db via insertSQL (a named
// query, see doc comment) whenever pending records reach batchSize or
// batchTimeout elapses. A nil log defaults to logger.NullLogger.
func NewBatchingSQLSink(db *sqlx.DB, insertSQL string, batchSize int, batchTimeout time.Duration, log logger.DebugLogger) *BatchingSQLSink {
	if log == nil {
		log = &logger.NullLogger{}
	}
	s := &BatchingSQLSink{
		db:        db,
		insertSQL: insertSQL,
		batchSize: batchSize,
		flushTick: time.NewTicker(batchTimeout),
		stop:      make(chan struct{}),
		log:       log,
	}
	go s.flushLoop()
	return s
}

func (s *BatchingSQLSink) Accept(infoHash identity.ID, info metainfo.Dict, rawInfoBytes []byte, sourceIP net.IP) error {
	name, _ := info.Name()
	size, _ := info.TotalSize()

	s.mu.Lock()
	s.pending = append(s.pending, sqlRecord{
		InfoHash: infoHash.String(),
		Name:     name,
		Size:     size,
		SourceIP: sourceIP.String(),
	})
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
	return nil
}

func (s *BatchingSQLSink) flushLoop() {
	for {
		select {
		case <-s.flushTick.C:
			s.flush()
		case <-s.stop:
			return
		}
	}
}

func (s *BatchingSQLSink) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	batchIfc := make([]interface{}, len(batch))
	for i, r := range batch {
		batchIfc[i] = r
	}
	for _, r := range batchIfc {
		if _, err := s.db.NamedExec(s.insertSQL, r); err != nil {
			s.log.Errorf("sink: sql insert failed: %v", err)
		}
	}
}

// Close stops the background flush ticker and flushes any remaining
// pending records.
func (s *BatchingSQLSink) Close() {
	close(s.stop)
	s.flushTick.Stop()
	s.flush()
}
