// Package orchestrator wires together the DHT server pool, the info event
// router, the metadata fetcher pool, and a sink into one running crawler. It
// owns the process-level concerns: configuration (built-in defaults with
// DHT_-prefixed env overrides), the periodic stats line, the periodic
// blacklist sweep, and an orderly Stop (cmd/dhtcrawld calls it on
// SIGINT/SIGTERM).
//
// Grounded on original_source/main.py's module-level constants and
// metadata_worker/run loop, generalized per spec.md §5's goroutine layout:
// one process, N dhtserver.Server instances feeding a shared event channel,
// one router.Router, and a fetcher.Pool of M workers, instead of the
// original's multiprocessing.Process/threading.Thread split.
package orchestrator

import (
	"expvar"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dhtcrawl/blacklist"
	"dhtcrawl/dhtserver"
	"dhtcrawl/fetcher"
	"dhtcrawl/logger"
	"dhtcrawl/router"
	"dhtcrawl/sink"
)

// Config holds the crawler's tunables. NewConfigFromEnv starts from
// NewConfig's defaults and applies any DHT_-prefixed environment overrides,
// matching original_source/config/settings.py's get_env convention.
type Config struct {
	DHTServers             int
	MetadataWorkers        int
	MetadataTimeout        time.Duration
	EventQueueSize         int
	FetchQueueSize         int
	SinkQueueSize          int
	BlacklistBaseSeconds   int
	BlacklistCapSeconds    int
	BlacklistSweepInterval time.Duration
	PrintInterval          time.Duration
	DHTServerConfig        dhtserver.Config
}

// NewConfig returns the reference tunables: 8 DHT servers, 400 metadata
// workers, a 6s fetch timeout, and the queue sizes from spec.md §5 (event
// ~10000, fetch/metadata ~10000, sink ~5000).
func NewConfig() Config {
	return Config{
		DHTServers:             8,
		MetadataWorkers:        400,
		MetadataTimeout:        6 * time.Second,
		EventQueueSize:         10000,
		FetchQueueSize:         10000,
		SinkQueueSize:          5000,
		BlacklistBaseSeconds:   int(blacklist.DefaultBase / time.Second),
		BlacklistCapSeconds:    int(blacklist.DefaultCap / time.Second),
		BlacklistSweepInterval: 60 * time.Second,
		PrintInterval:          5 * time.Second,
		DHTServerConfig:        dhtserver.NewConfig(),
	}
}

// NewConfigFromEnv applies DHT_-prefixed environment overrides on top of
// NewConfig's defaults, e.g. DHT_SERVERS, DHT_METADATA_WORKERS,
// DHT_METADATA_TIMEOUT (seconds), DHT_BLACKLIST_BASE_SECONDS.
func NewConfigFromEnv() Config {
	cfg := NewConfig()
	cfg.DHTServers = getEnvInt("SERVERS", cfg.DHTServers)
	cfg.MetadataWorkers = getEnvInt("METADATA_WORKERS", cfg.MetadataWorkers)
	cfg.MetadataTimeout = time.Duration(getEnvInt("METADATA_TIMEOUT", int(cfg.MetadataTimeout/time.Second))) * time.Second
	cfg.EventQueueSize = getEnvInt("EVENT_QUEUE_SIZE", cfg.EventQueueSize)
	cfg.FetchQueueSize = getEnvInt("FETCH_QUEUE_SIZE", cfg.FetchQueueSize)
	cfg.SinkQueueSize = getEnvInt("SINK_QUEUE_SIZE", cfg.SinkQueueSize)
	cfg.BlacklistBaseSeconds = getEnvInt("BLACKLIST_BASE_SECONDS", cfg.BlacklistBaseSeconds)
	cfg.BlacklistCapSeconds = getEnvInt("BLACKLIST_CAP_SECONDS", cfg.BlacklistCapSeconds)
	cfg.BlacklistSweepInterval = time.Duration(getEnvInt("BLACKLIST_SWEEP_SECONDS", int(cfg.BlacklistSweepInterval/time.Second))) * time.Second
	if hosts := os.Getenv("DHT_BOOTSTRAP_NODES"); hosts != "" {
		cfg.DHTServerConfig.BootstrapNodes = strings.Split(hosts, ",")
	}
	return cfg
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv("DHT_" + key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Stats is the crawler's aggregate, periodically printed counter bundle.
// Mirrors the original's STAT: line (Q=.. BL=.. Att=.. Conn=.. HS=.. OK=..)
// plus the router's seen-set size (SEEN=..) and the fetcher's Fail count.
type Stats struct {
	QueueDepth     int
	SeenSetSize    int
	BlacklistSize  int
	fetcher.Stats
}

func (s Stats) String() string {
	return fmt.Sprintf("Q=%d SEEN=%d BL=%d %s", s.QueueDepth, s.SeenSetSize, s.BlacklistSize, s.Stats.String())
}

var (
	expQueueDepth    = expvar.NewInt("orchestrator.queue_depth")
	expBlacklistSize = expvar.NewInt("orchestrator.blacklist_size")
)

// Crawler owns one running instance: a pool of DHT servers feeding a
// router, whose prioritized fetch tasks are served by a fetcher.Pool, whose
// verified metadata is delivered to a Sink.
type Crawler struct {
	cfg     Config
	log     logger.DebugLogger
	servers []*dhtserver.Server
	router  *router.Router
	pool    *fetcher.Pool
	bl      *blacklist.Blacklist
	sink    sink.Sink
	events  chan dhtserver.InfoEvent
	stop    chan struct{}
}

// New constructs a Crawler. s is the sink verified metadata is delivered
// to; pass a *sink.MemorySink for a dependency-free default.
func New(cfg Config, s sink.Sink, log logger.DebugLogger) (*Crawler, error) {
	if log == nil {
		log = &logger.NullLogger{}
	}
	events := make(chan dhtserver.InfoEvent, cfg.EventQueueSize)
	bl := blacklist.New(
		time.Duration(cfg.BlacklistBaseSeconds)*time.Second,
		time.Duration(cfg.BlacklistCapSeconds)*time.Second,
	)
	r := router.New(cfg.FetchQueueSize, 50000)

	servers := make([]*dhtserver.Server, 0, cfg.DHTServers)
	for i := 0; i < cfg.DHTServers; i++ {
		srv, err := dhtserver.New(cfg.DHTServerConfig, events, log)
		if err != nil {
			for _, started := range servers {
				started.Stop()
			}
			return nil, fmt.Errorf("orchestrator: starting dht server %d: %w", i, err)
		}
		servers = append(servers, srv)
	}

	fcfg := fetcher.NewConfig()
	fcfg.Workers = cfg.MetadataWorkers
	fcfg.OverallTimeout = cfg.MetadataTimeout
	pool := fetcher.New(fcfg, r, bl, s, log)

	return &Crawler{
		cfg:     cfg,
		log:     log,
		servers: servers,
		router:  r,
		pool:    pool,
		bl:      bl,
		sink:    s,
		events:  events,
		stop:    make(chan struct{}),
	}, nil
}

// Run starts every DHT server, the router, and the fetcher pool, then
// blocks printing stats every PrintInterval and sweeping the blacklist
// every BlacklistSweepInterval until Stop is called.
func (c *Crawler) Run() {
	for _, srv := range c.servers {
		srv.Start()
	}
	go c.router.Run(c.events)
	go c.pool.Run()

	statsTicker := time.NewTicker(c.cfg.PrintInterval)
	defer statsTicker.Stop()
	sweepTicker := time.NewTicker(c.cfg.BlacklistSweepInterval)
	defer sweepTicker.Stop()
	for {
		select {
		case <-statsTicker.C:
			c.printStats()
		case <-sweepTicker.C:
			c.bl.Sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Crawler) printStats() {
	s := c.stats()
	expQueueDepth.Set(int64(s.QueueDepth))
	expBlacklistSize.Set(int64(s.BlacklistSize))
	fmt.Printf("STAT: %s\n", s)
}

// stats returns a snapshot of the crawler's current counters.
func (c *Crawler) stats() Stats {
	return Stats{
		QueueDepth:    c.router.QueueLen(),
		SeenSetSize:   c.router.SeenCount(),
		BlacklistSize: c.bl.Len(),
		Stats:         c.pool.Stats,
	}
}

// Stop shuts down every DHT server and the router, unblocking Run and every
// fetcher worker's Pop call. Safe to call once.
func (c *Crawler) Stop() {
	for _, srv := range c.servers {
		srv.Stop()
	}
	for _, srv := range c.servers {
		srv.Wait()
	}
	close(c.events)
	c.router.Close()
	close(c.stop)
}
