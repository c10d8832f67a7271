// Command dhtcrawld runs a standalone DHT metadata crawler: a pool of DHT
// servers feeding an info event router, whose prioritized fetch tasks are
// served by a metadata fetcher pool, delivering verified torrent metadata
// to a sink.
//
// Grounded on STX5-dht/examples/find_infohash_and_wait's flag.Parse +
// os.Exit(1)-on-error shape, and on the teacher's HTTPserver.go for the
// optional /debug/vars status server (disabled by default, matching the
// teacher's own StartHTTPServer call being commented out of its loop()).
package main

import (
	"expvar"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dhtcrawl/logger"
	"dhtcrawl/orchestrator"
	"dhtcrawl/sink"
)

func main() {
	var (
		memorySinkCapacity = flag.Int("memory-sink-capacity", 1000, "number of records retained by the in-process memory sink")
		httpAddr           = flag.String("http", "", "address to serve /debug/vars and /healthz on, e.g. :8711 (disabled if empty)")
		verbose            = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	var log logger.DebugLogger = &logger.NullLogger{}
	if *verbose {
		log = logger.NewLogrusLogger()
	}

	cfg := orchestrator.NewConfigFromEnv()
	s := sink.NewMemorySink(*memorySinkCapacity)

	c, err := orchestrator.New(cfg, s, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dhtcrawld: %v\n", err)
		os.Exit(1)
	}

	if *httpAddr != "" {
		go serveStatus(*httpAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "dhtcrawld: shutting down")
		c.Stop()
	}()

	fmt.Printf("--- Crawler Started (%d Servers, %d Workers) ---\n", cfg.DHTServers, cfg.MetadataWorkers)
	c.Run()
}

// serveStatus exposes expvar's /debug/vars (registered automatically by
// importing the package) and a trivial /healthz liveness check. Purely
// ambient observability, not part of the crawl-and-fetch contract.
func serveStatus(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "dhtcrawld: status server: %v\n", err)
	}
}
