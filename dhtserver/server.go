// Package dhtserver implements a single Mainline DHT (BEP-5) endpoint: one
// UDP socket, one forged identity, a bounded FIFO of learned nodes, and the
// find-node spam loop that keeps this identity fresh in as many remote
// routing tables as possible. It never performs real Kademlia lookups; its
// only job is to harvest get_peers/announce_peer traffic aimed at it.
//
// Grounded on STX5-dht's dht.go (loop(), processPacket, hostToken/
// checkToken, the secret-rotation and transaction-GC tickers) and
// remoteNode/krpc.go (the reader goroutine built on an arena.Arena). The
// query/response handling table and the find-node spam rate are
// transliterated from original_source/dht_server.py's handle_query/
// handle_response/auto_send_find_node, which this file's design follows
// much more closely than the teacher's own (fuller, Kademlia-capable)
// implementation: this server answers queries and harvests traffic, it
// does not maintain a routing table for its own lookups.
package dhtserver

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"sync"
	"time"

	"dhtcrawl/arena"
	"dhtcrawl/identity"
	"dhtcrawl/krpc"
	"dhtcrawl/logger"
)

var (
	totalRecv           = expvar.NewInt("dhtTotalRecv")
	totalSentFindNode   = expvar.NewInt("dhtTotalSentFindNode")
	totalGetPeersEvents = expvar.NewInt("dhtTotalGetPeersEvents")
	totalAnnounceEvents = expvar.NewInt("dhtTotalAnnounceEvents")
	totalPeerValueEvents = expvar.NewInt("dhtTotalPeerValueEvents")
	totalNodesAdded     = expvar.NewInt("dhtTotalNodesAdded")
)

// inFlightPackets bounds how many received-but-not-yet-classified packets
// (and therefore how many arena buffers) can be on loan at once: the depth
// of the channel readLoop hands packets to classifyLoop through.
const inFlightPackets = 64

// EventKind classifies how an InfoEvent was learned, used by the router to
// prioritize it.
type EventKind int

const (
	KindGetPeers EventKind = iota
	KindPeerValue
	KindAnnounce
)

func (k EventKind) String() string {
	switch k {
	case KindGetPeers:
		return "get_peers"
	case KindPeerValue:
		return "peer_value"
	case KindAnnounce:
		return "announce"
	default:
		return "unknown"
	}
}

// InfoEvent is emitted whenever a DHT server learns that some peer cares
// about an info-hash. Port is 0 when no better-than-source-port guess is
// available; the router applies its own fallback.
type InfoEvent struct {
	Kind       EventKind
	InfoHash   identity.ID
	SourceIP   [4]byte
	SourcePort uint16
	Port       uint16
}

// Config holds one DHT server's tunables. Use NewConfig for the defaults
// the original crawler ran with.
type Config struct {
	Address               string
	Port                  int
	MaxNodeQSize          int
	RecentHashesSize      int
	BootstrapNodes        []string
	BootstrapInterval     time.Duration
	SecretRotationPeriod  time.Duration
	TransactionTTL        time.Duration
	TransactionGCInterval time.Duration
	ReadTimeout           time.Duration
}

// NewConfig returns the reference tunables: MAX_NODE_QSIZE=500, a 2000-entry
// recent-hash ring, the three well-known bootstrap routers, and the
// rotation/GC periods from spec.md §4.2.
func NewConfig() Config {
	return Config{
		MaxNodeQSize:     500,
		RecentHashesSize: 2000,
		BootstrapNodes: []string{
			"router.bittorrent.com:6881",
			"dht.transmissionbt.com:6881",
			"router.utorrent.com:6881",
		},
		BootstrapInterval:     2 * time.Second,
		SecretRotationPeriod:  secretRotationPeriod,
		TransactionTTL:        120 * time.Second,
		TransactionGCInterval: 60 * time.Second,
		ReadTimeout:           200 * time.Millisecond,
	}
}

type txEntry struct {
	infoHash  identity.ID
	createdAt time.Time
}

// Server is a single DHT endpoint. Create with New, run with Start, and
// stop with Stop.
type Server struct {
	cfg Config
	nid identity.ID
	log logger.DebugLogger

	conn    *net.UDPConn
	buffers arena.Arena

	fifo    *nodeFIFO
	secrets *tokenSecrets
	recent  *recentHashes

	txMu sync.Mutex
	tx   map[string]txEntry

	events chan<- InfoEvent

	stop    chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup
}

// New creates a server bound to cfg.Address:cfg.Port (0 picks an ephemeral
// port) with a freshly minted random node ID. events is the shared,
// multi-producer channel the orchestrator's router consumes from.
func New(cfg Config, events chan<- InfoEvent, log logger.DebugLogger) (*Server, error) {
	if log == nil {
		log = &logger.NullLogger{}
	}
	nid, err := identity.RandID()
	if err != nil {
		return nil, fmt.Errorf("dhtserver: generating node id: %w", err)
	}
	conn, err := krpc.Listen(cfg.Address, cfg.Port, "udp4", log)
	if err != nil {
		return nil, fmt.Errorf("dhtserver: listen: %w", err)
	}
	initialSecret, err := identity.RandID()
	if err != nil {
		return nil, fmt.Errorf("dhtserver: generating token secret: %w", err)
	}
	return &Server{
		cfg:     cfg,
		nid:     nid,
		log:     log,
		conn:    conn,
		buffers: arena.NewDHTPacketArena(inFlightPackets),
		fifo:    newNodeFIFO(cfg.MaxNodeQSize),
		secrets: newTokenSecrets(initialSecret[:]),
		recent:  newRecentHashes(cfg.RecentHashesSize),
		tx:      make(map[string]txEntry),
		events:  events,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// NodeID returns this server's own identity.
func (s *Server) NodeID() identity.ID { return s.nid }

// LocalAddr returns the bound UDP address, including the ephemeral port
// chosen when Config.Port was 0.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Start launches the reader, classifier, spammer, bootstrap, secret
// rotation, and transaction GC goroutines, and returns immediately.
func (s *Server) Start() {
	packets := make(chan krpc.Packet, inFlightPackets)

	s.wg.Add(6)
	go s.readLoop(packets)
	go s.classifyLoop(packets)
	go s.spamLoop()
	go s.bootstrapLoop()
	go s.secretRotationLoop()
	go s.transactionGCLoop()
}

// Stop signals every goroutine started by Start to exit and closes the
// socket. It does not block for their exit; callers that need that should
// use Wait.
func (s *Server) Stop() {
	select {
	case <-s.stop:
		// already stopped
	default:
		close(s.stop)
	}
	s.conn.Close()
}

// Wait blocks until every goroutine started by Start has exited.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) readLoop(packets chan<- krpc.Packet) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		b := s.buffers.Pop()
		n, addr, err := s.conn.ReadFromUDP(b)
		if err != nil {
			s.buffers.Push(b)
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stop:
				return
			default:
				continue
			}
		}
		totalRecv.Add(1)
		krpc.TotalReadBytes.Add(int64(n))
		p := krpc.Packet{B: b[:n], Raddr: *addr}
		select {
		case packets <- p:
		case <-s.stop:
			return
		}
	}
}

func (s *Server) classifyLoop(packets <-chan krpc.Packet) {
	defer s.wg.Done()
	for {
		select {
		case p := <-packets:
			s.handlePacket(p)
			s.buffers.Push(p.B)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) handlePacket(p krpc.Packet) {
	resp, err := krpc.ReadResponse(p, s.log)
	if err != nil {
		return
	}
	var peerIP [4]byte
	if ip4 := p.Raddr.IP.To4(); ip4 != nil {
		copy(peerIP[:], ip4)
	} else {
		return
	}
	peerPort := uint16(p.Raddr.Port)

	switch resp.Y {
	case "q":
		s.handleQuery(resp, p.Raddr, peerIP, peerPort)
	case "r":
		s.handleReply(resp, peerIP, peerPort)
	}
}

func (s *Server) handleQuery(resp krpc.ResponseType, raddr net.UDPAddr, peerIP [4]byte, peerPort uint16) {
	switch resp.Q {
	case "ping":
		s.reply(raddr, map[string]interface{}{"id": string(s.nid[:])}, resp.T)

	case "find_node":
		target := idFromWire(resp.A.Target)
		s.reply(raddr, map[string]interface{}{
			"id":    string(identity.Neighbor(target, s.nid, 10)[:]),
			"nodes": "",
		}, resp.T)

	case "get_peers":
		ih := idFromWire(resp.A.InfoHash)
		token := s.secrets.For(peerIP[:])
		s.reply(raddr, map[string]interface{}{
			"id":    string(identity.Neighbor(ih, s.nid, 10)[:]),
			"token": string(token),
			"nodes": "",
		}, resp.T)
		if !isPrivateIP(peerIP) && !s.recent.SeenRecently(ih) {
			totalGetPeersEvents.Add(1)
			s.emit(InfoEvent{Kind: KindGetPeers, InfoHash: ih, SourceIP: peerIP, SourcePort: peerPort})
		}

	case "announce_peer":
		senderID := idFromWire(resp.A.Id)
		ih := idFromWire(resp.A.InfoHash)
		if s.secrets.Check([]byte(resp.A.Token), peerIP[:]) {
			s.reply(raddr, map[string]interface{}{
				"id": string(identity.Neighbor(senderID, s.nid, 10)[:]),
			}, resp.T)
			if !isPrivateIP(peerIP) {
				port := uint16(resp.A.Port)
				if port == 0 {
					port = peerPort
				}
				totalAnnounceEvents.Add(1)
				s.emit(InfoEvent{Kind: KindAnnounce, InfoHash: ih, SourceIP: peerIP, SourcePort: peerPort, Port: port})
			}
		}
	}

	s.addNode(KNode{ID: senderIDOrZero(resp), IP: peerIP, Port: peerPort})
}

func senderIDOrZero(resp krpc.ResponseType) identity.ID {
	if resp.A.Id != "" {
		return idFromWire(resp.A.Id)
	}
	return identity.ID{}
}

func (s *Server) handleReply(resp krpc.ResponseType, peerIP [4]byte, peerPort uint16) {
	if resp.R.Nodes != "" {
		contacts, err := identity.DecodeNodeContacts([]byte(resp.R.Nodes))
		if err == nil {
			for _, c := range contacts {
				s.addNode(KNode{ID: c.ID, IP: c.IP, Port: c.Port})
			}
		}
	}

	if len(resp.R.Values) > 0 {
		ih, ok := s.lookupTransaction(resp.T)
		if ok {
			raw := make([][]byte, 0, len(resp.R.Values))
			for _, v := range resp.R.Values {
				raw = append(raw, []byte(v))
			}
			contacts, err := identity.DecodePeerContacts(raw)
			if err == nil {
				for _, c := range contacts {
					if isPrivateIP(c.IP) {
						continue
					}
					totalPeerValueEvents.Add(1)
					s.emit(InfoEvent{Kind: KindPeerValue, InfoHash: ih, SourceIP: c.IP, SourcePort: c.Port, Port: c.Port})
				}
			}
		}
	}

	s.addNode(KNode{ID: senderIDOrZero(resp), IP: peerIP, Port: peerPort})
}

func (s *Server) emit(ev InfoEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debugf("dhtserver: info event channel full, dropping %s event for %x", ev.Kind, ev.InfoHash)
	}
}

func (s *Server) addNode(n KNode) {
	if n.Port == 0 {
		return
	}
	if n.IP == selfIP(s.conn) && int(n.Port) == selfPort(s.conn) {
		return
	}
	s.fifo.Push(n)
	totalNodesAdded.Add(1)
}

func (s *Server) reply(raddr net.UDPAddr, r map[string]interface{}, t string) {
	krpc.SendMsg(s.conn, raddr, krpc.ReplyMessage{T: t, Y: "r", R: r}, s.log)
}

// spamLoop drains the node FIFO at MaxNodeQSize Hz, sending each drained
// node a find_node whose sender ID is the neighbor of that node's own ID --
// the "key design choice" of this whole approach: maximize the odds this
// identity is remembered by as many remote routing tables as possible.
func (s *Server) spamLoop() {
	defer s.wg.Done()
	if s.cfg.MaxNodeQSize <= 0 {
		return
	}
	interval := time.Second / time.Duration(s.cfg.MaxNodeQSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			n, ok := s.fifo.Pop()
			if !ok {
				continue
			}
			s.sendFindNode(net.UDPAddr{IP: net.IP(n.IP[:]), Port: int(n.Port)}, identity.Neighbor(n.ID, s.nid, 10))
		}
	}
}

func (s *Server) sendFindNode(addr net.UDPAddr, senderID identity.ID) {
	target, err := identity.RandID()
	if err != nil {
		return
	}
	q := krpc.QueryMessage{
		T: string(krpc.NewTransactionID()),
		Y: "q",
		Q: "find_node",
		A: map[string]interface{}{
			"id":     string(senderID[:]),
			"target": string(target[:]),
		},
	}
	krpc.SendMsg(s.conn, addr, q, s.log)
	totalSentFindNode.Add(1)
}

// bootstrapLoop re-resolves and re-queries the well-known bootstrap routers
// on a fixed interval for the lifetime of the server; the reference
// implementation does this rather than a single one-shot bootstrap so a
// server that loses all FIFO entries (e.g. right after startup) keeps
// finding its way back onto the network.
func (s *Server) bootstrapLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.BootstrapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.bootstrapOnce()
		}
	}
}

func (s *Server) bootstrapOnce() {
	target, err := identity.RandID()
	if err != nil {
		return
	}
	senderID := identity.Neighbor(target, s.nid, 10)
	for _, host := range s.cfg.BootstrapNodes {
		host, port, err := net.SplitHostPort(host)
		if err != nil {
			continue
		}
		addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
		if err != nil {
			s.log.Debugf("dhtserver: bootstrap resolve %s failed: %v", host, err)
			continue
		}
		for _, a := range addrs {
			ip4 := a.IP.To4()
			if ip4 == nil {
				continue
			}
			var p int
			fmt.Sscanf(port, "%d", &p)
			s.sendFindNode(net.UDPAddr{IP: ip4, Port: p}, senderID)
		}
	}
}

func (s *Server) secretRotationLoop() {
	defer s.wg.Done()
	period := s.cfg.SecretRotationPeriod
	if period <= 0 {
		period = secretRotationPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			next, err := identity.RandID()
			if err != nil {
				continue
			}
			s.secrets.Rotate(next[:])
		}
	}
}

func (s *Server) transactionGCLoop() {
	defer s.wg.Done()
	interval := s.cfg.TransactionGCInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.gcTransactions()
		}
	}
}

func (s *Server) gcTransactions() {
	cutoff := time.Now().Add(-s.cfg.TransactionTTL)
	s.txMu.Lock()
	defer s.txMu.Unlock()
	for tid, e := range s.tx {
		if e.createdAt.Before(cutoff) {
			delete(s.tx, tid)
		}
	}
}

// SendGetPeers issues an outbound get_peers query for ih to addr and
// registers the transaction so a later response's `values` can be
// correlated back to ih. Not driven by the orchestrator's main pipeline
// (this crawler does not perform lookups on a caller's behalf, per
// spec.md's Non-goals) but kept as a first-class operation: it is exactly
// how a `get_peers` response ever comes to carry `values` in the first
// place, and the transaction-GC and token code paths both depend on this
// shape existing.
func (s *Server) SendGetPeers(ih identity.ID, addr net.UDPAddr) {
	tid := krpc.NewTransactionID()
	s.txMu.Lock()
	s.tx[string(tid)] = txEntry{infoHash: ih, createdAt: time.Now()}
	s.txMu.Unlock()

	q := krpc.QueryMessage{
		T: string(tid),
		Y: "q",
		Q: "get_peers",
		A: map[string]interface{}{
			"id":        string(s.nid[:]),
			"info_hash": string(ih[:]),
		},
	}
	krpc.SendMsg(s.conn, addr, q, s.log)
}

func (s *Server) lookupTransaction(tid string) (identity.ID, bool) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	e, ok := s.tx[tid]
	if !ok {
		return identity.ID{}, false
	}
	delete(s.tx, tid)
	return e.infoHash, true
}

func idFromWire(s string) identity.ID {
	var id identity.ID
	copy(id[:], s)
	return id
}

// isPrivateIP reports whether ip falls in a private/reserved range. This
// intentionally blocks the whole 172.* octet rather than the correct
// 172.16.0.0/12, preserving the reference crawler's over-broad filter.
func isPrivateIP(ip [4]byte) bool {
	switch ip[0] {
	case 127, 0, 10, 172, 192:
		if ip[0] == 192 {
			return ip[1] == 168
		}
		return true
	}
	return false
}

func selfIP(conn *net.UDPConn) [4]byte {
	var out [4]byte
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return out
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return out
	}
	copy(out[:], ip4)
	return out
}

func selfPort(conn *net.UDPConn) int {
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}
