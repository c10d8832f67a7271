// Package krpc implements the wire envelope for BitTorrent's KRPC protocol:
// the bencoded query/response/error dict exchanged over UDP by every DHT
// message, plus the socket plumbing that reads and writes it.
//
// Grounded on STX5-dht's remoteNode/krpc.go: SendMsg/ReadResponse/Listen
// keep that file's structure. The arena.Arena package that file used to
// avoid per-packet allocation on the hot receive path is still used here,
// by dhtserver's own read loop (a deadline-driven variant of this file's
// original ReadFromSocket, needed so Server.Stop can cancel a blocked read
// without the busy-spin a bare conn.Close() forces on a blocking read).
// Message marshaling still goes through jackpal/bencode-go's struct-tag
// encoder -- the fixed KRPC envelope shape is exactly what that library is
// good at, whereas package bencode's hand-rolled decoder exists for the
// strict-semantics cases that struct tags can't express (BEP-9 piece
// framing).
package krpc

import (
	"bytes"
	"crypto/rand"
	"expvar"
	"net"
	"strconv"
	"time"

	"dhtcrawl/logger"

	bencode "github.com/jackpal/bencode-go"
)

const (
	// MaxUDPPacketSize bounds a single read off the socket. KRPC packets
	// are small; this leaves headroom for the occasional oversized
	// "nodes" response some clients send.
	MaxUDPPacketSize = 4096
)

var (
	TotalSent         = expvar.NewInt("krpcTotalSent")
	TotalReadBytes    = expvar.NewInt("krpcTotalReadBytes")
	TotalWrittenBytes = expvar.NewInt("krpcTotalWrittenBytes")
)

// GetPeersResponse is the "r" dict of a get_peers/find_node/ping/
// announce_peer reply, generic enough to cover whichever fields the remote
// end actually populated.
type GetPeersResponse struct {
	Values []string "values"
	Id     string   "id"
	Nodes  string   "nodes"
	Token  string   "token"
}

// AnswerType is the "a" dict of an incoming query.
type AnswerType struct {
	Id       string "id"
	Target   string "target"
	InfoHash string "info_hash"
	Port     int    "port"
	Token    string "token"
}

// ResponseType is the fully generic shape of anything read off the wire;
// callers inspect Y to decide which of Q/R/E/A to trust.
type ResponseType struct {
	T string           "t"
	Y string           "y"
	Q string           "q"
	R GetPeersResponse "r"
	E []interface{}    "e"
	A AnswerType       "a"
}

// QueryMessage is an outgoing query: ping, find_node, get_peers, or
// announce_peer.
type QueryMessage struct {
	T string                 "t"
	Y string                 "y"
	Q string                 "q"
	A map[string]interface{} "a"
}

// ReplyMessage is an outgoing reply to a query.
type ReplyMessage struct {
	T string                 "t"
	Y string                 "y"
	R map[string]interface{} "r"
}

// Packet is a single read off the UDP socket: its payload plus the sender's
// address. The payload's backing array is on loan from an arena.Arena and
// must be returned with Push once the packet is fully handled.
type Packet struct {
	B     []byte
	Raddr net.UDPAddr
}

// SendMsg bencodes query and sends it to raddr over conn.
func SendMsg(conn *net.UDPConn, raddr net.UDPAddr, query interface{}, log logger.DebugLogger) {
	TotalSent.Add(1)
	var b bytes.Buffer
	if err := bencode.Marshal(&b, query); err != nil {
		log.Debugf("krpc: marshal failed: %v", err)
		return
	}
	n, err := conn.WriteToUDP(b.Bytes(), &raddr)
	if err != nil {
		log.Debugf("krpc: write to %+v failed: %v", raddr, err)
		return
	}
	TotalWrittenBytes.Add(int64(n))
}

// ReadResponse unmarshals a packet's payload into the generic response
// shape. jackpal/bencode-go's Unmarshal can panic on sufficiently malformed
// input; that panic is recovered here and turned into an error so a single
// bad packet from the network can never take down a DHT server goroutine.
func ReadResponse(p Packet, log logger.DebugLogger) (response ResponseType, err error) {
	defer func() {
		if x := recover(); x != nil {
			log.Debugf("krpc: recovered from panic unmarshaling %q: %v", p.B, x)
			err = errPanicked
		}
	}()
	if uerr := bencode.Unmarshal(bytes.NewBuffer(p.B), &response); uerr != nil {
		log.Debugf("krpc: unmarshal error on %q: %v", p.B, uerr)
		return response, uerr
	}
	return response, nil
}

var errPanicked = &unmarshalPanicError{}

type unmarshalPanicError struct{}

func (*unmarshalPanicError) Error() string { return "krpc: unmarshal panicked on malformed packet" }

// Listen opens a UDP socket for the DHT server on addr:listenPort.
func Listen(addr string, listenPort int, proto string, log logger.DebugLogger) (*net.UDPConn, error) {
	log.Debugf("krpc: listening on %s:%d (%s)", addr, listenPort, proto)
	listener, err := net.ListenPacket(proto, addr+":"+strconv.Itoa(listenPort))
	if err != nil {
		log.Debugf("krpc: listen failed: %v", err)
		return nil, err
	}
	return listener.(*net.UDPConn), nil
}

// TransactionIDLen is the length in bytes of the transaction ids this
// implementation generates. KRPC allows up to 8 opaque bytes; 2 random
// bytes are enough entropy for the handful of in-flight queries a single
// server keeps outstanding.
const TransactionIDLen = 2

// NewTransactionID returns a random opaque transaction id, unique enough
// among a node's own in-flight queries -- not globally unique.
func NewTransactionID() []byte {
	b := make([]byte, TransactionIDLen)
	if _, err := rand.Read(b); err != nil {
		binTime := time.Now().UnixNano()
		b[0] = byte(binTime)
		b[1] = byte(binTime >> 8)
	}
	return b
}

// BogusID reports whether a wire-format node ID string is the wrong length
// to be a real 160-bit identifier.
func BogusID(id string) bool {
	return len(id) != 20
}
