// Package identity implements the node and infohash identifiers used
// throughout the DHT crawler: 160-bit SHA-1 style IDs, compact wire
// encodings for node and peer contacts, and the neighbor-ID synthesis used
// to make the crawler look close to whatever ID a peer is asking about.
//
// Grounded on STX5-dht's util/infohash.go (InfoHash type, distance,
// compact-address decoding) and the reference DHT's utils.py
// (get_neighbor, decode_nodes/encode_nodes, dottedQuadToNum).
package identity

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	// IDLen is the length in bytes of a node ID or infohash: SHA-1's
	// 160 bits.
	IDLen = 20
	// NodeContactLen is the length of a single compact node record: a
	// 20-byte ID followed by a 4-byte IPv4 address and 2-byte port.
	NodeContactLen = IDLen + 6
	// PeerContactLen is the length of a single compact peer record: a
	// 4-byte IPv4 address and 2-byte port, with no ID.
	PeerContactLen = 6
)

// ID is a 160-bit identifier: a node ID or an infohash.
type ID [IDLen]byte

func (id ID) String() string {
	return fmt.Sprintf("%x", [IDLen]byte(id))
}

// RandID returns a cryptographically random 160-bit identifier, used both
// to mint a DHT server's own node ID and as scratch space in tests.
func RandID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, fmt.Errorf("identity: reading random id: %w", err)
	}
	return id, nil
}

// Neighbor synthesizes a node ID that shares target's first end bytes and
// nid's remaining bytes. The DHT server uses this to answer queries with an
// ID that looks, to the querying peer, like it lives near the target of
// their lookup -- improving the odds of being kept in that peer's routing
// table without running a real Kademlia node.
func Neighbor(target, nid ID, end int) ID {
	if end < 0 {
		end = 0
	}
	if end > IDLen {
		end = IDLen
	}
	var out ID
	copy(out[:end], target[:end])
	copy(out[end:], nid[end:])
	return out
}

// Distance returns the XOR (Kademlia) distance between two identifiers.
func Distance(a, b ID) ID {
	var out ID
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Less reports whether a is numerically closer to the origin than b, when
// both are interpreted as big-endian 160-bit integers. Used to order nodes
// by distance to a target.
func Less(a, b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// NodeContact is a single entry from a compact "nodes" string: a node's
// claimed ID plus the address listed for it in that record.
type NodeContact struct {
	ID   ID
	IP   [4]byte
	Port uint16
}

// PeerContact is a single entry from a compact "values" string: no ID, only
// an address. Peers announcing a torrent are identified solely by address.
type PeerContact struct {
	IP   [4]byte
	Port uint16
}

// EncodeNodeContact appends the 26-byte compact wire form of c to buf.
func EncodeNodeContact(buf []byte, c NodeContact) []byte {
	buf = append(buf, c.ID[:]...)
	buf = append(buf, c.IP[:]...)
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], c.Port)
	return append(buf, port[:]...)
}

// DecodeNodeContacts parses a compact "nodes" byte string into individual
// contacts. Returns an error if the length isn't a multiple of
// NodeContactLen.
func DecodeNodeContacts(data []byte) ([]NodeContact, error) {
	if len(data)%NodeContactLen != 0 {
		return nil, fmt.Errorf("identity: compact nodes string length %d not a multiple of %d", len(data), NodeContactLen)
	}
	n := len(data) / NodeContactLen
	out := make([]NodeContact, n)
	for i := 0; i < n; i++ {
		off := i * NodeContactLen
		var c NodeContact
		copy(c.ID[:], data[off:off+IDLen])
		copy(c.IP[:], data[off+IDLen:off+IDLen+4])
		c.Port = binary.BigEndian.Uint16(data[off+IDLen+4 : off+NodeContactLen])
		out[i] = c
	}
	return out, nil
}

// EncodePeerContact appends the 6-byte compact wire form of c to buf.
func EncodePeerContact(buf []byte, c PeerContact) []byte {
	buf = append(buf, c.IP[:]...)
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], c.Port)
	return append(buf, port[:]...)
}

// DecodePeerContacts parses a "values" list's individual 6-byte compact
// address strings.
func DecodePeerContacts(values [][]byte) ([]PeerContact, error) {
	out := make([]PeerContact, 0, len(values))
	for _, v := range values {
		if len(v) != PeerContactLen {
			return nil, fmt.Errorf("identity: compact peer value length %d, want %d", len(v), PeerContactLen)
		}
		var c PeerContact
		copy(c.IP[:], v[:4])
		c.Port = binary.BigEndian.Uint16(v[4:6])
		out = append(out, c)
	}
	return out, nil
}

// DottedQuadToBinary packs an IPv4 address given as four octets into its
// 4-byte big-endian wire form.
func DottedQuadToBinary(a, b, c, d byte) [4]byte {
	return [4]byte{a, b, c, d}
}

// BinaryToDottedQuad formats a 4-byte IPv4 address as dotted-quad text.
func BinaryToDottedQuad(ip [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// PortToBinary packs a port number into its 2-byte big-endian wire form.
func PortToBinary(port uint16) [2]byte {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], port)
	return out
}

// BinaryToPort unpacks a 2-byte big-endian port number.
func BinaryToPort(b [2]byte) uint16 {
	return binary.BigEndian.Uint16(b[:])
}
