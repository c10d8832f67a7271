package identity

import (
	"bytes"
	"testing"
)

func TestNeighborPreservesTargetPrefixAndOwnSuffix(t *testing.T) {
	var target, nid ID
	for i := range target {
		target[i] = byte(i)
	}
	for i := range nid {
		nid[i] = byte(255 - i)
	}

	const end = 10
	got := Neighbor(target, nid, end)

	if !bytes.Equal(got[:end], target[:end]) {
		t.Errorf("Neighbor()[:%d] = %x, want %x", end, got[:end], target[:end])
	}
	if !bytes.Equal(got[end:], nid[end:]) {
		t.Errorf("Neighbor()[%d:] = %x, want %x", end, got[end:], nid[end:])
	}
}

func TestNeighborClampsEnd(t *testing.T) {
	var target, nid ID
	target[0] = 1
	nid[0] = 2

	full := Neighbor(target, nid, IDLen+5)
	if full != target {
		t.Errorf("Neighbor with end > IDLen = %x, want target %x", full, target)
	}

	none := Neighbor(target, nid, -3)
	if none != nid {
		t.Errorf("Neighbor with negative end = %x, want nid %x", none, nid)
	}
}

func TestDistanceSelfIsZero(t *testing.T) {
	id, err := RandID()
	if err != nil {
		t.Fatalf("RandID: %v", err)
	}
	d := Distance(id, id)
	var zero ID
	if d != zero {
		t.Errorf("Distance(id, id) = %x, want zero", d)
	}
}

func TestLessOrdersByDistance(t *testing.T) {
	a := ID{0, 0, 0}
	b := ID{0, 0, 1}
	if !Less(a, b) {
		t.Error("Less(a, b) = false, want true")
	}
	if Less(b, a) {
		t.Error("Less(b, a) = true, want false")
	}
	if Less(a, a) {
		t.Error("Less(a, a) = true, want false")
	}
}

func TestNodeContactRoundTrip(t *testing.T) {
	c := NodeContact{IP: [4]byte{10, 0, 0, 1}, Port: 6881}
	for i := range c.ID {
		c.ID[i] = byte(i)
	}

	buf := EncodeNodeContact(nil, c)
	if len(buf) != NodeContactLen {
		t.Fatalf("encoded length = %d, want %d", len(buf), NodeContactLen)
	}

	decoded, err := DecodeNodeContacts(buf)
	if err != nil {
		t.Fatalf("DecodeNodeContacts: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != c {
		t.Errorf("DecodeNodeContacts = %+v, want [%+v]", decoded, c)
	}
}

func TestDecodeNodeContactsRejectsBadLength(t *testing.T) {
	if _, err := DecodeNodeContacts(make([]byte, NodeContactLen+1)); err == nil {
		t.Error("DecodeNodeContacts with misaligned length succeeded, want error")
	}
}

func TestPeerContactRoundTrip(t *testing.T) {
	c := PeerContact{IP: [4]byte{192, 0, 2, 7}, Port: 51413}
	buf := EncodePeerContact(nil, c)
	if len(buf) != PeerContactLen {
		t.Fatalf("encoded length = %d, want %d", len(buf), PeerContactLen)
	}

	decoded, err := DecodePeerContacts([][]byte{buf})
	if err != nil {
		t.Fatalf("DecodePeerContacts: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != c {
		t.Errorf("DecodePeerContacts = %+v, want [%+v]", decoded, c)
	}
}

func TestDecodePeerContactsRejectsBadLength(t *testing.T) {
	if _, err := DecodePeerContacts([][]byte{make([]byte, PeerContactLen-1)}); err == nil {
		t.Error("DecodePeerContacts with short value succeeded, want error")
	}
}

func TestDottedQuadRoundTrip(t *testing.T) {
	ip := DottedQuadToBinary(203, 0, 113, 42)
	got := BinaryToDottedQuad(ip)
	want := "203.0.113.42"
	if got != want {
		t.Errorf("BinaryToDottedQuad() = %q, want %q", got, want)
	}
}

func TestPortRoundTrip(t *testing.T) {
	b := PortToBinary(6881)
	if got := BinaryToPort(b); got != 6881 {
		t.Errorf("BinaryToPort(PortToBinary(6881)) = %d, want 6881", got)
	}
}
