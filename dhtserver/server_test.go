package dhtserver

import "testing"

func TestIsPrivateIP(t *testing.T) {
	cases := []struct {
		ip   [4]byte
		want bool
	}{
		{[4]byte{127, 0, 0, 1}, true},
		{[4]byte{0, 0, 0, 0}, true},
		{[4]byte{10, 1, 2, 3}, true},
		{[4]byte{172, 1, 2, 3}, true},   // over-broad by design
		{[4]byte{172, 32, 0, 1}, true},  // outside real 172.16/12, still blocked
		{[4]byte{192, 168, 1, 1}, true},
		{[4]byte{192, 0, 2, 1}, false},  // TEST-NET-1, not filtered
		{[4]byte{8, 8, 8, 8}, false},
		{[4]byte{203, 0, 113, 5}, false},
	}
	for _, c := range cases {
		if got := isPrivateIP(c.ip); got != c.want {
			t.Errorf("isPrivateIP(%v) = %v, want %v", c.ip, got, c.want)
		}
	}
}

func TestIDFromWireRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i)
	}
	id := idFromWire(string(raw))
	for i := range raw {
		if id[i] != raw[i] {
			t.Fatalf("idFromWire mismatch at byte %d: got %d, want %d", i, id[i], raw[i])
		}
	}
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		KindGetPeers: "get_peers",
		KindPeerValue: "peer_value",
		KindAnnounce: "announce",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", k, got, want)
		}
	}
}
