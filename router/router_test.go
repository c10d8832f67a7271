package router

import (
	"testing"

	"dhtcrawl/dhtserver"
	"dhtcrawl/identity"
)

func ih(b byte) identity.ID {
	var id identity.ID
	id[0] = b
	return id
}

func TestPriorityOrdering(t *testing.T) {
	r := New(10, 100)

	// Posted in reverse priority order: GET_PEERS, PEER_VALUE, ANNOUNCE.
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(1), SourceIP: [4]byte{1, 1, 1, 1}, SourcePort: 1111})
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindPeerValue, InfoHash: ih(2), SourceIP: [4]byte{2, 2, 2, 2}, Port: 2222})
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindAnnounce, InfoHash: ih(3), SourceIP: [4]byte{3, 3, 3, 3}, Port: 3333})

	first, ok := r.Pop()
	if !ok || first.Priority != PriorityAnnounce {
		t.Fatalf("first popped = %+v, want ANNOUNCE", first)
	}
	second, ok := r.Pop()
	if !ok || second.Priority != PriorityPeerValue {
		t.Fatalf("second popped = %+v, want PEER_VALUE", second)
	}
	third, ok := r.Pop()
	if !ok || third.Priority != PriorityGetPeers {
		t.Fatalf("third popped = %+v, want GET_PEERS", third)
	}
}

func TestDedupAdmitsOncePerHashAndIP(t *testing.T) {
	r := New(10, 100)
	ev := dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(9), SourceIP: [4]byte{9, 9, 9, 9}, SourcePort: 1}

	r.Handle(ev)
	r.Handle(ev)
	r.Handle(ev)

	if got := r.QueueLen(); got != 1 {
		t.Errorf("QueueLen() = %d after 3 identical events, want 1", got)
	}
}

func TestDedupResetsAtCapacity(t *testing.T) {
	r := New(10, 2)
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(1), SourceIP: [4]byte{1, 1, 1, 1}, SourcePort: 1})
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(2), SourceIP: [4]byte{2, 2, 2, 2}, SourcePort: 1})
	if r.SeenCount() != 2 {
		t.Fatalf("SeenCount() = %d, want 2", r.SeenCount())
	}

	// Third distinct key triggers the hard reset, so a previously-seen
	// key can be admitted again afterward.
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(3), SourceIP: [4]byte{3, 3, 3, 3}, SourcePort: 1})

	before := r.QueueLen()
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(1), SourceIP: [4]byte{1, 1, 1, 1}, SourcePort: 1})
	if r.QueueLen() != before+1 {
		t.Error("previously-seen (hash, ip) was not re-admitted after seen-set reset")
	}
}

func TestTargetPortFallback(t *testing.T) {
	cases := []struct {
		ev   dhtserver.InfoEvent
		want uint16
	}{
		{dhtserver.InfoEvent{Kind: dhtserver.KindAnnounce, Port: 7000, SourcePort: 8000}, 7000},
		{dhtserver.InfoEvent{Kind: dhtserver.KindAnnounce, Port: 0, SourcePort: 8000}, 8000},
		{dhtserver.InfoEvent{Kind: dhtserver.KindAnnounce, Port: 0, SourcePort: 0}, defaultPort},
		{dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, SourcePort: 9000}, 9000},
		{dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, SourcePort: 0}, defaultPort},
	}
	for _, c := range cases {
		got := classify(c.ev)
		if got.TargetPort != c.want {
			t.Errorf("classify(%+v).TargetPort = %d, want %d", c.ev, got.TargetPort, c.want)
		}
	}
}

func TestQueueDropsOnOverflow(t *testing.T) {
	r := New(1, 100)
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(1), SourceIP: [4]byte{1, 1, 1, 1}, SourcePort: 1})
	r.Handle(dhtserver.InfoEvent{Kind: dhtserver.KindGetPeers, InfoHash: ih(2), SourceIP: [4]byte{2, 2, 2, 2}, SourcePort: 1})

	if got := r.QueueLen(); got != 1 {
		t.Errorf("QueueLen() = %d, want 1 (second task dropped on overflow)", got)
	}
}

func TestPopReturnsFalseAfterClose(t *testing.T) {
	r := New(10, 100)
	r.Close()
	if _, ok := r.Pop(); ok {
		t.Error("Pop() ok = true after Close, want false")
	}
}
