package arena

import (
	"testing"

	"dhtcrawl/krpc"
)

func TestPopPushRoundTrip(t *testing.T) {
	a := NewArena(64, 2)
	b1 := a.Pop()
	if len(b1) != 64 {
		t.Fatalf("Pop() len = %d, want 64", len(b1))
	}
	b1 = b1[:10]
	a.Push(b1)
	b2 := a.Pop()
	if cap(b2) != 64 {
		t.Fatalf("Push/Pop lost capacity: got %d, want 64", cap(b2))
	}
	if len(b2) != 64 {
		t.Fatalf("Push restores full length, got %d, want 64", len(b2))
	}
}

func TestNewDHTPacketArenaSizesToMaxUDPPacket(t *testing.T) {
	a := NewDHTPacketArena(4)
	b := a.Pop()
	if len(b) != krpc.MaxUDPPacketSize {
		t.Fatalf("Pop() len = %d, want %d", len(b), krpc.MaxUDPPacketSize)
	}
	if len(a) != 3 {
		t.Fatalf("arena depth after one Pop() = %d, want 3", len(a))
	}
}

func BenchmarkArena(b *testing.B) {
	b.StopTimer()
	a := NewArena(1024, 1000)

	b.StartTimer()
	for i := 0; i < b.N; i++ {
		a.Push(a.Pop())
	}
}
