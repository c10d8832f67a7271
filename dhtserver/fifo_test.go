package dhtserver

import "testing"

func node(n byte) KNode {
	var k KNode
	k.ID[0] = n
	k.IP = [4]byte{10, 0, 0, n}
	k.Port = 6881
	return k
}

func TestFIFORespectsCapacity(t *testing.T) {
	f := newNodeFIFO(3)
	f.Push(node(1))
	f.Push(node(2))
	f.Push(node(3))
	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	f.Push(node(4))
	if f.Len() != 3 {
		t.Fatalf("Len() after overflow push = %d, want 3 (bounded)", f.Len())
	}
}

func TestFIFOEvictsOldestOnOverflow(t *testing.T) {
	f := newNodeFIFO(2)
	f.Push(node(1))
	f.Push(node(2))
	f.Push(node(3)) // should evict node(1)

	first, ok := f.Pop()
	if !ok || first.ID[0] != 2 {
		t.Errorf("Pop() = %+v, want node(2) (oldest surviving entry)", first)
	}
	second, ok := f.Pop()
	if !ok || second.ID[0] != 3 {
		t.Errorf("Pop() = %+v, want node(3)", second)
	}
	if _, ok := f.Pop(); ok {
		t.Error("Pop() on empty queue returned ok=true")
	}
}

func TestFIFOPopOrderIsFIFO(t *testing.T) {
	f := newNodeFIFO(5)
	for i := byte(1); i <= 4; i++ {
		f.Push(node(i))
	}
	for i := byte(1); i <= 4; i++ {
		got, ok := f.Pop()
		if !ok || got.ID[0] != i {
			t.Errorf("Pop() = %+v, want node(%d)", got, i)
		}
	}
}
