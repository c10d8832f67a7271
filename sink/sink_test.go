package sink

import (
	"net"
	"testing"

	"dhtcrawl/bencode"
	"dhtcrawl/identity"
	"dhtcrawl/metainfo"
)

func emptyInfo() metainfo.Dict {
	return metainfo.NewDict(bencode.Dict(map[string]bencode.Value{}))
}

func TestMemorySinkAcceptAndLen(t *testing.T) {
	m := NewMemorySink(3)
	var ih identity.ID
	ih[0] = 1
	if err := m.Accept(ih, emptyInfo(), nil, net.ParseIP("1.2.3.4")); err != nil {
		t.Fatalf("Accept() err = %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMemorySinkOldestFirstOrdering(t *testing.T) {
	m := NewMemorySink(3)
	for i := byte(1); i <= 3; i++ {
		var ih identity.ID
		ih[0] = i
		if err := m.Accept(ih, emptyInfo(), nil, nil); err != nil {
			t.Fatalf("Accept() err = %v", err)
		}
	}
	recs := m.Records()
	if len(recs) != 3 {
		t.Fatalf("Records() len = %d, want 3", len(recs))
	}
	for i, r := range recs {
		if r.InfoHash[0] != byte(i+1) {
			t.Errorf("Records()[%d].InfoHash[0] = %d, want %d", i, r.InfoHash[0], i+1)
		}
	}
}

func TestMemorySinkWrapsAtCapacity(t *testing.T) {
	m := NewMemorySink(2)
	for i := byte(1); i <= 4; i++ {
		var ih identity.ID
		ih[0] = i
		if err := m.Accept(ih, emptyInfo(), nil, nil); err != nil {
			t.Fatalf("Accept() err = %v", err)
		}
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	recs := m.Records()
	if len(recs) != 2 || recs[0].InfoHash[0] != 3 || recs[1].InfoHash[0] != 4 {
		t.Errorf("Records() = %+v, want oldest-first [3, 4]", recs)
	}
}
