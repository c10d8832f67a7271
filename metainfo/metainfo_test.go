package metainfo

import (
	"dhtcrawl/bencode"
	"testing"
)

func TestSingleFileFields(t *testing.T) {
	d := NewDict(bencode.Dict(map[string]bencode.Value{
		"name":         bencode.Str("hello.txt"),
		"length":       bencode.Int(1024),
		"piece length": bencode.Int(16384),
	}))

	name, ok := d.Name()
	if !ok || name != "hello.txt" {
		t.Errorf("Name() = %q, %v, want %q, true", name, ok, "hello.txt")
	}
	length, ok := d.Length()
	if !ok || length != 1024 {
		t.Errorf("Length() = %d, %v, want 1024, true", length, ok)
	}
	pl, ok := d.PieceLength()
	if !ok || pl != 16384 {
		t.Errorf("PieceLength() = %d, %v, want 16384, true", pl, ok)
	}
	if _, ok := d.Files(); ok {
		t.Error("Files() ok = true for single-file torrent, want false")
	}
	total, ok := d.TotalSize()
	if !ok || total != 1024 {
		t.Errorf("TotalSize() = %d, %v, want 1024, true", total, ok)
	}
}

func TestMultiFileFields(t *testing.T) {
	d := NewDict(bencode.Dict(map[string]bencode.Value{
		"name": bencode.Str("pack"),
		"files": bencode.List([]bencode.Value{
			bencode.Dict(map[string]bencode.Value{
				"length": bencode.Int(100),
				"path":   bencode.List([]bencode.Value{bencode.Str("a.txt")}),
			}),
			bencode.Dict(map[string]bencode.Value{
				"length": bencode.Int(200),
				"path":   bencode.List([]bencode.Value{bencode.Str("sub"), bencode.Str("b.txt")}),
			}),
		}),
	}))

	files, ok := d.Files()
	if !ok || len(files) != 2 {
		t.Fatalf("Files() = %v, %v, want 2 entries", files, ok)
	}
	if files[0].Length != 100 || string(files[0].Path[0]) != "a.txt" {
		t.Errorf("files[0] = %+v", files[0])
	}
	if files[1].Length != 200 || len(files[1].Path) != 2 || string(files[1].Path[1]) != "b.txt" {
		t.Errorf("files[1] = %+v", files[1])
	}

	total, ok := d.TotalSize()
	if !ok || total != 300 {
		t.Errorf("TotalSize() = %d, %v, want 300, true", total, ok)
	}
}

func TestPrivateFlag(t *testing.T) {
	d := NewDict(bencode.Dict(map[string]bencode.Value{
		"private": bencode.Int(1),
	}))
	if !d.Private() {
		t.Error("Private() = false, want true")
	}

	d2 := NewDict(bencode.Dict(map[string]bencode.Value{}))
	if d2.Private() {
		t.Error("Private() = true for absent field, want false")
	}
}

func TestNameDecodesValidUTF8Directly(t *testing.T) {
	d := NewDict(bencode.Dict(map[string]bencode.Value{
		"name": bencode.Str("你好.txt"),
	}))
	name, ok := d.Name()
	if !ok || name != "你好.txt" {
		t.Errorf("Name() = %q, %v, want valid utf-8 name", name, ok)
	}
}

func TestNameFallsBackForInvalidUTF8(t *testing.T) {
	// Arbitrary non-UTF-8 byte sequence; decodeName must not panic and
	// must return *some* string rather than erroring.
	raw := []byte{0xc4, 0xe3, 0xba, 0xc3}
	d := NewDict(bencode.Dict(map[string]bencode.Value{
		"name": bencode.Bytes(raw),
	}))
	name, ok := d.Name()
	if !ok {
		t.Fatal("Name() ok = false, want true")
	}
	if name == "" {
		t.Error("Name() = empty string for non-empty raw bytes")
	}
}

func TestMissingNameNotOK(t *testing.T) {
	d := NewDict(bencode.Dict(map[string]bencode.Value{}))
	if _, ok := d.Name(); ok {
		t.Error("Name() ok = true for absent field, want false")
	}
}
