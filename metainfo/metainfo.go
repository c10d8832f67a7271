// Package metainfo provides typed access to a decoded torrent info dict,
// once the metadata fetcher has assembled and verified one.
//
// Grounded on gvsurenderreddy-rakoshare/metainfo.go's InfoDict/FileDict
// field set, but built on top of package bencode's tagged Value variant
// instead of struct-tag unmarshaling: a torrent's name and path entries are
// not reliably UTF-8 (BitTorrent has no mandated text encoding), so they
// must stay raw bytes until a caller asks for display text and explicitly
// opts into a decoding strategy.
package metainfo

import (
	"fmt"
	"unicode/utf8"

	"dhtcrawl/bencode"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Dict wraps a bencode dict Value known to be (or to claim to be) a
// torrent's "info" dictionary.
type Dict struct {
	v bencode.Value
}

// NewDict wraps v as an info dict. It does not validate that v is actually
// well-formed; field accessors return ok=false for missing/mistyped keys.
func NewDict(v bencode.Value) Dict {
	return Dict{v: v}
}

// File describes one entry of a multi-file torrent's "files" list.
type File struct {
	Length int64
	Path   [][]byte
}

// Name returns the torrent's display name, decoded from the raw "name"
// bytes by trying, in order: UTF-8, GBK, Big5, and finally a lossy UTF-8
// fallback that replaces invalid sequences. Many DHT-harvested torrents
// come from clients that used a legacy Chinese codepage for non-ASCII
// names; this chain mirrors that reality instead of assuming UTF-8 and
// mangling the common case.
func (d Dict) Name() (string, bool) {
	raw, ok := d.nameBytes()
	if !ok {
		return "", false
	}
	return decodeName(raw), true
}

func (d Dict) nameBytes() ([]byte, bool) {
	v, ok := d.v.Get("name")
	if !ok {
		return nil, false
	}
	b, ok := v.Bytes()
	return b, ok
}

func decodeName(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if s, err := simplifiedchinese.GBK.NewDecoder().String(string(raw)); err == nil && utf8.ValidString(s) {
		return s
	}
	if s, err := traditionalchinese.Big5.NewDecoder().String(string(raw)); err == nil && utf8.ValidString(s) {
		return s
	}
	return toValidUTF8Lossy(raw)
}

func toValidUTF8Lossy(raw []byte) string {
	out := make([]rune, 0, len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size <= 1 {
			out = append(out, utf8.RuneError)
			raw = raw[1:]
			continue
		}
		out = append(out, r)
		raw = raw[size:]
	}
	return string(out)
}

// Length returns the "length" field of a single-file torrent's info dict.
func (d Dict) Length() (int64, bool) {
	v, ok := d.v.Get("length")
	if !ok {
		return 0, false
	}
	return v.Int()
}

// PieceLength returns the "piece length" field.
func (d Dict) PieceLength() (int64, bool) {
	v, ok := d.v.Get("piece length")
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Private reports whether the torrent's "private" flag is set to 1.
func (d Dict) Private() bool {
	v, ok := d.v.Get("private")
	if !ok {
		return false
	}
	n, ok := v.Int()
	return ok && n == 1
}

// Files returns the "files" list of a multi-file torrent. ok is false for a
// single-file torrent (which has no "files" key) or a malformed dict.
func (d Dict) Files() (files []File, ok bool) {
	v, present := d.v.Get("files")
	if !present {
		return nil, false
	}
	items, isList := v.List()
	if !isList {
		return nil, false
	}
	out := make([]File, 0, len(items))
	for _, item := range items {
		f, ferr := parseFile(item)
		if ferr != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func parseFile(v bencode.Value) (File, error) {
	var f File
	lenVal, ok := v.Get("length")
	if !ok {
		return f, fmt.Errorf("metainfo: file entry missing length")
	}
	length, ok := lenVal.Int()
	if !ok {
		return f, fmt.Errorf("metainfo: file entry length not an int")
	}
	f.Length = length

	pathVal, ok := v.Get("path")
	if !ok {
		return f, fmt.Errorf("metainfo: file entry missing path")
	}
	segments, ok := pathVal.List()
	if !ok {
		return f, fmt.Errorf("metainfo: file entry path not a list")
	}
	for _, seg := range segments {
		b, ok := seg.Bytes()
		if !ok {
			return f, fmt.Errorf("metainfo: file entry path segment not a string")
		}
		f.Path = append(f.Path, b)
	}
	return f, nil
}

// TotalSize returns the sum of all file lengths: the single "length" field
// for a single-file torrent, or the sum of "files[].length" for a
// multi-file one.
func (d Dict) TotalSize() (int64, bool) {
	if n, ok := d.Length(); ok {
		return n, true
	}
	files, ok := d.Files()
	if !ok {
		return 0, false
	}
	var total int64
	for _, f := range files {
		total += f.Length
	}
	return total, true
}
