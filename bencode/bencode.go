// Package bencode implements BitTorrent's bencoding: a total decoder for
// integers, byte strings, lists, and dictionaries, plus a canonical encoder.
//
// This is a hand-written decoder rather than a struct-tag based marshaler:
// the spec this crawler implements requires exact failure semantics
// (leading zeros, negative zero, length overruns, trailing bytes) and a
// "safe" variant that returns how many bytes were consumed, so a dict
// embedded in a larger frame (a BEP-9 piece response following its header)
// can be located without bdecoding the whole buffer. No off-the-shelf
// bencode library in the surrounding package pack exposes that combination,
// so the algorithm below is grounded directly on the reference Python
// implementation's decode_int/decode_string/decode_list/decode_dict.
package bencode

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrMalformed is returned for any structurally invalid bencoded input.
	ErrMalformed = errors.New("bencode: malformed input")
	// ErrTrailingData is returned when bytes remain after a complete
	// top-level value has been decoded.
	ErrTrailingData = errors.New("bencode: trailing data after value")
)

// Kind identifies the dynamic type carried by a Value.
type Kind int

const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// Value is a tagged bencode value: Int | Bytes | List[Value] | Dict[string]Value.
// Dict keys are always raw byte strings; they are exposed as Go strings for
// convenient map indexing, but no assumption of a text encoding is made
// anywhere in this package -- decoding a Bytes value as display text is the
// caller's job (see package metainfo).
type Value struct {
	kind Kind
	i    int64
	b    []byte
	l    []Value
	d    map[string]Value
	// dkeys preserves dictionary key order as decoded, for round-tripping
	// through diagnostics; encoding always re-sorts by raw byte order
	// regardless of dkeys.
	dkeys []string
}

func Int(v int64) Value    { return Value{kind: KindInt, i: v} }
func Bytes(v []byte) Value { return Value{kind: KindBytes, b: v} }
func Str(v string) Value   { return Value{kind: KindBytes, b: []byte(v)} }
func List(v []Value) Value { return Value{kind: KindList, l: v} }

func Dict(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Value{kind: KindDict, d: m, dkeys: keys}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.b, true
}

func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.l, true
}

func (v Value) Dict() (map[string]Value, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.d, true
}

// Get returns the value stored under key in a dict Value, and whether it
// was present. Returns false if v is not a dict.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindDict {
		return Value{}, false
	}
	val, ok := v.d[key]
	return val, ok
}

// Decode parses exactly one bencoded value from data and requires the
// entire buffer to be consumed.
func Decode(data []byte) (Value, error) {
	v, n, err := decodeValue(data, 0)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, ErrTrailingData
	}
	return v, nil
}

// DecodePrefix decodes exactly one bencoded value starting at the beginning
// of data and returns it along with the number of bytes consumed. Unlike
// Decode, trailing bytes after the value are permitted -- this is the
// "safe" variant used to pull a dict out of a larger frame.
func DecodePrefix(data []byte) (Value, int, error) {
	return decodeValue(data, 0)
}

func decodeValue(x []byte, f int) (Value, int, error) {
	if f >= len(x) {
		return Value{}, 0, ErrMalformed
	}
	switch {
	case x[f] == 'i':
		return decodeInt(x, f)
	case x[f] >= '0' && x[f] <= '9':
		return decodeString(x, f)
	case x[f] == 'l':
		return decodeList(x, f)
	case x[f] == 'd':
		return decodeDict(x, f)
	default:
		return Value{}, 0, fmt.Errorf("%w: unknown type tag %q at offset %d", ErrMalformed, x[f], f)
	}
}

func decodeInt(x []byte, f int) (Value, int, error) {
	f++ // skip 'i'
	e := indexByte(x, 'e', f)
	if e < 0 {
		return Value{}, 0, fmt.Errorf("%w: unterminated integer", ErrMalformed)
	}
	if e == f {
		return Value{}, 0, fmt.Errorf("%w: empty integer", ErrMalformed)
	}
	digits := x[f:e]
	if digits[0] == '-' {
		if len(digits) < 2 {
			return Value{}, 0, fmt.Errorf("%w: bare minus sign", ErrMalformed)
		}
		if digits[1] == '0' {
			return Value{}, 0, fmt.Errorf("%w: negative zero", ErrMalformed)
		}
	} else if digits[0] == '0' && len(digits) != 1 {
		return Value{}, 0, fmt.Errorf("%w: leading zero in integer", ErrMalformed)
	}
	n, err := parseInt(digits)
	if err != nil {
		return Value{}, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Int(n), e + 1, nil
}

func decodeString(x []byte, f int) (Value, int, error) {
	colon := indexByte(x, ':', f)
	if colon < 0 {
		return Value{}, 0, fmt.Errorf("%w: unterminated string length", ErrMalformed)
	}
	lenDigits := x[f:colon]
	if lenDigits[0] == '0' && len(lenDigits) != 1 {
		return Value{}, 0, fmt.Errorf("%w: leading zero in string length", ErrMalformed)
	}
	n, err := parseInt(lenDigits)
	if err != nil || n < 0 {
		return Value{}, 0, fmt.Errorf("%w: invalid string length", ErrMalformed)
	}
	start := colon + 1
	end := start + int(n)
	if end > len(x) || end < start {
		return Value{}, 0, fmt.Errorf("%w: string length overruns buffer", ErrMalformed)
	}
	return Bytes(x[start:end]), end, nil
}

func decodeList(x []byte, f int) (Value, int, error) {
	f++ // skip 'l'
	items := make([]Value, 0, 4)
	for {
		if f >= len(x) {
			return Value{}, 0, fmt.Errorf("%w: unterminated list", ErrMalformed)
		}
		if x[f] == 'e' {
			return List(items), f + 1, nil
		}
		v, next, err := decodeValue(x, f)
		if err != nil {
			return Value{}, 0, err
		}
		items = append(items, v)
		f = next
	}
}

func decodeDict(x []byte, f int) (Value, int, error) {
	f++ // skip 'd'
	m := make(map[string]Value)
	keys := make([]string, 0, 4)
	for {
		if f >= len(x) {
			return Value{}, 0, fmt.Errorf("%w: unterminated dict", ErrMalformed)
		}
		if x[f] == 'e' {
			return Value{kind: KindDict, d: m, dkeys: keys}, f + 1, nil
		}
		if !(x[f] >= '0' && x[f] <= '9') {
			return Value{}, 0, fmt.Errorf("%w: dict key must be a string", ErrMalformed)
		}
		keyVal, next, err := decodeString(x, f)
		if err != nil {
			return Value{}, 0, err
		}
		key := string(keyVal.b)
		val, next2, err := decodeValue(x, next)
		if err != nil {
			return Value{}, 0, err
		}
		m[key] = val
		keys = append(keys, key)
		f = next2
	}
}

func indexByte(x []byte, c byte, from int) int {
	for i := from; i < len(x); i++ {
		if x[i] == c {
			return i
		}
	}
	return -1
}

func parseInt(digits []byte) (int64, error) {
	if len(digits) == 0 {
		return 0, errors.New("empty integer")
	}
	neg := false
	i := 0
	if digits[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(digits) {
		return 0, errors.New("bare sign")
	}
	var n int64
	for ; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit byte %q", c)
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// Encode produces the canonical bencoding of v: dictionary keys are sorted
// by raw byte order, which is required for hash-stable encoding of the
// `info` dict.
func Encode(v Value) []byte {
	buf := make([]byte, 0, 64)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.kind {
	case KindInt:
		buf = append(buf, 'i')
		buf = append(buf, []byte(fmt.Sprintf("%d", v.i))...)
		buf = append(buf, 'e')
	case KindBytes:
		buf = append(buf, []byte(fmt.Sprintf("%d:", len(v.b)))...)
		buf = append(buf, v.b...)
	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.l {
			buf = appendValue(buf, item)
		}
		buf = append(buf, 'e')
	case KindDict:
		buf = append(buf, 'd')
		keys := make([]string, 0, len(v.d))
		for k := range v.d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf = appendValue(buf, Str(k))
			buf = appendValue(buf, v.d[k])
		}
		buf = append(buf, 'e')
	}
	return buf
}
