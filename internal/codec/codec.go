// Package codec implements the shard's little-endian binary encoding
// primitives: fixed-width scalars, raw fixed-length blobs, single-byte
// length-prefixed "short" strings and byte strings, and a length header
// for variable-count lists. pkg/schema, pkg/wire and pkg/applypath build
// every key, value and log-entry encoding on top of this package.
//
// This is deliberately built directly on encoding/binary and a growable
// byte slice rather than a general serialization library (protobuf,
// msgpack, gob): the on-disk key/value and log-entry formats are fixed,
// versioned byte layouts that callers construct field-by-field and must
// be able to reason about a byte at a time — a general encoder would
// hide that layout behind reflection or schema files neither this
// package nor its callers need. See DESIGN.md for the corresponding
// justification entry.
//
// Multi-byte integers are little-endian throughout. Callers that need a
// big-endian sort order for a key — EdgeKey's hash-major ordering, for
// instance — swap the value's bytes themselves before handing it to a
// Put method, keeping this package free of an endianness switch.
package codec

import "encoding/binary"

// MaxShortStringLen is the largest length a PutShortString or
// PutShortBytes payload can have: the length prefix is a single byte.
const MaxShortStringLen = 255

// ErrShortBuffer reports that a Reader ran out of bytes decoding Field:
// it needed Need bytes but only Have remained.
type ErrShortBuffer struct {
	Field string
	Need  int
	Have  int
}

func (e *ErrShortBuffer) Error() string {
	return "codec: short buffer decoding " + e.Field
}

// ErrTooLong reports that a PutShortString or PutShortBytes payload
// exceeded MaxShortStringLen.
type ErrTooLong struct {
	Field string
	Len   int
}

func (e *ErrTooLong) Error() string {
	return "codec: " + e.Field + " exceeds max short length"
}

// Writer accumulates an encoded byte sequence.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with its internal buffer pre-sized to
// sizeHint bytes, to avoid reallocation for the common case where the
// caller knows the encoded size up front.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated buffer. The caller must not write to
// the Writer again after taking a reference to the returned slice.
func (w *Writer) Bytes() []byte { return w.buf }

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

// PutUint16 appends v as a little-endian uint16.
func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint32 appends v as a little-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint64 appends v as a little-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutInt64 appends v as a little-endian int64.
func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutFixed appends b verbatim, with no length prefix: the reader must
// know the length from context (a fixed field size or a preceding
// PutListHeader).
func (w *Writer) PutFixed(b []byte) { w.buf = append(w.buf, b...) }

// PutListHeader appends a 4-byte little-endian count for a
// variable-length list or blob that follows. It errors if n is
// negative, which never happens for a valid caller-supplied length.
func (w *Writer) PutListHeader(n int) error {
	if n < 0 {
		return &ErrTooLong{Field: "list header", Len: n}
	}
	w.PutUint32(uint32(n))
	return nil
}

// PutShortBytes appends a single-byte length prefix followed by b. It
// errors, without writing anything, if len(b) exceeds
// MaxShortStringLen.
func (w *Writer) PutShortBytes(b []byte) error {
	if len(b) > MaxShortStringLen {
		return &ErrTooLong{Field: "short bytes", Len: len(b)}
	}
	w.PutUint8(uint8(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// PutShortString appends a single-byte length prefix followed by the
// UTF-8 bytes of s. It errors, without writing anything, if s exceeds
// MaxShortStringLen bytes.
func (w *Writer) PutShortString(s string) error {
	return w.PutShortBytes([]byte(s))
}

// Reader consumes an encoded byte sequence produced by a Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps raw for sequential decoding. raw is not copied: the
// caller must not mutate it while the Reader is in use.
func NewReader(raw []byte) *Reader {
	return &Reader{buf: raw}
}

func (r *Reader) take(field string, n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, &ErrShortBuffer{Field: field, Need: n, Have: len(r.buf) - r.pos}
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// GetUint8 decodes a single byte.
func (r *Reader) GetUint8() (uint8, error) {
	b, err := r.take("uint8", 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetUint16 decodes a little-endian uint16.
func (r *Reader) GetUint16() (uint16, error) {
	b, err := r.take("uint16", 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// GetUint32 decodes a little-endian uint32.
func (r *Reader) GetUint32() (uint32, error) {
	b, err := r.take("uint32", 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// GetUint64 decodes a little-endian uint64.
func (r *Reader) GetUint64() (uint64, error) {
	b, err := r.take("uint64", 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// GetInt64 decodes a little-endian int64.
func (r *Reader) GetInt64() (int64, error) {
	v, err := r.GetUint64()
	return int64(v), err
}

// GetFixed decodes n raw bytes with no length prefix, mirroring
// PutFixed. The returned slice aliases the Reader's backing array; the
// caller must copy it before the Reader (or its source buffer) is
// reused.
func (r *Reader) GetFixed(n int) ([]byte, error) {
	return r.take("fixed", n)
}

// GetListHeader decodes a 4-byte little-endian count written by
// PutListHeader.
func (r *Reader) GetListHeader() (int, error) {
	n, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// GetShortBytes decodes a single-byte length prefix followed by that
// many bytes, mirroring PutShortBytes. The returned slice aliases the
// Reader's backing array.
func (r *Reader) GetShortBytes() ([]byte, error) {
	n, err := r.GetUint8()
	if err != nil {
		return nil, err
	}
	return r.take("short bytes", int(n))
}

// GetShortString decodes a single-byte length prefix followed by that
// many bytes of UTF-8, mirroring PutShortString.
func (r *Reader) GetShortString() (string, error) {
	b, err := r.GetShortBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
