// Package wire implements the subset of the protobuf binary encoding needed to
// pull fields out of GTFS-Realtime feeds without a generated schema.
//
// A Reader is a cursor over an immutable byte slice. Length-delimited payloads
// are returned as sub-slices of the original buffer, so walking a message tree
// never copies it.
package wire

import "unicode/utf8"

// Type is the 3-bit wire type carried in every field tag.
type Type uint8

const (
	Varint     Type = 0
	Fixed64    Type = 1
	Bytes      Type = 2
	StartGroup Type = 3
	EndGroup   Type = 4
	Fixed32    Type = 5
)

func (t Type) String() string {
	switch t {
	case Varint:
		return "varint"
	case Fixed64:
		return "fixed64"
	case Bytes:
		return "bytes"
	case StartGroup:
		return "start_group"
	case EndGroup:
		return "end_group"
	case Fixed32:
		return "fixed32"
	default:
		return "unknown"
	}
}

// maxVarintLen is the longest encoding of a 64-bit varint.
const maxVarintLen = 10

// Reader is a cursor over one message buffer. A Reader created by Sub shares
// the Report of its parent and sits one nesting level deeper.
type Reader struct {
	buf    []byte
	pos    int
	depth  int
	report *Report
}

// NewReader returns a top-level reader over buf. Problems found while reading
// are recorded in report, which may be nil.
func NewReader(buf []byte, report *Report) *Reader {
	return &Reader{buf: buf, report: report}
}

// Pos returns the cursor offset within the reader's buffer.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Done reports whether the cursor reached the end of the buffer.
func (r *Reader) Done() bool { return r.pos >= len(r.buf) }

// Depth returns the nesting level of the reader; top-level readers are 0.
func (r *Reader) Depth() int { return r.depth }

// Report returns the report shared by this reader and its parents.
func (r *Reader) Report() *Report { return r.report }

// ReadVarint consumes one base-128 varint. On a buffer that ends mid-varint it
// returns 0 and leaves the cursor at the end of the buffer.
func (r *Reader) ReadVarint() (uint64, error) {
	var v uint64
	start := r.pos
	for i := 0; i < maxVarintLen; i++ {
		if r.pos >= len(r.buf) {
			return 0, r.truncated(start, ErrTruncated)
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, nil
		}
	}
	return 0, r.truncated(start, ErrVarintOverflow)
}

// ReadBytes consumes a length prefix and returns the payload that follows it
// as a sub-slice of the buffer.
func (r *Reader) ReadBytes() ([]byte, error) {
	start := r.pos
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, r.truncated(start, ErrTruncated)
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Sub consumes a length-delimited payload and returns a reader over it, one
// level deeper than r.
func (r *Reader) Sub() (*Reader, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &Reader{buf: b, depth: r.depth + 1, report: r.report}, nil
}

// SkipFixed32 advances past a 32-bit fixed-width value.
func (r *Reader) SkipFixed32() error { return r.skipN(4) }

// SkipFixed64 advances past a 64-bit fixed-width value.
func (r *Reader) SkipFixed64() error { return r.skipN(8) }

// Skip advances past one field payload of type t. Group wire types and values
// outside the defined range are not skippable.
func (r *Reader) Skip(t Type) error {
	switch t {
	case Varint:
		_, err := r.ReadVarint()
		return err
	case Bytes:
		_, err := r.ReadBytes()
		return err
	case Fixed64:
		return r.SkipFixed64()
	case Fixed32:
		return r.SkipFixed32()
	default:
		return &Error{Kind: UnrecognizedWireType, Offset: r.pos, Err: ErrUnrecognizedWireType}
	}
}

// String returns the unread remainder of the buffer as a string and moves the
// cursor to the end. Payloads that are not valid UTF-8 yield "".
func (r *Reader) String() string {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}

func (r *Reader) skipN(n int) error {
	if r.Len() < n {
		start := r.pos
		return r.truncated(start, ErrTruncated)
	}
	r.pos += n
	return nil
}

func (r *Reader) truncated(offset int, cause error) error {
	r.pos = len(r.buf)
	return &Error{Kind: TruncatedField, Offset: offset, Err: cause}
}
