package wire

// MaxDepth is the deepest sub-message Walk will decode. GTFS-Realtime needs
// five levels for the messages this module reads.
const MaxDepth = 16

// MaxFieldNumber is the largest valid protobuf field number. Tags naming a
// larger field are skipped as unknown.
const MaxFieldNumber = 1<<29 - 1

// Visitor receives the fields of one message from Walk.
type Visitor interface {
	// Expect returns the wire type field num is decoded with, or false for
	// fields the visitor does not read.
	Expect(num uint32) (Type, bool)
	// Varint is called for known varint fields.
	Varint(num uint32, v uint64)
	// Bytes is called for known length-delimited fields with a reader over
	// the payload. The visitor may walk it as a sub-message or read it as a
	// string; whatever it leaves unread is discarded.
	Bytes(num uint32, r *Reader)
}

// Walk dispatches every field of the message in r to v until the buffer ends.
//
// Fields v does not know, and known fields arriving with another wire type,
// are skipped according to the wire type actually on the wire. Walk stops
// early on a truncated value, an unrecognized wire type or excessive nesting;
// the problem is recorded in the reader's report and returned. Fields already
// handed to v stay with v, so callers keep partial results.
func Walk(r *Reader, v Visitor) error {
	if r.depth > MaxDepth {
		return r.fail(&Error{Kind: TruncatedField, Offset: r.pos, Err: ErrDepthExceeded})
	}
	for !r.Done() {
		tagOffset := r.pos
		tag, err := r.ReadVarint()
		if err != nil {
			return r.fail(err)
		}
		typ := Type(tag & 0x7)
		var (
			num   uint32
			want  Type
			known bool
		)
		if field := tag >> 3; field <= MaxFieldNumber {
			num = uint32(field)
			want, known = v.Expect(num)
		}
		if known && want == typ {
			switch typ {
			case Varint:
				x, err := r.ReadVarint()
				if err != nil {
					return r.fail(withField(err, num, typ))
				}
				v.Varint(num, x)
				continue
			case Bytes:
				sub, err := r.Sub()
				if err != nil {
					return r.fail(withField(err, num, typ))
				}
				v.Bytes(num, sub)
				continue
			}
			// Visitors only ever expect varint or bytes; anything else falls
			// through to the generic skip below.
		} else if known {
			r.report.Add(&Error{
				Kind:   UnexpectedWireType,
				Field:  num,
				Type:   typ,
				Offset: tagOffset,
				Depth:  r.depth,
				Err:    ErrUnexpectedWireType,
			})
		}

		if err := r.Skip(typ); err != nil {
			return r.fail(withField(err, num, typ))
		}
	}
	return nil
}

func (r *Reader) fail(err error) error {
	if e, ok := err.(*Error); ok {
		e.Depth = r.depth
		r.report.Add(e)
	}
	return err
}

func withField(err error, num uint32, typ Type) error {
	if e, ok := err.(*Error); ok {
		e.Field = num
		e.Type = typ
	}
	return err
}
