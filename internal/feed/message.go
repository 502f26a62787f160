package feed

import "github.com/transitboard/transitboard/internal/wire"

// FeedMessage and FeedHeader field numbers.
const (
	fieldMessageHeader = 1
	fieldMessageEntity = 2

	fieldHeaderVersion   = 1
	fieldHeaderTimestamp = 3

	fieldEntityID = 1
)

// messageVisitor walks the top-level FeedMessage and hands each FeedEntity
// payload to entity. Entities are decoded and released one at a time.
type messageVisitor struct {
	header *Header
	stats  *Stats
	entity func(r *wire.Reader)
}

func (v *messageVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldMessageHeader, fieldMessageEntity:
		return wire.Bytes, true
	}
	return 0, false
}

func (v *messageVisitor) Varint(uint32, uint64) {}

func (v *messageVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldMessageHeader:
		_ = wire.Walk(r, (*headerVisitor)(v.header))
	case fieldMessageEntity:
		v.stats.Entities++
		v.entity(r)
	}
}

type headerVisitor Header

func (h *headerVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldHeaderVersion:
		return wire.Bytes, true
	case fieldHeaderTimestamp:
		return wire.Varint, true
	}
	return 0, false
}

func (h *headerVisitor) Varint(num uint32, v uint64) {
	if num == fieldHeaderTimestamp {
		h.Timestamp = v
	}
}

func (h *headerVisitor) Bytes(num uint32, r *wire.Reader) {
	if num == fieldHeaderVersion {
		h.Version = r.String()
	}
}

// walkMessage decodes buf as a FeedMessage. It reports whether the top-level
// walk stopped early.
func walkMessage(buf []byte, rep *wire.Report, header *Header, stats *Stats, entity func(r *wire.Reader)) bool {
	v := &messageVisitor{header: header, stats: stats, entity: entity}
	return wire.Walk(wire.NewReader(buf, rep), v) != nil
}
