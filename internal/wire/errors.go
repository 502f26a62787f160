package wire

import (
	"errors"
	"fmt"
)

// Kind classifies decode problems. None of them are fatal to a whole feed:
// each one ends or skips a single field or sub-message.
type Kind uint8

const (
	// TruncatedField is a varint or length-delimited value running past the
	// end of its buffer. It also covers nesting deeper than MaxDepth.
	TruncatedField Kind = iota
	// UnexpectedWireType is a known field number carrying a different wire
	// type than its schema declares. The field is skipped.
	UnexpectedWireType
	// UnrecognizedWireType is a wire type outside {0, 1, 2, 5}. The enclosing
	// sub-message stops decoding.
	UnrecognizedWireType

	kindCount
)

func (k Kind) String() string {
	switch k {
	case TruncatedField:
		return "truncated_field"
	case UnexpectedWireType:
		return "unexpected_wire_type"
	case UnrecognizedWireType:
		return "unrecognized_wire_type"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Kinds lists every Kind in declaration order.
func Kinds() []Kind {
	return []Kind{TruncatedField, UnexpectedWireType, UnrecognizedWireType}
}

var (
	ErrTruncated            = errors.New("buffer ends before value")
	ErrVarintOverflow       = errors.New("varint longer than 10 bytes")
	ErrDepthExceeded        = errors.New("message nesting too deep")
	ErrUnrecognizedWireType = errors.New("unrecognized wire type")
	ErrUnexpectedWireType   = errors.New("unexpected wire type for field")
)

// Error describes one decode problem. Offset is relative to the buffer of the
// sub-message in which it occurred.
type Error struct {
	Kind   Kind
	Field  uint32
	Type   Type
	Offset int
	Depth  int
	Err    error
}

func (e *Error) Error() string {
	if e.Field != 0 {
		return fmt.Sprintf("wire: %s: field %d (%s) at offset %d depth %d: %v",
			e.Kind, e.Field, e.Type, e.Offset, e.Depth, e.Err)
	}
	return fmt.Sprintf("wire: %s at offset %d depth %d: %v", e.Kind, e.Offset, e.Depth, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// maxReportedErrors bounds the number of errors a Report keeps so that a
// hostile feed cannot grow it without limit. Counts are always exact.
const maxReportedErrors = 16

// Report accumulates decode problems for one decode call.
type Report struct {
	counts [kindCount]int
	errs   []*Error
}

// Add records e. A nil Report ignores everything.
func (rep *Report) Add(e *Error) {
	if rep == nil || e == nil {
		return
	}
	if e.Kind < kindCount {
		rep.counts[e.Kind]++
	}
	if len(rep.errs) < maxReportedErrors {
		rep.errs = append(rep.errs, e)
	}
}

// Count returns how many problems of kind k were recorded.
func (rep *Report) Count(k Kind) int {
	if rep == nil || k >= kindCount {
		return 0
	}
	return rep.counts[k]
}

// Total returns the number of recorded problems of every kind.
func (rep *Report) Total() int {
	if rep == nil {
		return 0
	}
	n := 0
	for _, c := range rep.counts {
		n += c
	}
	return n
}

// Errors returns the first recorded problems, oldest first.
func (rep *Report) Errors() []*Error {
	if rep == nil {
		return nil
	}
	return rep.errs
}

// Err joins the recorded problems into one error, or returns nil.
func (rep *Report) Err() error {
	if rep.Total() == 0 {
		return nil
	}
	errs := make([]error, 0, len(rep.errs))
	for _, e := range rep.errs {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
