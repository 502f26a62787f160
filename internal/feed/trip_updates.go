package feed

import "github.com/transitboard/transitboard/internal/wire"

const (
	fieldEntityTripUpdate = 3

	fieldTripUpdateTrip           = 1
	fieldTripUpdateStopTimeUpdate = 2

	fieldTripID  = 1
	fieldRouteID = 5

	fieldStopSequence = 1
	fieldArrival      = 2
	fieldDeparture    = 3
	fieldStopID       = 4

	fieldEventTime = 2
)

// DecodeTripUpdates extracts every trip update from a FeedMessage buffer, in
// feed order. Entities without a trip_update are dropped. It never fails;
// problems are recorded in the returned feed's Report.
func DecodeTripUpdates(buf []byte) *TripUpdateFeed {
	f := &TripUpdateFeed{}
	f.Aborted = walkMessage(buf, &f.Report, &f.Header, &f.Stats, func(r *wire.Reader) {
		e := tripEntityVisitor{}
		_ = wire.Walk(r, &e)
		if e.update == nil {
			f.Stats.Dropped++
			return
		}
		e.update.EntityID = e.id
		f.TripUpdates = append(f.TripUpdates, *e.update)
	})
	return f
}

type tripEntityVisitor struct {
	id     string
	update *TripUpdate
}

func (e *tripEntityVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldEntityID, fieldEntityTripUpdate:
		return wire.Bytes, true
	}
	return 0, false
}

func (e *tripEntityVisitor) Varint(uint32, uint64) {}

func (e *tripEntityVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldEntityID:
		e.id = r.String()
	case fieldEntityTripUpdate:
		// A repeated trip_update replaces the earlier one, as a protobuf
		// decoder would for a singular field.
		e.update = &TripUpdate{}
		_ = wire.Walk(r, (*tripUpdateVisitor)(e.update))
	}
}

type tripUpdateVisitor TripUpdate

func (t *tripUpdateVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldTripUpdateTrip, fieldTripUpdateStopTimeUpdate:
		return wire.Bytes, true
	}
	return 0, false
}

func (t *tripUpdateVisitor) Varint(uint32, uint64) {}

func (t *tripUpdateVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldTripUpdateTrip:
		t.Trip = TripDescriptor{}
		_ = wire.Walk(r, (*tripDescriptorVisitor)(&t.Trip))
	case fieldTripUpdateStopTimeUpdate:
		var u StopTimeUpdate
		_ = wire.Walk(r, (*stopTimeUpdateVisitor)(&u))
		t.StopTimeUpdates = append(t.StopTimeUpdates, u)
	}
}

type tripDescriptorVisitor TripDescriptor

func (d *tripDescriptorVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldTripID, fieldRouteID:
		return wire.Bytes, true
	}
	return 0, false
}

func (d *tripDescriptorVisitor) Varint(uint32, uint64) {}

func (d *tripDescriptorVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldTripID:
		d.TripID = r.String()
	case fieldRouteID:
		d.RouteID = r.String()
	}
}

type stopTimeUpdateVisitor StopTimeUpdate

func (u *stopTimeUpdateVisitor) Expect(num uint32) (wire.Type, bool) {
	switch num {
	case fieldStopSequence:
		return wire.Varint, true
	case fieldArrival, fieldDeparture, fieldStopID:
		return wire.Bytes, true
	}
	return 0, false
}

func (u *stopTimeUpdateVisitor) Varint(num uint32, v uint64) {
	if num == fieldStopSequence {
		u.StopSequence = uint32(v)
	}
}

func (u *stopTimeUpdateVisitor) Bytes(num uint32, r *wire.Reader) {
	switch num {
	case fieldArrival:
		u.ArrivalTime = eventTime(r)
	case fieldDeparture:
		u.DepartureTime = eventTime(r)
	case fieldStopID:
		u.StopID = r.String()
	}
}

// eventTime reads the time field of a StopTimeEvent. The value is an int64
// on the wire, so negative times arrive as two's complement.
func eventTime(r *wire.Reader) int64 {
	var ev stopTimeEventVisitor
	_ = wire.Walk(r, &ev)
	return int64(ev)
}

type stopTimeEventVisitor int64

func (ev *stopTimeEventVisitor) Expect(num uint32) (wire.Type, bool) {
	if num == fieldEventTime {
		return wire.Varint, true
	}
	return 0, false
}

func (ev *stopTimeEventVisitor) Varint(num uint32, v uint64) {
	*ev = stopTimeEventVisitor(int64(v))
}

func (ev *stopTimeEventVisitor) Bytes(uint32, *wire.Reader) {}
