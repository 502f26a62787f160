// Package feed decodes GTFS-Realtime trip-update and alert feeds into plain Go
// records using the primitives in package wire.
//
// Only the fields the arrival board needs are extracted. Everything else is
// skipped by wire type, and malformed sub-messages end early with whatever
// fields were already read, so a corrupt feed degrades to fewer records
// instead of an error.
package feed

import "github.com/transitboard/transitboard/internal/wire"

// Header holds the FeedHeader fields the board reports on.
type Header struct {
	Version   string
	Timestamp uint64
}

type TripDescriptor struct {
	TripID  string
	RouteID string
}

// StopTimeUpdate is one stop of a trip. Times are Unix seconds, 0 when absent.
type StopTimeUpdate struct {
	StopSequence  uint32
	StopID        string
	ArrivalTime   int64
	DepartureTime int64
}

// Time returns the predicted arrival, falling back to the departure when the
// feed carries no arrival time for the stop.
func (u StopTimeUpdate) Time() int64 {
	if u.ArrivalTime != 0 {
		return u.ArrivalTime
	}
	return u.DepartureTime
}

type TripUpdate struct {
	EntityID        string
	Trip            TripDescriptor
	StopTimeUpdates []StopTimeUpdate
}

// Alert is a service alert reduced to its resolved text and the routes it
// names. InformedRoutes keeps feed order and duplicates.
type Alert struct {
	EntityID        string   `json:"id"`
	HeaderText      string   `json:"header"`
	DescriptionText string   `json:"description"`
	InformedRoutes  []string `json:"routes,omitempty"`
}

// Stats summarises one decode call.
type Stats struct {
	// Entities counts FeedEntity messages seen, kept or not.
	Entities int
	// Dropped counts entities that carried no payload of the decoded kind.
	Dropped int
}

// TripUpdateFeed is the result of decoding a trip-updates buffer.
type TripUpdateFeed struct {
	Header      Header
	TripUpdates []TripUpdate
	Stats       Stats
	Report      wire.Report
	// Aborted is set when the top-level FeedMessage stopped decoding before
	// the end of the buffer.
	Aborted bool
}

// Failed reports whether the buffer should be treated as a failed decode: no
// usable entity came out of it and the top-level message was cut short. A
// well-formed feed with no trip updates is not a failure.
func (f *TripUpdateFeed) Failed() bool {
	return len(f.TripUpdates) == 0 && f.Aborted
}

// AlertFeed is the result of decoding an alerts buffer.
type AlertFeed struct {
	Header  Header
	Alerts  []Alert
	Stats   Stats
	Report  wire.Report
	Aborted bool
}

// Failed has the same meaning as TripUpdateFeed.Failed.
func (f *AlertFeed) Failed() bool {
	return len(f.Alerts) == 0 && f.Aborted
}
