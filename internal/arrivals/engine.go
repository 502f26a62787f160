// Package arrivals turns decoded trip updates into the per-direction arrival
// queues shown for one route at one stop.
package arrivals

import (
	"slices"
	"time"

	"github.com/transitboard/transitboard/internal/feed"
)

type Direction uint8

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// MarshalText lets Direction appear as a string in JSON bodies and snapshots.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	dir, ok := ParseDirection(string(b))
	if !ok {
		return &DirectionError{Value: string(b)}
	}
	*d = dir
	return nil
}

// ParseDirection accepts the names produced by String.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "inbound":
		return Inbound, true
	case "outbound":
		return Outbound, true
	}
	return 0, false
}

type DirectionError struct {
	Value string
}

func (e *DirectionError) Error() string {
	return "invalid direction " + e.Value
}

// Record is one upcoming train at the target stop.
type Record struct {
	TripID     string    `json:"tripId,omitempty"`
	Route      string    `json:"route"`
	Direction  Direction `json:"direction"`
	Minutes    int       `json:"minutes"`
	LineNumber int       `json:"line"`
}

// Queues holds the arrivals for one target, each sorted by Minutes. Queues
// are never modified once returned by Derive.
type Queues struct {
	Inbound  []Record `json:"inbound"`
	Outbound []Record `json:"outbound"`
}

// Limit returns the first n records of each direction. A non-positive n
// returns q unchanged.
func (q Queues) Limit(n int) Queues {
	if n <= 0 {
		return q
	}
	return Queues{
		Inbound:  q.Inbound[:min(n, len(q.Inbound))],
		Outbound: q.Outbound[:min(n, len(q.Outbound))],
	}
}

// Len returns the number of records in both directions.
func (q Queues) Len() int {
	return len(q.Inbound) + len(q.Outbound)
}

// Target selects the route and stop to derive arrivals for. Line is copied
// into every record; zero means line 1.
type Target struct {
	Route string
	Stop  string
	Line  int
}

// Config holds the display window and the direction threshold.
type Config struct {
	// PastGraceMinutes keeps trains that left up to this many minutes ago,
	// shown as arriving now.
	PastGraceMinutes int
	// HorizonMinutes is the furthest arrival still shown, inclusive.
	HorizonMinutes int
	// InboundAfterSequence classifies stop sequences above it as inbound.
	InboundAfterSequence uint32
}

func DefaultConfig() Config {
	return Config{
		PastGraceMinutes:     5,
		HorizonMinutes:       120,
		InboundAfterSequence: 15,
	}
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Derive builds the queues for target from trips as seen at ref.
//
// For each trip on target.Route the first stop time update at target.Stop is
// used. Trips without one, or without a predicted time there, are skipped.
func (e *Engine) Derive(trips []feed.TripUpdate, target Target, ref time.Time) Queues {
	line := target.Line
	if line == 0 {
		line = 1
	}
	refUnix := ref.Unix()

	var q Queues
	for i := range trips {
		trip := &trips[i]
		if trip.Trip.RouteID != target.Route {
			continue
		}
		stu, ok := stopUpdate(trip.StopTimeUpdates, target.Stop)
		if !ok {
			continue
		}
		t := stu.Time()
		if t == 0 {
			continue
		}
		minutes, ok := e.window(t - refUnix)
		if !ok {
			continue
		}

		rec := Record{
			TripID:     trip.Trip.TripID,
			Route:      target.Route,
			Direction:  e.direction(stu.StopSequence),
			Minutes:    minutes,
			LineNumber: line,
		}
		if rec.Direction == Inbound {
			q.Inbound = append(q.Inbound, rec)
		} else {
			q.Outbound = append(q.Outbound, rec)
		}
	}

	byMinutes := func(a, b Record) int { return a.Minutes - b.Minutes }
	slices.SortStableFunc(q.Inbound, byMinutes)
	slices.SortStableFunc(q.Outbound, byMinutes)
	return q
}

// window converts a delta in seconds to whole minutes, rounding toward
// negative infinity, and applies the display window.
func (e *Engine) window(deltaSeconds int64) (int, bool) {
	minutes := deltaSeconds / 60
	if deltaSeconds%60 != 0 && deltaSeconds < 0 {
		minutes--
	}
	if minutes < -int64(e.cfg.PastGraceMinutes) {
		return 0, false
	}
	if minutes < 0 {
		minutes = 0
	}
	if minutes > int64(e.cfg.HorizonMinutes) {
		return 0, false
	}
	return int(minutes), true
}

func (e *Engine) direction(seq uint32) Direction {
	if seq > e.cfg.InboundAfterSequence {
		return Inbound
	}
	return Outbound
}

func stopUpdate(updates []feed.StopTimeUpdate, stop string) (feed.StopTimeUpdate, bool) {
	for _, u := range updates {
		if u.StopID == stop {
			return u, true
		}
	}
	return feed.StopTimeUpdate{}, false
}
