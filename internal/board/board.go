// Package board holds the published state read by the HTTP API: the arrival
// queues of every configured line and station plus the alert state.
//
// A Snapshot is immutable once published. Writers build a new one and swap
// the pointer, so readers never lock and never see a half-updated board.
package board

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transitboard/transitboard/internal/alerts"
	"github.com/transitboard/transitboard/internal/arrivals"
)

// Arrival sources a slot can be fed from.
const (
	SourceGTFSRT = "gtfsrt"
	SourceCTA    = "cta"
)

// Slot is one place on the board: a route at a stop. An empty Source is
// SourceGTFSRT.
type Slot struct {
	Line   int    `json:"line"`
	Name   string `json:"name,omitempty"`
	Route  string `json:"route"`
	Stop   string `json:"stop"`
	Source string `json:"source,omitempty"`
}

// FromCTA reports whether the slot is fed by CTA Train Tracker instead of
// the GTFS-Realtime trip updates.
func (s Slot) FromCTA() bool {
	return s.Source == SourceCTA
}

func (s Slot) Target() arrivals.Target {
	return arrivals.Target{Route: s.Route, Stop: s.Stop, Line: s.Line}
}

// LineBoard is the published arrivals for one slot. Stale is set when the
// latest poll failed and the queues are from an earlier one.
type LineBoard struct {
	Slot
	arrivals.Queues
	Stale     bool      `json:"stale"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Group selects the lines or the stations of a snapshot.
type Group int

const (
	LineGroup Group = iota
	StationGroup
)

func (g Group) String() string {
	if g == StationGroup {
		return "station"
	}
	return "line"
}

// Snapshot is the whole published board. TripsUpdatedAt is the last
// successful arrivals publish from either source; FeedTimestamp is only set
// by GTFS-Realtime.
type Snapshot struct {
	Lines           []LineBoard  `json:"lines"`
	Stations        []LineBoard  `json:"stations"`
	Alerts          alerts.State `json:"alerts"`
	FeedTimestamp   uint64       `json:"feedTimestamp,omitempty"`
	TripsUpdatedAt  time.Time    `json:"tripsUpdatedAt"`
	AlertsUpdatedAt time.Time    `json:"alertsUpdatedAt"`
}

// Group returns the lines or the stations.
func (s *Snapshot) Group(g Group) []LineBoard {
	if g == StationGroup {
		return s.Stations
	}
	return s.Lines
}

// HasAlert reports whether route has an active alert.
func (s *Snapshot) HasAlert(route string) bool {
	return s.Alerts.For(route)
}

var ErrLayoutMismatch = errors.New("board layout does not match")

// Board publishes snapshots. The zero value is not usable; call New.
type Board struct {
	// mu serialises writers only.
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

// New returns a board with empty queues for the given lines and stations.
// Every route starts without an alert.
func New(lines, stations []Slot) *Board {
	s := &Snapshot{
		Lines:    emptyBoards(lines),
		Stations: emptyBoards(stations),
		Alerts:   alerts.Associate(nil, routes(lines, stations)),
	}
	b := &Board{}
	b.cur.Store(s)
	return b
}

func emptyBoards(slots []Slot) []LineBoard {
	out := make([]LineBoard, len(slots))
	for i, slot := range slots {
		out[i] = LineBoard{Slot: slot}
	}
	return out
}

func routes(lines, stations []Slot) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]Slot{lines, stations} {
		for _, s := range group {
			if !seen[s.Route] {
				seen[s.Route] = true
				out = append(out, s.Route)
			}
		}
	}
	return out
}

// Load returns the current snapshot. Callers must not modify it.
func (b *Board) Load() *Snapshot {
	return b.cur.Load()
}

// Routes returns the distinct routes on the board, lines first.
func (b *Board) Routes() []string {
	s := b.Load()
	lines := make([]Slot, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = l.Slot
	}
	stations := make([]Slot, len(s.Stations))
	for i, st := range s.Stations {
		stations[i] = st.Slot
	}
	return routes(lines, stations)
}

// update applies fn to a shallow copy of the current snapshot and publishes
// the copy. fn must replace, not modify, the slices it changes.
func (b *Board) update(fn func(next *Snapshot) error) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := *b.cur.Load()
	if err := fn(&next); err != nil {
		return nil, err
	}
	b.cur.Store(&next)
	return &next, nil
}

// PublishArrivals replaces the queues of every GTFS-Realtime slot. lines and
// stations are matched to the board's slots by position; entries for CTA
// slots are ignored.
func (b *Board) PublishArrivals(lines, stations []arrivals.Queues, feedTimestamp uint64, at time.Time) (*Snapshot, error) {
	return b.update(func(next *Snapshot) error {
		if len(lines) != len(next.Lines) || len(stations) != len(next.Stations) {
			return fmt.Errorf("%w: got %d lines and %d stations, board has %d and %d",
				ErrLayoutMismatch, len(lines), len(stations), len(next.Lines), len(next.Stations))
		}
		next.Lines = withQueues(next.Lines, lines, at)
		next.Stations = withQueues(next.Stations, stations, at)
		next.FeedTimestamp = feedTimestamp
		next.TripsUpdatedAt = at
		return nil
	})
}

func withQueues(prev []LineBoard, queues []arrivals.Queues, at time.Time) []LineBoard {
	out := make([]LineBoard, len(prev))
	for i := range prev {
		if prev[i].FromCTA() {
			out[i] = prev[i]
			continue
		}
		out[i] = LineBoard{Slot: prev[i].Slot, Queues: queues[i], UpdatedAt: at}
	}
	return out
}

// MarkArrivalsFailed keeps the previous queues of every GTFS-Realtime slot
// and flags them stale.
func (b *Board) MarkArrivalsFailed() *Snapshot {
	s, _ := b.update(func(next *Snapshot) error {
		gtfsrt := func(lb LineBoard) bool { return !lb.FromCTA() }
		next.Lines = markedStale(next.Lines, gtfsrt)
		next.Stations = markedStale(next.Stations, gtfsrt)
		return nil
	})
	return s
}

func markedStale(prev []LineBoard, match func(LineBoard) bool) []LineBoard {
	out := make([]LineBoard, len(prev))
	for i, lb := range prev {
		if match == nil || match(lb) {
			lb.Stale = true
		}
		out[i] = lb
	}
	return out
}

// PublishSlot replaces the queues of a single slot.
func (b *Board) PublishSlot(g Group, index int, q arrivals.Queues, at time.Time) (*Snapshot, error) {
	return b.update(func(next *Snapshot) error {
		prev := next.Group(g)
		if index < 0 || index >= len(prev) {
			return fmt.Errorf("%w: no %s at index %d", ErrLayoutMismatch, g, index)
		}
		out := slices.Clone(prev)
		out[index] = LineBoard{Slot: prev[index].Slot, Queues: q, UpdatedAt: at}
		next.setGroup(g, out)
		next.TripsUpdatedAt = at
		return nil
	})
}

// MarkSlotFailed keeps the previous queues of one slot and flags them stale.
func (b *Board) MarkSlotFailed(g Group, index int) *Snapshot {
	s, _ := b.update(func(next *Snapshot) error {
		prev := next.Group(g)
		if index < 0 || index >= len(prev) {
			return nil
		}
		out := slices.Clone(prev)
		out[index].Stale = true
		next.setGroup(g, out)
		return nil
	})
	return s
}

func (s *Snapshot) setGroup(g Group, boards []LineBoard) {
	if g == StationGroup {
		s.Stations = boards
	} else {
		s.Lines = boards
	}
}

// PublishAlerts replaces the alert state.
func (b *Board) PublishAlerts(state alerts.State, at time.Time) *Snapshot {
	s, _ := b.update(func(next *Snapshot) error {
		next.Alerts = state
		next.AlertsUpdatedAt = at
		return nil
	})
	return s
}

// Restore publishes a snapshot saved by an earlier run. Its queues are
// marked stale until the first poll replaces them. A snapshot taken with a
// different set of lines or stations is rejected.
func (b *Board) Restore(saved *Snapshot) error {
	_, err := b.update(func(next *Snapshot) error {
		if !sameSlots(next.Lines, saved.Lines) || !sameSlots(next.Stations, saved.Stations) {
			return ErrLayoutMismatch
		}
		restored := *saved
		restored.Lines = markedStale(saved.Lines, nil)
		restored.Stations = markedStale(saved.Stations, nil)
		restored.Alerts = alerts.State{Active: saved.Alerts.Active, HasAlert: make(map[string]bool, len(next.Alerts.HasAlert))}
		for route := range next.Alerts.HasAlert {
			restored.Alerts.HasAlert[route] = saved.Alerts.HasAlert[route]
		}
		*next = restored
		return nil
	})
	return err
}

func sameSlots(a, b []LineBoard) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Slot != b[i].Slot {
			return false
		}
	}
	return true
}
