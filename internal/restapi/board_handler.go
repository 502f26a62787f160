package restapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/feed"
)

// LineView is one line or station as served by the API.
type LineView struct {
	Line      int               `json:"line"`
	Name      string            `json:"name,omitempty"`
	Route     string            `json:"route"`
	Stop      string            `json:"stop"`
	Source    string            `json:"source"`
	HasAlert  bool              `json:"hasAlert"`
	Stale     bool              `json:"stale"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
	Inbound   []arrivals.Record `json:"inbound"`
	Outbound  []arrivals.Record `json:"outbound"`
}

type BoardView struct {
	Lines           []LineView `json:"lines"`
	StationCount    int        `json:"stationCount"`
	FeedTimestamp   uint64     `json:"feedTimestamp,omitempty"`
	FeedAgeSeconds  int64      `json:"feedAgeSeconds"`
	FeedStale       bool       `json:"feedStale"`
	TripsUpdatedAt  *time.Time `json:"tripsUpdatedAt,omitempty"`
	AlertsUpdatedAt *time.Time `json:"alertsUpdatedAt,omitempty"`
}

type AlertsView struct {
	Alerts []feed.Alert `json:"alerts"`
	Routes []string     `json:"routes"`
}

func (api *RestAPI) trainsPerDirection() int {
	return api.Config.Board.TrainsPerDirection
}

func (api *RestAPI) lineView(s *board.Snapshot, lb board.LineBoard) LineView {
	q := lb.Queues.Limit(api.trainsPerDirection())
	source := lb.Source
	if source == "" {
		source = board.SourceGTFSRT
	}
	return LineView{
		Line:      lb.Line,
		Name:      lb.Name,
		Route:     lb.Route,
		Stop:      lb.Stop,
		Source:    source,
		HasAlert:  s.HasAlert(lb.Route),
		Stale:     lb.Stale,
		UpdatedAt: timeOrNil(lb.UpdatedAt),
		Inbound:   orEmpty(q.Inbound),
		Outbound:  orEmpty(q.Outbound),
	}
}

func (api *RestAPI) boardHandler(w http.ResponseWriter, r *http.Request) {
	s := api.Board.Load()
	now := api.Clock.Now()

	view := BoardView{
		Lines:           make([]LineView, len(s.Lines)),
		StationCount:    len(s.Stations),
		FeedTimestamp:   s.FeedTimestamp,
		FeedStale:       api.staleDetector.Check(s.FeedTimestamp, now),
		TripsUpdatedAt:  timeOrNil(s.TripsUpdatedAt),
		AlertsUpdatedAt: timeOrNil(s.AlertsUpdatedAt),
	}
	if s.FeedTimestamp != 0 {
		view.FeedAgeSeconds = int64(api.staleDetector.Age(s.FeedTimestamp, now).Seconds())
	}
	for i, lb := range s.Lines {
		view.Lines[i] = api.lineView(s, lb)
	}
	api.sendData(w, r, view)
}

// lineHandler serves one line by its 1-based number. ?direction= narrows
// the response to a single queue.
func (api *RestAPI) lineHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("line"))
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "line must be a number")
		return
	}

	s := api.Board.Load()
	var lb *board.LineBoard
	for i := range s.Lines {
		if s.Lines[i].Line == n {
			lb = &s.Lines[i]
			break
		}
	}
	if lb == nil {
		api.sendNotFound(w, r)
		return
	}

	view := api.lineView(s, *lb)
	if !api.filterDirection(w, r, &view) {
		return
	}
	api.sendData(w, r, view)
}

// stationHandler serves the station at the given rotation index.
func (api *RestAPI) stationHandler(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "index must be a number")
		return
	}

	s := api.Board.Load()
	if idx < 0 || idx >= len(s.Stations) {
		api.sendNotFound(w, r)
		return
	}

	view := api.lineView(s, s.Stations[idx])
	if !api.filterDirection(w, r, &view) {
		return
	}
	api.sendData(w, r, view)
}

func (api *RestAPI) filterDirection(w http.ResponseWriter, r *http.Request, view *LineView) bool {
	raw := r.URL.Query().Get("direction")
	if raw == "" {
		return true
	}
	dir, ok := arrivals.ParseDirection(raw)
	if !ok {
		api.sendError(w, r, http.StatusBadRequest, (&arrivals.DirectionError{Value: raw}).Error())
		return false
	}
	if dir == arrivals.Inbound {
		view.Outbound = []arrivals.Record{}
	} else {
		view.Inbound = []arrivals.Record{}
	}
	return true
}

// alertsHandler serves the active alerts. ?route= keeps only the alerts
// naming that route.
func (api *RestAPI) alertsHandler(w http.ResponseWriter, r *http.Request) {
	s := api.Board.Load()

	view := AlertsView{
		Alerts: []feed.Alert{},
		Routes: orEmpty(s.Alerts.Routes(api.Board.Routes())),
	}
	route := r.URL.Query().Get("route")
	for _, a := range s.Alerts.Active {
		if route == "" || informs(a, route) {
			view.Alerts = append(view.Alerts, a)
		}
	}
	api.sendData(w, r, view)
}

func informs(a feed.Alert, route string) bool {
	for _, r := range a.InformedRoutes {
		if r == route {
			return true
		}
	}
	return false
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
