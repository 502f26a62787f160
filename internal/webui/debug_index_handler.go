package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/arrivals"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type debugData struct {
	Title string
	Pre   string
}

type boardStatus struct {
	FeedTimestamp   uint64
	TripsUpdatedAt  time.Time
	AlertsUpdatedAt time.Time
	Routes          []string
	AlertedRoutes   []string
	StoredSnapshots int
}

type engineStatus struct {
	Arrivals      arrivals.Config
	CTAMaxMinutes int
}

func writeDebugData(w http.ResponseWriter, title string, data any) {
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}

	w.Header().Set("Content-Type", "text/html")
	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   cfg.Sdump(data),
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// debugIndexHandler dumps the published board. It is hidden in production
// because the config dump includes the feed token.
func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Config.Environment() == appconf.Production {
		http.NotFound(w, r)
		return
	}

	s := webUI.Board.Load()

	var (
		data  any
		title string
	)
	switch r.URL.Query().Get("dataType") {
	case "lines":
		data = s.Lines
		title = "Board - Lines"
	case "stations":
		data = s.Stations
		title = "Board - Stations"
	case "alerts":
		data = s.Alerts
		title = "Board - Alerts"
	case "status":
		routes := webUI.Board.Routes()
		status := boardStatus{
			FeedTimestamp:   s.FeedTimestamp,
			TripsUpdatedAt:  s.TripsUpdatedAt,
			AlertsUpdatedAt: s.AlertsUpdatedAt,
			Routes:          routes,
			AlertedRoutes:   s.Alerts.Routes(routes),
			StoredSnapshots: -1,
		}
		if webUI.Store != nil {
			n, err := webUI.Store.Count(r.Context())
			if err != nil {
				slog.Error("failed to count stored snapshots", "error", err)
			} else {
				status.StoredSnapshots = n
			}
		}
		data = status
		title = "Board - Status"
	case "engine":
		engine := engineStatus{CTAMaxMinutes: webUI.Config.CTA.MaxMinutes}
		if webUI.Engine != nil {
			engine.Arrivals = webUI.Engine.Config()
		}
		data = engine
		title = "Arrival Engine"
	case "config":
		data = webUI.Config
		title = "Configuration"
	default:
		data = map[string]string{
			"error": "Please use one of the following: lines, stations, alerts, status, engine, config.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, title, data)
}
