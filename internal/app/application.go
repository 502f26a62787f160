package app

import (
	"log/slog"

	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/clock"
	"github.com/transitboard/transitboard/internal/metrics"
	"github.com/transitboard/transitboard/internal/realtime"
	"github.com/transitboard/transitboard/internal/store"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware. Store may be nil when persistence is disabled.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Board    *board.Board
	Engine   *arrivals.Engine
	Realtime *realtime.Manager
	Store    *store.Store
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}
