package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/transitboard/transitboard/internal/app"
	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/clock"
	"github.com/transitboard/transitboard/internal/logging"
	"github.com/transitboard/transitboard/internal/metrics"
	"github.com/transitboard/transitboard/internal/realtime"
	"github.com/transitboard/transitboard/internal/restapi"
	"github.com/transitboard/transitboard/internal/store"
	"github.com/transitboard/transitboard/internal/webui"
)

const shutdownTimeout = 10 * time.Second

// ParseAPIKeys splits a comma-separated key list, trimming each key.
func ParseAPIKeys(apiKeysFlag string) []string {
	if strings.TrimSpace(apiKeysFlag) == "" {
		return []string{}
	}
	keys := strings.Split(apiKeysFlag, ",")
	for i, key := range keys {
		keys[i] = strings.TrimSpace(key)
	}
	return keys
}

// LoadConfig reads the configuration file. A non-empty apiKeys flag replaces
// the keys from the file.
func LoadConfig(path, apiKeys string) (*appconf.Config, error) {
	cfg, err := appconf.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if apiKeys != "" {
		cfg.Server.ApiKeys = ParseAPIKeys(apiKeys)
	}
	return cfg, nil
}

// Slots turns the configured lines and stations into board slots. Lines are
// numbered by position; every station is shown as line 1.
func Slots(cfg appconf.BoardConfig) (lines, stations []board.Slot) {
	for i, l := range cfg.Lines {
		lines = append(lines, board.Slot{Line: i + 1, Name: l.Name, Route: l.Route, Stop: l.Stop, Source: slotSource(l)})
	}
	for _, s := range cfg.Stations {
		stations = append(stations, board.Slot{Line: 1, Name: s.Name, Route: s.Route, Stop: s.Stop, Source: slotSource(s)})
	}
	return lines, stations
}

func slotSource(l appconf.LineConfig) string {
	if l.Transit() == appconf.TransitCTA {
		return board.SourceCTA
	}
	return board.SourceGTFSRT
}

// BuildApplication wires every dependency and restores the latest stored
// snapshot. Pollers are not started.
func BuildApplication(cfg *appconf.Config) (*app.Application, error) {
	env := cfg.Environment()
	logger := logging.New(os.Stdout, env == appconf.Production, cfg.Server.Verbose)
	slog.SetDefault(logger)

	clk, err := clock.New(cfg.Clock.EnvVar, cfg.Clock.File, cfg.Clock.Timezone, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewWithLogger(logger)
	lines, stations := Slots(cfg.Board)
	b := board.New(lines, stations)
	engine := arrivals.NewEngine(cfg.EngineConfig())

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(context.Background(), cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		m.StartDBStatsCollector(st.DB, 15*time.Second)
	}

	manager := realtime.NewManager(realtime.Options{
		Feeds:         cfg.Feeds,
		CTA:           cfg.CTA,
		AlertSchema:   cfg.AlertSchema(),
		AlertsEnabled: cfg.Board.AlertsEnabled(),
		Engine:        engine,
		Board:         b,
		Store:         st,
		KeepSnapshots: cfg.Store.Keep,
		Clock:         clk,
		Metrics:       m,
		Logger:        logger,
	})
	if err := manager.Restore(context.Background()); err != nil {
		logging.LogError(logger, "failed to restore board snapshot", err)
	}

	logging.LogOperation(logger, "application_built",
		slog.String("env", env.String()),
		slog.Int("lines", len(lines)),
		slog.Int("stations", len(stations)),
		slog.String("alert_schema", cfg.AlertSchema().Name))

	return &app.Application{
		Config:   *cfg,
		Logger:   logger,
		Board:    b,
		Engine:   engine,
		Realtime: manager,
		Store:    st,
		Clock:    clk,
		Metrics:  m,
	}, nil
}

// CreateServer builds the HTTP server for coreApp.
func CreateServer(coreApp *app.Application, cfg *appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webUI := &webui.WebUI{Application: coreApp}
	webUI.SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run starts the pollers and serves until ctx is cancelled or the server
// fails, then shuts everything down in reverse order.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI) error {
	logger := coreApp.Logger

	coreApp.Realtime.Start()

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "starting_server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.LogOperation(logger, "shutdown_signal_received")
	case err := <-serverErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server shutdown failed", err)
		runErr = errors.Join(runErr, err)
	}

	api.Shutdown()
	coreApp.Realtime.Shutdown()
	if coreApp.Metrics != nil {
		coreApp.Metrics.Shutdown()
	}
	if coreApp.Store != nil {
		logging.SafeCloseWithLogging(coreApp.Store, logger, "snapshot_store")
	}

	logging.LogOperation(logger, "server_stopped")
	return runErr
}
