// Package realtime polls the arrival sources and keeps the board current:
// GTFS-Realtime trip updates and CTA Train Tracker predictions become arrival
// queues, alerts become per-route flags.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/transitboard/transitboard/internal/alerts"
	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/clock"
	"github.com/transitboard/transitboard/internal/cta"
	"github.com/transitboard/transitboard/internal/feed"
	"github.com/transitboard/transitboard/internal/logging"
	"github.com/transitboard/transitboard/internal/metrics"
	"github.com/transitboard/transitboard/internal/store"
	"github.com/transitboard/transitboard/internal/wire"
)

// Feed names used in logs and metric labels.
const (
	TripUpdatesFeed = "trip_updates"
	AlertsFeed      = "alerts"
	CTAFeed         = "cta"
)

// ErrDecodeFailed is returned when a feed body yields nothing usable.
var ErrDecodeFailed = errors.New("feed decode failed")

// Options wires a Manager. Store and Metrics are optional. CTA is only used
// when the board has CTA slots.
type Options struct {
	Feeds         appconf.FeedConfig
	CTA           appconf.CTAConfig
	AlertSchema   feed.AlertSchema
	AlertsEnabled bool
	Engine        *arrivals.Engine
	Board         *board.Board
	Store         *store.Store
	KeepSnapshots int
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Client        *Client
	CTAClient     *Client
}

type Manager struct {
	opts      Options
	client    *Client
	ctaClient *Client
	logger    *slog.Logger

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Engine == nil {
		opts.Engine = arrivals.NewEngine(arrivals.DefaultConfig())
	}
	if opts.AlertSchema == (feed.AlertSchema{}) {
		opts.AlertSchema = feed.LegacyAlertSchema
	}
	if opts.Feeds.UpdateInterval <= 0 {
		opts.Feeds.UpdateInterval = appconf.DefaultUpdateInterval
	}
	if opts.Feeds.AlertsInterval <= 0 {
		opts.Feeds.AlertsInterval = appconf.DefaultAlertsInterval
	}
	if opts.Feeds.Timeout <= 0 {
		opts.Feeds.Timeout = appconf.DefaultTimeout
	}
	if opts.CTA.UpdateInterval <= 0 {
		opts.CTA.UpdateInterval = opts.Feeds.UpdateInterval
	}
	client := opts.Client
	if client == nil {
		client = NewClient(opts.Feeds, opts.Logger)
	}
	ctaClient := opts.CTAClient
	if ctaClient == nil {
		ctaClient = NewClient(appconf.FeedConfig{
			APIToken:     opts.CTA.APIKey,
			TokenParam:   cta.KeyParam,
			Timeout:      opts.Feeds.Timeout,
			MaxBodyBytes: opts.Feeds.MaxBodyBytes,
		}, opts.Logger).WithAccept("application/json")
	}
	return &Manager{
		opts:         opts,
		client:       client,
		ctaClient:    ctaClient,
		logger:       opts.Logger.With(slog.String("component", "gtfs_realtime")),
		shutdownChan: make(chan struct{}),
	}
}

// Restore publishes the latest stored snapshot, if any, so the board has
// something to show before the first poll completes.
func (m *Manager) Restore(ctx context.Context) error {
	if m.opts.Store == nil {
		return nil
	}
	snap, takenAt, err := m.opts.Store.Latest(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.opts.Board.Restore(snap); err != nil {
		if errors.Is(err, board.ErrLayoutMismatch) {
			m.logger.Warn("stored snapshot does not match the configured board, ignoring it",
				slog.Time("taken_at", takenAt))
			return nil
		}
		return err
	}
	logging.LogOperation(m.logger, "restored_board_snapshot", slog.Time("taken_at", takenAt))
	return nil
}

// Start polls every source the board uses once and then on its interval
// until Shutdown.
func (m *Manager) Start() {
	snap := m.opts.Board.Load()

	if hasSlots(snap, false) && m.opts.Feeds.TripUpdatesURL != "" {
		m.wg.Add(1)
		go m.updatePeriodically(TripUpdatesFeed, m.opts.Feeds.UpdateInterval, m.UpdateTrips)
	}

	if hasSlots(snap, true) {
		m.wg.Add(1)
		go m.updatePeriodically(CTAFeed, m.opts.CTA.UpdateInterval, m.UpdateCTA)
	}

	if m.opts.AlertsEnabled && m.opts.Feeds.AlertsURL != "" {
		m.wg.Add(1)
		go m.updatePeriodically(AlertsFeed, m.opts.Feeds.AlertsInterval, m.UpdateAlerts)
	}
}

// Shutdown stops the pollers and waits for an in-flight poll to finish.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdownChan)
	})
	m.wg.Wait()
}

func (m *Manager) updatePeriodically(name string, interval time.Duration, update func(context.Context) error) {
	defer m.wg.Done()

	logger := m.logger.With(slog.String("feed", name))

	poll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.Feeds.Timeout)
		defer cancel()
		ctx = logging.WithLogger(ctx, logger)

		logging.LogOperation(logger, "updating_gtfs_realtime_data")
		if err := update(ctx); err != nil {
			logging.LogError(logger, "GTFS-RT update failed", err)
		}
	}

	poll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			poll()
		case <-m.shutdownChan:
			logging.LogOperation(logger, "shutting_down_realtime_updates")
			return
		}
	}
}

// UpdateTrips fetches and decodes the trip-updates feed and publishes fresh
// queues for every line and station. On any failure the previous queues are
// kept and marked stale.
func (m *Manager) UpdateTrips(ctx context.Context) error {
	start := time.Now()
	body, err := m.fetch(ctx, m.client, TripUpdatesFeed, m.opts.Feeds.TripUpdatesURL)
	if err != nil {
		m.opts.Board.MarkArrivalsFailed()
		return err
	}

	f := feed.DecodeTripUpdates(body)
	m.observeDecode(TripUpdatesFeed, &f.Report, len(f.TripUpdates), f.Stats.Dropped, f.Header.Timestamp)
	if f.Failed() {
		m.opts.Board.MarkArrivalsFailed()
		m.observeFetch(TripUpdatesFeed, metrics.ResultDecodeError, start, len(body))
		return fmt.Errorf("%w: %s: %v", ErrDecodeFailed, TripUpdatesFeed, f.Report.Err())
	}
	if n := f.Report.Total(); n > 0 {
		m.logger.Warn("trip updates decoded with issues",
			slog.Int("issues", n),
			slog.Int("trip_updates", len(f.TripUpdates)))
	}

	now := m.opts.Clock.Now()
	snap := m.opts.Board.Load()
	lines := m.derive(f.TripUpdates, snap.Lines, now)
	stations := m.derive(f.TripUpdates, snap.Stations, now)

	published, err := m.opts.Board.PublishArrivals(lines, stations, f.Header.Timestamp, now)
	if err != nil {
		return err
	}
	m.observeFetch(TripUpdatesFeed, metrics.ResultOK, start, len(body))
	m.observePublished(published)
	if m.opts.Metrics != nil {
		m.opts.Metrics.MarkPolled(TripUpdatesFeed, now)
	}

	logging.LogOperation(m.logger, "published_arrivals",
		slog.Int("trip_updates", len(f.TripUpdates)),
		slog.Uint64("feed_timestamp", f.Header.Timestamp))

	m.save(ctx, published, now)
	return nil
}

// derive leaves CTA slots empty; the board ignores them.
func (m *Manager) derive(trips []feed.TripUpdate, slots []board.LineBoard, now time.Time) []arrivals.Queues {
	out := make([]arrivals.Queues, len(slots))
	for i, lb := range slots {
		if lb.FromCTA() {
			continue
		}
		out[i] = m.opts.Engine.Derive(trips, lb.Target(), now)
	}
	return out
}

// hasSlots reports whether the snapshot has CTA slots, or GTFS-Realtime slots
// when fromCTA is false.
func hasSlots(s *board.Snapshot, fromCTA bool) bool {
	for _, group := range [][]board.LineBoard{s.Lines, s.Stations} {
		for _, lb := range group {
			if lb.FromCTA() == fromCTA {
				return true
			}
		}
	}
	return false
}

// UpdateAlerts fetches the alerts feed and republishes the alert state for
// the board's routes. On failure the previous state stays published.
func (m *Manager) UpdateAlerts(ctx context.Context) error {
	start := time.Now()
	body, err := m.fetch(ctx, m.client, AlertsFeed, m.opts.Feeds.AlertsURL)
	if err != nil {
		return err
	}

	f := feed.DecodeAlerts(body, m.opts.AlertSchema)
	m.observeDecode(AlertsFeed, &f.Report, len(f.Alerts), f.Stats.Dropped, f.Header.Timestamp)
	if f.Failed() {
		m.observeFetch(AlertsFeed, metrics.ResultDecodeError, start, len(body))
		return fmt.Errorf("%w: %s: %v", ErrDecodeFailed, AlertsFeed, f.Report.Err())
	}

	now := m.opts.Clock.Now()
	state := alerts.Associate(f.Alerts, m.opts.Board.Routes())
	published := m.opts.Board.PublishAlerts(state, now)
	m.observeFetch(AlertsFeed, metrics.ResultOK, start, len(body))
	if m.opts.Metrics != nil {
		m.opts.Metrics.ActiveAlerts.Set(float64(len(state.Active)))
		m.opts.Metrics.MarkPolled(AlertsFeed, now)
	}

	logging.LogOperation(m.logger, "published_alerts",
		slog.Int("alerts", len(f.Alerts)),
		slog.Int("active", len(state.Active)))

	m.save(ctx, published, now)
	return nil
}

// fetch records failed downloads itself. Successful ones are recorded by the
// caller once the body has been decoded.
func (m *Manager) fetch(ctx context.Context, client *Client, name, source string) ([]byte, error) {
	start := time.Now()
	body, err := client.Fetch(ctx, source)
	if err != nil {
		m.observeFetch(name, metrics.ResultHTTPError, start, 0)
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return body, nil
}

func (m *Manager) observeFetch(name, result string, start time.Time, bytes int) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveFetch(name, result, time.Since(start), bytes)
	}
}

func (m *Manager) observeDecode(name string, rep *wire.Report, kept, dropped int, ts uint64) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.ObserveDecode(name, rep, kept, dropped, ts)
	}
}

func (m *Manager) observePublished(s *board.Snapshot) {
	if m.opts.Metrics == nil {
		return
	}
	record := func(label string, lb board.LineBoard) {
		m.opts.Metrics.ArrivalsPublished.WithLabelValues(label, arrivals.Inbound.String()).Set(float64(len(lb.Inbound)))
		m.opts.Metrics.ArrivalsPublished.WithLabelValues(label, arrivals.Outbound.String()).Set(float64(len(lb.Outbound)))
	}
	for _, lb := range s.Lines {
		record(strconv.Itoa(lb.Line), lb)
	}
	for i, lb := range s.Stations {
		record("station_"+strconv.Itoa(i), lb)
	}
}

func (m *Manager) save(ctx context.Context, s *board.Snapshot, at time.Time) {
	if m.opts.Store == nil {
		return
	}
	if _, err := m.opts.Store.Save(ctx, s, at); err != nil {
		logging.LogError(m.logger, "Failed to save board snapshot", err)
		return
	}
	keep := m.opts.KeepSnapshots
	if keep <= 0 {
		keep = appconf.DefaultSnapshotsKept
	}
	if _, err := m.opts.Store.Prune(ctx, keep); err != nil {
		logging.LogError(m.logger, "Failed to prune board snapshots", err)
	}
}
