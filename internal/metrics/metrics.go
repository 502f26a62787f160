// Package metrics exposes Prometheus metrics for the board: feed polling,
// decode health, published arrivals, the HTTP API and the snapshot store.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/transitboard/transitboard/internal/wire"
)

const namespace = "transitboard"

// Fetch results used as the "result" label.
const (
	ResultOK          = "ok"
	ResultHTTPError   = "http_error"
	ResultDecodeError = "decode_error"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	FeedFetchesTotal   *prometheus.CounterVec
	FeedFetchDuration  *prometheus.HistogramVec
	FeedBytes          *prometheus.CounterVec
	DecodeIssuesTotal  *prometheus.CounterVec
	EntitiesDecoded    *prometheus.GaugeVec
	EntitiesDropped    *prometheus.GaugeVec
	FeedTimestamp      *prometheus.GaugeVec
	ArrivalsPublished  *prometheus.GaugeVec
	ActiveAlerts       prometheus.Gauge
	LastSuccessfulPoll *prometheus.GaugeVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Snapshot store connection pool.
	StoreConnectionsOpen  prometheus.Gauge
	StoreConnectionsInUse prometheus.Gauge
	StoreConnectionsIdle  prometheus.Gauge
	StoreWaitSecondsTotal prometheus.Counter

	logger *slog.Logger

	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

func New() *Metrics {
	return NewWithLogger(nil)
}

func NewWithLogger(logger *slog.Logger) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		logger:   logger,

		FeedFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed fetch attempts by feed and result",
		}, []string{"feed", "result"}),
		FeedFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Time to download one feed",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),
		FeedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_bytes_total",
			Help:      "Decompressed feed bytes downloaded",
		}, []string{"feed"}),
		DecodeIssuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_issues_total",
			Help:      "Malformed fields met while decoding, by kind",
		}, []string{"feed", "kind"}),
		EntitiesDecoded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_decoded",
			Help:      "Records kept from the latest decode",
		}, []string{"feed"}),
		EntitiesDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_dropped",
			Help:      "Entities without the decoded payload in the latest decode",
		}, []string{"feed"}),
		FeedTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_header_timestamp_seconds",
			Help:      "FeedHeader timestamp of the latest decoded feed",
		}, []string{"feed"}),
		ArrivalsPublished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arrivals_published",
			Help:      "Arrivals on the board by line and direction",
		}, []string{"line", "direction"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts currently shown",
		}),
		LastSuccessfulPoll: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_poll_seconds",
			Help:      "Unix time of the last poll that published data",
		}, []string{"feed"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		StoreConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connections_open",
			Help:      "Open snapshot store connections",
		}),
		StoreConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connections_in_use",
			Help:      "Snapshot store connections in use",
		}),
		StoreConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_connections_idle",
			Help:      "Idle snapshot store connections",
		}),
		StoreWaitSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_wait_seconds_total",
			Help:      "Total time blocked waiting for a snapshot store connection",
		}),
	}

	m.Registry.MustRegister(
		m.FeedFetchesTotal,
		m.FeedFetchDuration,
		m.FeedBytes,
		m.DecodeIssuesTotal,
		m.EntitiesDecoded,
		m.EntitiesDropped,
		m.FeedTimestamp,
		m.ArrivalsPublished,
		m.ActiveAlerts,
		m.LastSuccessfulPoll,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreConnectionsOpen,
		m.StoreConnectionsInUse,
		m.StoreConnectionsIdle,
		m.StoreWaitSecondsTotal,
	)
	return m
}

// ObserveFetch records one download attempt.
func (m *Metrics) ObserveFetch(feed, result string, elapsed time.Duration, bytes int) {
	m.FeedFetchesTotal.WithLabelValues(feed, result).Inc()
	m.FeedFetchDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.FeedBytes.WithLabelValues(feed).Add(float64(bytes))
	}
}

// ObserveDecode records the outcome of decoding one feed buffer.
func (m *Metrics) ObserveDecode(feed string, rep *wire.Report, kept, dropped int, headerTimestamp uint64) {
	for _, kind := range wire.Kinds() {
		if n := rep.Count(kind); n > 0 {
			m.DecodeIssuesTotal.WithLabelValues(feed, kind.String()).Add(float64(n))
		}
	}
	m.EntitiesDecoded.WithLabelValues(feed).Set(float64(kept))
	m.EntitiesDropped.WithLabelValues(feed).Set(float64(dropped))
	if headerTimestamp > 0 {
		m.FeedTimestamp.WithLabelValues(feed).Set(float64(headerTimestamp))
	}
}

// MarkPolled records a poll that published data at t.
func (m *Metrics) MarkPolled(feed string, t time.Time) {
	m.LastSuccessfulPoll.WithLabelValues(feed).Set(float64(t.Unix()))
}

// StartDBStatsCollector samples the snapshot store's pool every interval
// until Shutdown. Later calls are no-ops.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil && m.logger != nil {
				m.logger.Error("panic in store stats collector", "error", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastWait time.Duration
		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.StoreConnectionsOpen.Set(float64(stats.OpenConnections))
				m.StoreConnectionsInUse.Set(float64(stats.InUse))
				m.StoreConnectionsIdle.Set(float64(stats.Idle))
				if delta := stats.WaitDuration - lastWait; delta > 0 {
					m.StoreWaitSecondsTotal.Add(delta.Seconds())
				}
				lastWait = stats.WaitDuration
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the store collector and waits for it. Safe to call more
// than once.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
