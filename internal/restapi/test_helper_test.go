package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/transitboard/transitboard/internal/alerts"
	"github.com/transitboard/transitboard/internal/app"
	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/clock"
	"github.com/transitboard/transitboard/internal/feed"
	"github.com/transitboard/transitboard/internal/metrics"
)

var testNow = time.Unix(1700000030, 0)

func testConfig() appconf.Config {
	return appconf.Config{
		Server: appconf.ServerConfig{RateLimit: 100},
		Feeds:  appconf.FeedConfig{UpdateInterval: 30 * time.Second},
		Board:  appconf.BoardConfig{TrainsPerDirection: 2},
	}
}

func records(route string, line int, dir arrivals.Direction, minutes ...int) []arrivals.Record {
	out := make([]arrivals.Record, len(minutes))
	for i, m := range minutes {
		out[i] = arrivals.Record{Route: route, Direction: dir, Minutes: m, LineNumber: line}
	}
	return out
}

// createTestApi returns an API over a board with two lines and two stations,
// arrivals published at testNow and an alert on UP-N.
func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	return createTestApiWithConfig(t, testConfig())
}

func createTestApiWithConfig(t *testing.T, cfg appconf.Config) *RestAPI {
	t.Helper()

	b := board.New(
		[]board.Slot{
			{Line: 1, Name: "Ravenswood", Route: "UP-N", Stop: "RAVENSWOOD"},
			{Line: 2, Name: "Kimball", Route: "Brn", Stop: "30249"},
		},
		[]board.Slot{
			{Line: 1, Name: "Clybourn", Route: "UP-NW", Stop: "CLYBOURN"},
			{Line: 1, Name: "Ogilvie", Route: "UP-W", Stop: "OTC"},
		},
	)
	_, err := b.PublishArrivals(
		[]arrivals.Queues{
			{Inbound: records("UP-N", 1, arrivals.Inbound, 2, 9, 17), Outbound: records("UP-N", 1, arrivals.Outbound, 4)},
			{Inbound: records("Brn", 2, arrivals.Inbound, 1)},
		},
		[]arrivals.Queues{
			{Outbound: records("UP-NW", 1, arrivals.Outbound, 6)},
			{},
		},
		uint64(testNow.Unix()-10), testNow)
	require.NoError(t, err)
	b.PublishAlerts(alerts.Associate([]feed.Alert{
		{EntityID: "a1", HeaderText: "Delays", InformedRoutes: []string{"UP-N"}},
		{EntityID: "a2", HeaderText: "Elevator out", InformedRoutes: []string{"Red"}},
	}, b.Routes()), testNow)

	api := NewRestAPI(&app.Application{
		Config:  cfg,
		Board:   b,
		Clock:   clock.NewMockClock(testNow),
		Metrics: metrics.New(),
	})
	t.Cleanup(api.Shutdown)
	return api
}

func serveAPI(t *testing.T, api *RestAPI, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	rec := httptest.NewRecorder()
	api.Handler(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return data
}
