package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitboard/transitboard/internal/app"
	"github.com/transitboard/transitboard/internal/board"
	"github.com/transitboard/transitboard/internal/store"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthHandlerWithNilApplication(t *testing.T) {
	api := &RestAPI{}

	rec := httptest.NewRecorder()
	api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeHealth(t, rec)
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "board not initialized", resp.Detail)
}

func TestHealthHandler_StartingBeforeFirstPoll(t *testing.T) {
	api := NewRestAPI(&app.Application{
		Config: testConfig(),
		Board:  board.New([]board.Slot{{Line: 1, Route: "UP-N", Stop: "RAVENSWOOD"}}, nil),
	})
	defer api.Shutdown()

	rec := httptest.NewRecorder()
	api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "starting", decodeHealth(t, rec).Status)
}

func TestHealthHandlerReturnsOK(t *testing.T) {
	api := createTestApi(t)

	rec, body := serveAPI(t, api, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Nil(t, body["detail"])
}

func TestHealthHandler_ReportsCachedArrivals(t *testing.T) {
	api := createTestApi(t)
	api.Board.MarkArrivalsFailed()

	rec, body := serveAPI(t, api, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "serving cached arrivals", body["detail"])
}

func TestHealthHandler_StoreUnavailable(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	api := createTestApi(t)
	api.Store = st

	rec := httptest.NewRecorder()
	api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "snapshot store connection failed", decodeHealth(t, rec).Detail)
}
