package cta

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitboard/transitboard/internal/arrivals"
)

const southportResponse = `{"ctatt":{"tmst":"2024-03-01T23:50:10","errCd":"0","errNm":null,"eta":[
{"staId":"40360","stpId":"30069","staNm":"Southport","rn":"412","rt":"Brn","destNm":"Loop","prdt":"2024-03-01T23:50:10","arrT":"2024-03-01T23:58:40","isApp":"0","isDly":"0"},
{"staId":"40360","stpId":"30070","staNm":"Southport","rn":"415","rt":"P","destNm":"Linden","prdt":"2024-03-01T23:50:10","arrT":"2024-03-01T23:53:05","isApp":"0","isDly":"0"},
{"staId":"40360","stpId":"30069","staNm":"Southport","rn":"420","rt":"Brn","destNm":"Loop","prdt":"2024-03-01T23:50:10","arrT":"2024-03-02T00:02:00","isApp":"0","isDly":"0"},
{"staId":"40360","stpId":"30069","staNm":"Southport","rn":"430","rt":"Brn","destNm":"Loop","prdt":"2024-03-01T23:50:10","arrT":"2024-03-02T01:10:00","isApp":"0","isDly":"0"}
]}}`

func TestDecode(t *testing.T) {
	resp, err := Decode([]byte(southportResponse))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01T23:50:10", resp.Timestamp)
	require.Len(t, resp.Predictions, 4)
	assert.Equal(t, "412", resp.Predictions[0].Run)
	assert.Equal(t, "Loop", resp.Predictions[0].Destination)
	assert.Equal(t, "30069", resp.Predictions[0].StopID)
}

func TestDecode_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		apiCode string
		invalid bool
	}{
		{name: "not json", body: "<ctatt/>"},
		{name: "no envelope", body: `{"bustime-response":{}}`, invalid: true},
		{name: "string error code", body: `{"ctatt":{"errCd":"101","errNm":"Invalid API key"}}`, apiCode: "101"},
		{name: "numeric error code", body: `{"ctatt":{"errCd":102,"errNm":null}}`, apiCode: "102"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := Decode([]byte(tc.body))
			require.Error(t, err)
			assert.Nil(t, resp)

			if tc.invalid {
				assert.ErrorIs(t, err, ErrInvalidResponse)
			}
			if tc.apiCode != "" {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tc.apiCode, apiErr.Code)
			}
		})
	}
}

func TestDecode_NoPredictions(t *testing.T) {
	resp, err := Decode([]byte(`{"ctatt":{"tmst":"2024-03-01T23:50:10","errCd":"0","errNm":null}}`))
	require.NoError(t, err)
	assert.Empty(t, resp.Predictions)
}

func TestArrivals(t *testing.T) {
	resp, err := Decode([]byte(southportResponse))
	require.NoError(t, err)

	q := Arrivals(resp.Predictions, arrivals.Target{Route: "Brn", Stop: "40360", Line: 2}, 0)

	require.Len(t, q.Inbound, 2)
	assert.Equal(t, "412", q.Inbound[0].TripID)
	assert.Equal(t, 8, q.Inbound[0].Minutes)
	// Crosses midnight.
	assert.Equal(t, "420", q.Inbound[1].TripID)
	assert.Equal(t, 12, q.Inbound[1].Minutes)
	for _, rec := range q.Inbound {
		assert.Equal(t, arrivals.Inbound, rec.Direction)
		assert.Equal(t, 2, rec.LineNumber)
		assert.Equal(t, "Brn", rec.Route)
	}

	require.Len(t, q.Outbound, 1)
	assert.Equal(t, 3, q.Outbound[0].Minutes)
	assert.Equal(t, arrivals.Outbound, q.Outbound[0].Direction)
}

func TestArrivals_Window(t *testing.T) {
	preds := []Prediction{
		{Run: "1", Destination: "Loop", PredictedAt: "2024-03-01T12:00:00", ArrivalAt: "2024-03-01T13:00:59"},
		{Run: "2", Destination: "Loop", PredictedAt: "2024-03-01T12:00:00", ArrivalAt: "2024-03-01T13:01:00"},
		{Run: "3", Destination: "Loop", PredictedAt: "2024-03-01T12:00:00"},
		{Run: "4", Destination: "Loop", ArrivalAt: "2024-03-01T12:05:00"},
		{Run: "5", Destination: "Loop", PredictedAt: "noon", ArrivalAt: "2024-03-01T12:05:00"},
		{Run: "6", Destination: "Loop", PredictedAt: "20240301 12:00:30", ArrivalAt: "20240301 12:02:10"},
	}

	q := Arrivals(preds, arrivals.Target{Route: "Red"}, 60)

	require.Len(t, q.Inbound, 3)
	assert.Equal(t, []string{"6", "5", "1"}, []string{q.Inbound[0].TripID, q.Inbound[1].TripID, q.Inbound[2].TripID})
	assert.Equal(t, []int{2, 5, 60}, []int{q.Inbound[0].Minutes, q.Inbound[1].Minutes, q.Inbound[2].Minutes})
	assert.Equal(t, "Red", q.Inbound[0].Route, "route falls back to the target")
	assert.Equal(t, 1, q.Inbound[0].LineNumber)
	assert.Empty(t, q.Outbound)

	q = Arrivals(preds[:2], arrivals.Target{Route: "Red"}, 90)
	assert.Len(t, q.Inbound, 2)
}

func TestDirectionFor(t *testing.T) {
	testCases := []struct {
		destination string
		want        arrivals.Direction
	}{
		{"Loop", arrivals.Inbound},
		{"Howard", arrivals.Inbound},
		{"95th/Dan Ryan", arrivals.Inbound},
		{"Forest Park", arrivals.Inbound},
		{"Harlem/Lake", arrivals.Inbound},
		{"O'Hare", arrivals.Outbound},
		{"Midway", arrivals.Outbound},
		{"Linden", arrivals.Outbound},
		{"", arrivals.Outbound},
	}

	for _, tc := range testCases {
		t.Run(tc.destination, func(t *testing.T) {
			assert.Equal(t, tc.want, DirectionFor(tc.destination))
		})
	}
}

func TestRequestURL(t *testing.T) {
	raw, err := RequestURL("", "30069", "Brn")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "lapi.transitchicago.com", u.Host)
	assert.Equal(t, "30069", u.Query().Get("stpid"))
	assert.Equal(t, "JSON", u.Query().Get("outputType"))
	assert.Equal(t, "Brn", u.Query().Get("rt"))

	raw, err = RequestURL("http://localhost:8080/tt", "40360", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/tt?outputType=JSON&stpid=40360", raw)

	_, err = RequestURL("http://[::1", "1", "")
	assert.Error(t, err)
}

func TestIsLine(t *testing.T) {
	assert.True(t, IsLine("Brn"))
	assert.True(t, IsLine("Pink"))
	assert.False(t, IsLine("UP-N"))
	assert.False(t, IsLine(""))
}
