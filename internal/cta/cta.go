// Package cta reads the CTA Train Tracker arrivals API (ttarrivals.aspx with
// JSON output) and turns its predictions into arrival queues.
//
// Train Tracker predicts per station, so every board slot served by it is one
// request. Direction comes from the train's destination rather than a stop
// sequence, and minutes are measured from the prediction time carried in the
// response, not from the local clock.
package cta

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/transitboard/transitboard/internal/arrivals"
)

const (
	// DefaultURL is the Train Tracker arrivals endpoint.
	DefaultURL = "http://lapi.transitchicago.com/api/1.0/ttarrivals.aspx"
	// KeyParam is the query parameter carrying the API key.
	KeyParam = "key"
	// DefaultMaxMinutes is the furthest prediction kept.
	DefaultMaxMinutes = 60
)

// unreadableMinutes is shown for a prediction whose times cannot be parsed.
const unreadableMinutes = 5

const minutesPerDay = 24 * 60

// Lines are the route codes Train Tracker uses for the 'L' lines.
var Lines = []string{"Red", "Blue", "Brn", "G", "Org", "P", "Pink", "Y"}

// IsLine reports whether route is an 'L' route code.
func IsLine(route string) bool {
	return slices.Contains(Lines, route)
}

// inboundDestinations mark trains heading toward the Loop. Matching is by
// substring of the destination name.
var inboundDestinations = []string{
	"Loop", "Howard", "95th/Dan Ryan", "Kimball", "UIC", "Forest Park", "Harlem", "downtown",
}

var ErrInvalidResponse = errors.New("cta: response has no ctatt envelope")

// APIError is an error reported inside an otherwise successful response.
type APIError struct {
	Code string
	Name string
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("cta: api error %s", e.Code)
	}
	return fmt.Sprintf("cta: api error %s: %s", e.Code, e.Name)
}

// Prediction is one entry of the eta list.
type Prediction struct {
	StationID   string `json:"staId"`
	StopID      string `json:"stpId"`
	StationName string `json:"staNm"`
	Run         string `json:"rn"`
	Route       string `json:"rt"`
	Destination string `json:"destNm"`
	PredictedAt string `json:"prdt"`
	ArrivalAt   string `json:"arrT"`
	Approaching string `json:"isApp"`
	Delayed     string `json:"isDly"`
}

type Response struct {
	Timestamp   string
	Predictions []Prediction
}

type envelope struct {
	CTATT *struct {
		Timestamp string       `json:"tmst"`
		ErrCode   code         `json:"errCd"`
		ErrName   *string      `json:"errNm"`
		ETA       []Prediction `json:"eta"`
	} `json:"ctatt"`
}

// code accepts the error code as a string or a number.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = code(n.String())
	return nil
}

// Decode parses a Train Tracker response body. A missing envelope and a
// non-zero error code are errors.
func Decode(body []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("cta: failed to parse response: %w", err)
	}
	if env.CTATT == nil {
		return nil, ErrInvalidResponse
	}
	if c := string(env.CTATT.ErrCode); c != "" && c != "0" {
		apiErr := &APIError{Code: c}
		if env.CTATT.ErrName != nil {
			apiErr.Name = *env.CTATT.ErrName
		}
		return nil, apiErr
	}
	return &Response{Timestamp: env.CTATT.Timestamp, Predictions: env.CTATT.ETA}, nil
}

// RequestURL builds the arrivals request for a stop, filtered to route when
// it is set. The API key is added by the HTTP client.
func RequestURL(base, stop, route string) (string, error) {
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid CTA URL: %w", err)
	}
	q := u.Query()
	q.Set("stpid", stop)
	q.Set("outputType", "JSON")
	if route != "" {
		q.Set("rt", route)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DirectionFor classifies a train by its destination name.
func DirectionFor(destination string) arrivals.Direction {
	for _, keyword := range inboundDestinations {
		if strings.Contains(destination, keyword) {
			return arrivals.Inbound
		}
	}
	return arrivals.Outbound
}

// Arrivals turns predictions into queues for target. Predictions missing
// either time are skipped, as are those more than maxMinutes away. A
// maxMinutes of zero or less means DefaultMaxMinutes.
func Arrivals(predictions []Prediction, target arrivals.Target, maxMinutes int) arrivals.Queues {
	if maxMinutes <= 0 {
		maxMinutes = DefaultMaxMinutes
	}
	line := target.Line
	if line == 0 {
		line = 1
	}

	var q arrivals.Queues
	for _, p := range predictions {
		if p.PredictedAt == "" || p.ArrivalAt == "" {
			continue
		}
		minutes := minutesUntil(p.PredictedAt, p.ArrivalAt)
		if minutes > maxMinutes {
			continue
		}

		route := p.Route
		if route == "" {
			route = target.Route
		}
		if route == "" {
			route = "Unknown"
		}
		rec := arrivals.Record{
			TripID:     p.Run,
			Route:      route,
			Direction:  DirectionFor(p.Destination),
			Minutes:    minutes,
			LineNumber: line,
		}
		if rec.Direction == arrivals.Inbound {
			q.Inbound = append(q.Inbound, rec)
		} else {
			q.Outbound = append(q.Outbound, rec)
		}
	}

	byMinutes := func(a, b arrivals.Record) int { return a.Minutes - b.Minutes }
	slices.SortStableFunc(q.Inbound, byMinutes)
	slices.SortStableFunc(q.Outbound, byMinutes)
	return q
}

var timeLayouts = []string{"2006-01-02T15:04:05", "20060102 15:04:05"}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// minutesUntil compares wall-clock minutes, wrapping past midnight. Seconds
// are ignored on both sides.
func minutesUntil(predictedAt, arrivalAt string) int {
	pred, err := parseTime(predictedAt)
	if err != nil {
		return unreadableMinutes
	}
	arr, err := parseTime(arrivalAt)
	if err != nil {
		return unreadableMinutes
	}
	minutes := (arr.Hour()*60 + arr.Minute()) - (pred.Hour()*60 + pred.Minute())
	if minutes < 0 {
		minutes += minutesPerDay
	}
	return minutes
}
