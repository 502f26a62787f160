package restapi

import (
	"time"
)

// StaleDetector decides whether the trip-updates feed is too old to trust,
// judged by its header timestamp.
type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{
		threshold: 90 * time.Second,
	}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

// Check reports whether a feed with the given header timestamp is stale at
// currentTime. A zero timestamp means the feed has never been seen.
func (d *StaleDetector) Check(feedTimestamp uint64, currentTime time.Time) bool {
	return d.Age(feedTimestamp, currentTime) > d.threshold
}

func (d *StaleDetector) Age(feedTimestamp uint64, currentTime time.Time) time.Duration {
	if feedTimestamp == 0 {
		return d.threshold + 1
	}
	return currentTime.Sub(time.Unix(int64(feedTimestamp), 0))
}
