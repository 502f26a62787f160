// Package clock supplies the reference time arrivals are measured against.
// Production code uses the system clock; tests and demos pin the board to a
// fixed instant so that recorded feeds show the same minutes every run.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Clock returns the reference time for one derivation pass.
type Clock interface {
	Now() time.Time
}

// RealClock is the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a thread-safe settable clock for tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// PinnedClock reads the reference time from an environment variable or a
// file on every call, so a running board can be re-pinned without a restart.
// The environment variable wins over the file; when neither yields a time the
// system clock is used and a warning is logged.
type PinnedClock struct {
	envVar   string
	filePath string
	location *time.Location
	logger   *slog.Logger
}

func NewPinnedClock(envVar, filePath string, location *time.Location, logger *slog.Logger) *PinnedClock {
	if logger == nil {
		logger = slog.Default()
	}
	return &PinnedClock{
		envVar:   envVar,
		filePath: filePath,
		location: location,
		logger:   logger.With(slog.String("component", "clock")),
	}
}

func (p *PinnedClock) Now() time.Time {
	if t, err := p.fromEnv(); err == nil {
		return t
	}
	if t, err := p.fromFile(); err == nil {
		return t
	}
	p.logger.Warn("pinned time unavailable, using system time",
		slog.String("env_var", p.envVar),
		slog.String("file", p.filePath))
	return time.Now()
}

// New returns a PinnedClock when envVar or filePath is set and a RealClock
// otherwise. timezone names the location used for times written without an
// offset; empty means UTC.
func New(envVar, filePath, timezone string, logger *slog.Logger) (Clock, error) {
	if envVar == "" && filePath == "" {
		return RealClock{}, nil
	}
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("clock timezone: %w", err)
		}
	}
	return NewPinnedClock(envVar, filePath, loc, logger), nil
}

var errNotConfigured = errors.New("source not configured")

func (p *PinnedClock) fromEnv() (time.Time, error) {
	if p.envVar == "" {
		return time.Time{}, errNotConfigured
	}
	v := os.Getenv(p.envVar)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is empty", p.envVar)
	}
	return p.parse(v)
}

func (p *PinnedClock) fromFile() (time.Time, error) {
	if p.filePath == "" {
		return time.Time{}, errNotConfigured
	}
	data, err := os.ReadFile(p.filePath)
	if err != nil {
		return time.Time{}, err
	}
	return p.parse(string(data))
}

// localLayouts are accepted in the clock's location when the value carries
// no offset.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (p *PinnedClock) parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if p.location == nil {
		return time.Time{}, errors.New("timezone not configured")
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, p.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q: want RFC3339 or one of %s", s, strings.Join(localLayouts, ", "))
}
