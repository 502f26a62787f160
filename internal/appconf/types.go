package appconf

import (
	"fmt"
	"time"

	"github.com/transitboard/transitboard/internal/cta"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseEnvironment accepts "development", "test" and "production". The empty
// string is Development.
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "", "development":
		return Development, nil
	case "test":
		return Test, nil
	case "production":
		return Production, nil
	}
	return Development, fmt.Errorf("unknown environment %q", s)
}

// ServerConfig configures the HTTP API. RateLimit is requests per second per
// client; unset means DefaultRateLimit and -1 disables limiting.
type ServerConfig struct {
	Port         int      `yaml:"port" validate:"gte=0,lte=65535"`
	Env          string   `yaml:"env" validate:"omitempty,oneof=development test production"`
	RateLimit    int      `yaml:"rateLimit" validate:"gte=-1"`
	CacheSeconds int      `yaml:"cacheSeconds" validate:"gte=0"`
	ApiKeys      []string `yaml:"apiKeys" validate:"dive,required"`
	Verbose      bool     `yaml:"verbose"`
}

// FeedConfig locates the two GTFS-Realtime endpoints. When APIToken is set it
// is sent as the TokenParam query parameter.
type FeedConfig struct {
	TripUpdatesURL string            `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	AlertsURL      string            `yaml:"alertsURL" validate:"omitempty,url"`
	APIToken       string            `yaml:"apiToken"`
	TokenParam     string            `yaml:"tokenParam"`
	Headers        map[string]string `yaml:"headers"`
	AlertSchema    string            `yaml:"alertSchema" validate:"omitempty,oneof=legacy standard"`
	UpdateInterval time.Duration     `yaml:"updateInterval" validate:"gte=0"`
	AlertsInterval time.Duration     `yaml:"alertsInterval" validate:"gte=0"`
	Timeout        time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxBodyBytes   int64             `yaml:"maxBodyBytes" validate:"gte=0"`
}

// Transit types a line can be fed from.
const (
	TransitGTFSRT = "gtfsrt"
	TransitCTA    = "cta"
)

// LineConfig is one route/stop pair shown on the board. For CTA lines Stop is
// a Train Tracker stop or station id.
type LineConfig struct {
	Name        string `yaml:"name"`
	Route       string `yaml:"route" validate:"required"`
	Stop        string `yaml:"stop" validate:"required"`
	TransitType string `yaml:"transitType" validate:"omitempty,oneof=gtfsrt cta"`
}

// Transit returns the configured transit type. When unset, 'L' route codes
// are CTA and everything else is GTFS-Realtime.
func (l LineConfig) Transit() string {
	if l.TransitType != "" {
		return l.TransitType
	}
	if cta.IsLine(l.Route) {
		return TransitCTA
	}
	return TransitGTFSRT
}

// CTAConfig configures the Train Tracker source used by CTA lines.
type CTAConfig struct {
	URL            string        `yaml:"url" validate:"omitempty,url"`
	APIKey         string        `yaml:"apiKey"`
	UpdateInterval time.Duration `yaml:"updateInterval" validate:"gte=0"`
	MaxMinutes     int           `yaml:"maxMinutes" validate:"gte=0"`
}

type BoardConfig struct {
	// Lines are shown together; the first is line 1.
	Lines []LineConfig `yaml:"lines" validate:"max=2,dive"`
	// Stations are shown one at a time in rotation.
	Stations           []LineConfig `yaml:"stations" validate:"dive"`
	TrainsPerDirection int          `yaml:"trainsPerDirection" validate:"gte=0"`
	EnableAlerts       *bool        `yaml:"enableAlerts"`
}

// Uses reports whether any line or station is fed by transit.
func (b BoardConfig) Uses(transit string) bool {
	for _, groups := range [][]LineConfig{b.Lines, b.Stations} {
		for _, l := range groups {
			if l.Transit() == transit {
				return true
			}
		}
	}
	return false
}

// AlertsEnabled defaults to true when enableAlerts is not set.
func (b BoardConfig) AlertsEnabled() bool {
	return b.EnableAlerts == nil || *b.EnableAlerts
}

// Routes returns the distinct routes of all lines and stations, lines first.
func (b BoardConfig) Routes() []string {
	seen := make(map[string]bool)
	var routes []string
	for _, groups := range [][]LineConfig{b.Lines, b.Stations} {
		for _, l := range groups {
			if !seen[l.Route] {
				seen[l.Route] = true
				routes = append(routes, l.Route)
			}
		}
	}
	return routes
}

// ArrivalsConfig overrides the display window. Unset fields keep their
// defaults, so zero can be configured explicitly.
type ArrivalsConfig struct {
	PastGraceMinutes     *int `yaml:"pastGraceMinutes" validate:"omitempty,gte=0"`
	HorizonMinutes       *int `yaml:"horizonMinutes" validate:"omitempty,gt=0"`
	InboundAfterSequence *int `yaml:"inboundAfterSequence" validate:"omitempty,gte=0"`
}

type StoreConfig struct {
	// Path is the sqlite file holding board snapshots. Empty disables
	// persistence.
	Path string `yaml:"path"`
	Keep int    `yaml:"keep" validate:"gte=0"`
}

type ClockConfig struct {
	EnvVar   string `yaml:"envVar"`
	File     string `yaml:"file"`
	Timezone string `yaml:"timezone"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Feeds    FeedConfig     `yaml:"feeds"`
	CTA      CTAConfig      `yaml:"cta"`
	Board    BoardConfig    `yaml:"board"`
	Arrivals ArrivalsConfig `yaml:"arrivals"`
	Store    StoreConfig    `yaml:"store"`
	Clock    ClockConfig    `yaml:"clock"`
}

// Environment returns the parsed server environment. Validation guarantees
// the value is known.
func (c *Config) Environment() Environment {
	env, _ := ParseEnvironment(c.Server.Env)
	return env
}
