// Package appconf loads the board's YAML configuration, fills in defaults,
// applies environment overrides and validates the result.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/cta"
	"github.com/transitboard/transitboard/internal/feed"
)

const (
	DefaultPort               = 4000
	DefaultRateLimit          = 20
	DefaultTokenParam         = "api_token"
	DefaultUpdateInterval     = 30 * time.Second
	DefaultAlertsInterval     = 180 * time.Second
	DefaultTimeout            = 15 * time.Second
	DefaultMaxBodyBytes       = 8 << 20
	DefaultTrainsPerDirection = 4
	DefaultSnapshotsKept      = 50
)

// Environment variables that override the file.
const (
	EnvAPIToken = "TRANSITBOARD_API_TOKEN"
	EnvPort     = "TRANSITBOARD_PORT"
	EnvEnv      = "TRANSITBOARD_ENV"
	EnvCTAKey   = "TRANSITBOARD_CTA_API_KEY"
)

// LoadFromFile reads, defaults, overrides and validates the file at path.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFromFile for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Feeds.TokenParam == "" {
		c.Feeds.TokenParam = DefaultTokenParam
	}
	if c.Feeds.UpdateInterval == 0 {
		c.Feeds.UpdateInterval = DefaultUpdateInterval
	}
	if c.Feeds.AlertsInterval == 0 {
		c.Feeds.AlertsInterval = DefaultAlertsInterval
	}
	if c.Feeds.Timeout == 0 {
		c.Feeds.Timeout = DefaultTimeout
	}
	if c.Feeds.MaxBodyBytes == 0 {
		c.Feeds.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Board.TrainsPerDirection == 0 {
		c.Board.TrainsPerDirection = DefaultTrainsPerDirection
	}
	if c.CTA.URL == "" {
		c.CTA.URL = cta.DefaultURL
	}
	if c.CTA.UpdateInterval == 0 {
		c.CTA.UpdateInterval = DefaultUpdateInterval
	}
	if c.CTA.MaxMinutes == 0 {
		c.CTA.MaxMinutes = cta.DefaultMaxMinutes
	}
	if c.Store.Keep == 0 {
		c.Store.Keep = DefaultSnapshotsKept
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		c.Feeds.APIToken = v
	}
	if v, ok := lookup(EnvCTAKey); ok && v != "" {
		c.CTA.APIKey = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvEnv); ok && v != "" {
		c.Server.Env = v
	}
	return nil
}

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if len(c.Board.Lines) == 0 && len(c.Board.Stations) == 0 {
		return errors.New("board needs at least one line or station")
	}
	if c.Board.Uses(TransitGTFSRT) && c.Feeds.TripUpdatesURL == "" {
		return errors.New("feeds.tripUpdatesURL is required for GTFS-Realtime lines")
	}
	if c.Board.Uses(TransitCTA) && c.CTA.APIKey == "" {
		return errors.New("cta.apiKey is required for CTA lines")
	}
	if c.Board.AlertsEnabled() && c.Feeds.AlertsURL == "" {
		return errors.New("feeds.alertsURL is required when alerts are enabled")
	}
	return nil
}

// EngineConfig returns the arrival window with unset fields defaulted.
func (c *Config) EngineConfig() arrivals.Config {
	cfg := arrivals.DefaultConfig()
	if p := c.Arrivals.PastGraceMinutes; p != nil {
		cfg.PastGraceMinutes = *p
	}
	if h := c.Arrivals.HorizonMinutes; h != nil {
		cfg.HorizonMinutes = *h
	}
	if s := c.Arrivals.InboundAfterSequence; s != nil {
		cfg.InboundAfterSequence = uint32(*s)
	}
	return cfg
}

// AlertSchema resolves feeds.alertSchema. Validation guarantees the name is
// known.
func (c *Config) AlertSchema() feed.AlertSchema {
	schema, err := feed.ParseAlertSchema(c.Feeds.AlertSchema)
	if err != nil {
		return feed.LegacyAlertSchema
	}
	return schema
}
