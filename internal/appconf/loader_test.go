package appconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/cta"
	"github.com/transitboard/transitboard/internal/feed"
)

const minimalYAML = `
feeds:
  tripUpdatesURL: https://gtfspublic.metrarr.com/gtfs/public/tripupdates
  alertsURL: https://gtfspublic.metrarr.com/gtfs/public/alerts
board:
  lines:
    - route: UP-N
      stop: RAVENSWOOD
`

const fullYAML = `
server:
  port: 8080
  env: production
  rateLimit: 5
  cacheSeconds: 10
  apiKeys: [kiosk]
feeds:
  tripUpdatesURL: https://gtfspublic.metrarr.com/gtfs/public/tripupdates
  alertsURL: https://gtfspublic.metrarr.com/gtfs/public/alerts
  apiToken: secret
  tokenParam: key
  headers:
    Authorization: Bearer abc
  alertSchema: standard
  updateInterval: 45s
  alertsInterval: 5m
  timeout: 5s
  maxBodyBytes: 1048576
board:
  lines:
    - route: UP-N
      stop: RAVENSWOOD
      name: Ravenswood
    - route: MD-W
      stop: CUS
  stations:
    - {name: Clybourn, route: UP-NW, stop: CLYBOURN}
    - {name: Ravenswood, route: UP-N, stop: RAVENSWOOD}
  trainsPerDirection: 3
  enableAlerts: true
arrivals:
  pastGraceMinutes: 0
  horizonMinutes: 90
  inboundAfterSequence: 20
store:
  path: /var/lib/transitboard/board.db
  keep: 10
clock:
  envVar: BOARD_NOW
  timezone: America/Chicago
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, Development, cfg.Environment())
	assert.Equal(t, DefaultRateLimit, cfg.Server.RateLimit)
	assert.Equal(t, "api_token", cfg.Feeds.TokenParam)
	assert.Equal(t, 30*time.Second, cfg.Feeds.UpdateInterval)
	assert.Equal(t, 3*time.Minute, cfg.Feeds.AlertsInterval)
	assert.Equal(t, 15*time.Second, cfg.Feeds.Timeout)
	assert.Equal(t, 4, cfg.Board.TrainsPerDirection)
	assert.True(t, cfg.Board.AlertsEnabled())
	assert.Equal(t, arrivals.DefaultConfig(), cfg.EngineConfig())
	assert.Equal(t, feed.LegacyAlertSchema, cfg.AlertSchema())
}

func TestLoadFromFile_Full(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, fullYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, Production, cfg.Environment())
	assert.Equal(t, []string{"kiosk"}, cfg.Server.ApiKeys)
	assert.Equal(t, "Bearer abc", cfg.Feeds.Headers["Authorization"])
	assert.Equal(t, 45*time.Second, cfg.Feeds.UpdateInterval)
	assert.Equal(t, 5*time.Minute, cfg.Feeds.AlertsInterval)
	assert.Equal(t, int64(1<<20), cfg.Feeds.MaxBodyBytes)
	assert.Equal(t, feed.StandardAlertSchema, cfg.AlertSchema())
	require.Len(t, cfg.Board.Lines, 2)
	require.Len(t, cfg.Board.Stations, 2)
	assert.Equal(t, []string{"UP-N", "MD-W", "UP-NW"}, cfg.Board.Routes())
	assert.Equal(t, arrivals.Config{PastGraceMinutes: 0, HorizonMinutes: 90, InboundAfterSequence: 20}, cfg.EngineConfig())
	assert.Equal(t, 10, cfg.Store.Keep)
	assert.Equal(t, "America/Chicago", cfg.Clock.Timezone)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAPIToken, "from-env")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvEnv, "test")

	cfg, err := LoadFromFile(writeConfig(t, fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Feeds.APIToken)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, Test, cfg.Environment())
}

func TestLoadFromFile_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed",
			yaml:    "board: [[[",
			wantErr: "failed to parse YAML config",
		},
		{
			name:    "missing trip updates url",
			yaml:    "board:\n  lines:\n    - {route: UP-N, stop: RAVENSWOOD}\n  enableAlerts: false\n",
			wantErr: "invalid configuration",
		},
		{
			name: "no lines or stations",
			yaml: `
feeds:
  tripUpdatesURL: https://example.com/tu
  alertsURL: https://example.com/alerts
`,
			wantErr: "at least one line or station",
		},
		{
			name: "three lines",
			yaml: `
feeds:
  tripUpdatesURL: https://example.com/tu
  alertsURL: https://example.com/alerts
board:
  lines:
    - {route: A, stop: a}
    - {route: B, stop: b}
    - {route: C, stop: c}
`,
			wantErr: "invalid configuration",
		},
		{
			name: "alerts enabled without url",
			yaml: `
feeds:
  tripUpdatesURL: https://example.com/tu
board:
  lines:
    - {route: UP-N, stop: RAVENSWOOD}
`,
			wantErr: "alertsURL is required",
		},
		{
			name: "unknown alert schema",
			yaml: `
feeds:
  tripUpdatesURL: https://example.com/tu
  alertsURL: https://example.com/alerts
  alertSchema: proto3
board:
  lines:
    - {route: UP-N, stop: RAVENSWOOD}
`,
			wantErr: "invalid configuration",
		},
		{
			name:    "unknown env",
			yaml:    minimalYAML + "server:\n  env: staging\n",
			wantErr: "invalid configuration",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFromFile(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat config file")
}

func TestLoadFromFile_BadPortOverride(t *testing.T) {
	t.Setenv(EnvPort, "eighty")

	_, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPort)
}

func TestParseEnvironment(t *testing.T) {
	for _, env := range []Environment{Development, Test, Production} {
		got, err := ParseEnvironment(env.String())
		require.NoError(t, err)
		assert.Equal(t, env, got)
	}
	_, err := ParseEnvironment("staging")
	assert.Error(t, err)
}

const mixedYAML = `
feeds:
  tripUpdatesURL: https://gtfspublic.metrarr.com/gtfs/public/tripupdates
  alertsURL: https://gtfspublic.metrarr.com/gtfs/public/alerts
cta:
  apiKey: tt-key
board:
  lines:
    - {route: UP-N, stop: RAVENSWOOD}
    - {route: Brn, stop: "40360"}
  stations:
    - {name: Kedzie, route: Pink, stop: "41040", transitType: cta}
    - {name: Ogilvie, route: Red, stop: OTC, transitType: gtfsrt}
`

func TestLoadFromFile_CTALines(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, mixedYAML))
	require.NoError(t, err)

	assert.Equal(t, TransitGTFSRT, cfg.Board.Lines[0].Transit())
	assert.Equal(t, TransitCTA, cfg.Board.Lines[1].Transit(), "'L' route codes default to CTA")
	assert.Equal(t, TransitCTA, cfg.Board.Stations[0].Transit())
	assert.Equal(t, TransitGTFSRT, cfg.Board.Stations[1].Transit(), "explicit type wins")
	assert.True(t, cfg.Board.Uses(TransitCTA))
	assert.True(t, cfg.Board.Uses(TransitGTFSRT))

	assert.Equal(t, "tt-key", cfg.CTA.APIKey)
	assert.Equal(t, cta.DefaultURL, cfg.CTA.URL)
	assert.Equal(t, DefaultUpdateInterval, cfg.CTA.UpdateInterval)
	assert.Equal(t, cta.DefaultMaxMinutes, cfg.CTA.MaxMinutes)
}

func TestLoadFromFile_CTAKeyFromEnv(t *testing.T) {
	t.Setenv(EnvCTAKey, "from-env")

	yaml := `
board:
  enableAlerts: false
  lines:
    - {route: Red, stop: "40380"}
`
	cfg, err := LoadFromFile(writeConfig(t, yaml))
	require.NoError(t, err, "a CTA-only board needs no trip updates feed")

	assert.Equal(t, "from-env", cfg.CTA.APIKey)
	assert.False(t, cfg.Board.Uses(TransitGTFSRT))
}

func TestLoadFromFile_CTAErrors(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing api key",
			yaml: `
board:
  enableAlerts: false
  lines:
    - {route: Blue, stop: "40380"}
`,
			wantErr: "cta.apiKey is required",
		},
		{
			name: "unknown transit type",
			yaml: `
feeds:
  tripUpdatesURL: https://example.com/tu
board:
  enableAlerts: false
  lines:
    - {route: UP-N, stop: RAVENSWOOD, transitType: bus}
`,
			wantErr: "invalid configuration",
		},
		{
			name: "gtfsrt line without trip updates url",
			yaml: `
cta:
  apiKey: tt-key
board:
  enableAlerts: false
  lines:
    - {route: Red, stop: "40380"}
    - {route: UP-N, stop: RAVENSWOOD}
`,
			wantErr: "tripUpdatesURL is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFromFile_RateLimit(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML+"server:\n  rateLimit: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Server.RateLimit)

	_, err = LoadFromFile(writeConfig(t, minimalYAML+"server:\n  rateLimit: -2\n"))
	assert.Error(t, err)
}
