package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bruno-portfolio/basismind/internal/decision"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_FillsDefaults(t *testing.T) {
	p := writeFile(t, "config.yaml", "http:\n  addr: \":9090\"\n")

	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.HTTP.Addr)
	assert.Equal(t, "data/basismind.db", c.Store.DBPath)
	assert.Equal(t, 20, c.Alerts.Slack.RateLimitPerMin)
	assert.Equal(t, []string{"manual", "csv", "mock"}, c.Pipeline.Sources)
	assert.Equal(t, decision.DefaultConfig().Weights, c.Engine.Weights)
	assert.Equal(t, 80.0, c.Book.LongLimitPct)
	assert.True(t, c.Journal.Enabled)
}

func TestLoad_EngineOverride(t *testing.T) {
	p := writeFile(t, "config.yaml", `
engine:
  overrides:
    competitiveness:
      spread_above_usd: 20
book:
  limite_long_pct: 60
  hedge_meta_pct: 40
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 20.0, c.Engine.Overrides.Competitiveness.SpreadAboveUSD)
	assert.Equal(t, 60.0, c.Book.LongLimitPct)
	assert.Equal(t, -50.0, c.Book.ShortLimitPct)
	assert.Equal(t, 40.0, c.Book.HedgeTargetPct)

	_, err = decision.NewEngine(c.Engine)
	assert.NoError(t, err)
}

func TestLoad_InvalidEngine(t *testing.T) {
	p := writeFile(t, "config.yaml", `
engine:
  weights:
    lineup: 0.9
`)
	_, err := Load(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, decision.ErrConfiguration))
}

func TestLoad_InvalidBook(t *testing.T) {
	p := writeFile(t, "config.yaml", "book:\n  limite_short_pct: 10\n")
	_, err := Load(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, decision.ErrValidation))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	p := writeFile(t, "bad.yaml", "http: [unterminated\n")
	_, err = Load(p)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BASISMIND_DB_PATH", "/tmp/x.db")
	t.Setenv("BASISMIND_HTTP_ADDR", "127.0.0.1:7000")
	t.Setenv("BASISMIND_SLACK_WEBHOOK", "https://hooks.example.test/abc")
	t.Setenv("BASISMIND_LOG_LEVEL", "DEBUG")

	c := Defaults()
	c.ApplyEnv()

	assert.Equal(t, "/tmp/x.db", c.Store.DBPath)
	assert.Equal(t, "127.0.0.1:7000", c.HTTP.Addr)
	assert.True(t, c.Alerts.Slack.Enabled)
	assert.Equal(t, "https://hooks.example.test/abc", c.Alerts.Slack.WebhookURL)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadEnv(t *testing.T) {
	p := writeFile(t, ".env", "BASISMIND_TEST_ONLY_KEY=from-file\n")
	t.Setenv("BASISMIND_TEST_ONLY_KEY", "")
	os.Unsetenv("BASISMIND_TEST_ONLY_KEY")

	require.NoError(t, LoadEnv(p, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("BASISMIND_TEST_ONLY_KEY"))
}

func TestLoad_ExampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "basismind.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, decision.DefaultConfig(), c.Engine)
	assert.Equal(t, decision.DefaultBook(), c.Book)
	assert.Equal(t, []string{"manual", "csv", "mock"}, c.Pipeline.Sources)
	assert.Equal(t, "data/alerts.jsonl", c.Alerts.FilePath)
}
