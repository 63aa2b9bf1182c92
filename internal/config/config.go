package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bruno-portfolio/basismind/internal/decision"
)

type Store struct {
	DBPath string `yaml:"db_path"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type HTTP struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

type Slack struct {
	Enabled         bool   `yaml:"enabled"`
	WebhookURL      string `yaml:"webhook_url"`
	Channel         string `yaml:"channel"`
	Username        string `yaml:"username"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	MaxRetries      int    `yaml:"max_retries"`
}

// Triggers are the day-over-day moves that raise an alert independently of the decision.
type Triggers struct {
	LineupSwingPct   float64 `yaml:"lineup_swing_pct"`
	PremiumSigma     float64 `yaml:"premium_sigma"`
	ChicagoWeeklyPct float64 `yaml:"chicago_weekly_pct"`
}

type Alerts struct {
	MinLevel string   `yaml:"min_level"` // info | warning | critical
	FilePath string   `yaml:"file_path"`
	Slack    Slack    `yaml:"slack"`
	Triggers Triggers `yaml:"triggers"`
}

type Pipeline struct {
	Sources        []string `yaml:"sources"` // tried in order: manual, csv, mock
	ManualPath     string   `yaml:"manual_path"`
	CSVPath        string   `yaml:"csv_path"`
	BookPath       string   `yaml:"book_path"`
	HistoryDays    int      `yaml:"history_days"`
	AnomalySigma   float64  `yaml:"anomaly_sigma"`
	MaxMissingRate float64  `yaml:"max_missing_rate"`
	MockSeed       int64    `yaml:"mock_seed"`
}

type Log struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type Root struct {
	Engine   decision.Config    `yaml:"engine"`
	Book     decision.BookState `yaml:"book"`
	Store    Store              `yaml:"store"`
	Journal  Journal            `yaml:"journal"`
	HTTP     HTTP               `yaml:"http"`
	Alerts   Alerts             `yaml:"alerts"`
	Pipeline Pipeline           `yaml:"pipeline"`
	Log      Log                `yaml:"log"`
}

// Defaults returns a Root with the production engine calibration and the desk's default book.
func Defaults() Root {
	c := Root{
		Engine:  decision.DefaultConfig(),
		Book:    decision.DefaultBook(),
		Journal: Journal{Enabled: true},
	}
	fillDefaults(&c)
	return c
}

// Load reads a YAML file over Defaults. Engine settings missing from the file keep their
// defaults; an invalid engine section fails with decision.ErrConfiguration.
func Load(path string) (Root, error) {
	c := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	fillDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the engine section and the default book.
func (c Root) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := decision.ValidateBook(c.Book); err != nil {
		return fmt.Errorf("book: %w", err)
	}
	return nil
}

func fillDefaults(c *Root) {
	if c.Store.DBPath == "" {
		c.Store.DBPath = "data/basismind.db"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/decisions.jsonl"
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeoutMs == 0 {
		c.HTTP.ReadTimeoutMs = 5000
	}
	if c.HTTP.WriteTimeoutMs == 0 {
		c.HTTP.WriteTimeoutMs = 10000
	}

	if c.Alerts.MinLevel == "" {
		c.Alerts.MinLevel = "info"
	}
	if c.Alerts.Slack.Username == "" {
		c.Alerts.Slack.Username = "BasisMind"
	}
	if c.Alerts.Slack.RateLimitPerMin == 0 {
		c.Alerts.Slack.RateLimitPerMin = 20
	}
	if c.Alerts.Slack.TimeoutMs == 0 {
		c.Alerts.Slack.TimeoutMs = 5000
	}
	if c.Alerts.Slack.MaxRetries == 0 {
		c.Alerts.Slack.MaxRetries = 3
	}
	if c.Alerts.Triggers.LineupSwingPct == 0 {
		c.Alerts.Triggers.LineupSwingPct = 20
	}
	if c.Alerts.Triggers.PremiumSigma == 0 {
		c.Alerts.Triggers.PremiumSigma = 2
	}
	if c.Alerts.Triggers.ChicagoWeeklyPct == 0 {
		c.Alerts.Triggers.ChicagoWeeklyPct = 5
	}

	if len(c.Pipeline.Sources) == 0 {
		c.Pipeline.Sources = []string{"manual", "csv", "mock"}
	}
	if c.Pipeline.ManualPath == "" {
		c.Pipeline.ManualPath = "data/manual_input.json"
	}
	if c.Pipeline.CSVPath == "" {
		c.Pipeline.CSVPath = "data/market_data.csv"
	}
	if c.Pipeline.BookPath == "" {
		c.Pipeline.BookPath = "data/book.json"
	}
	if c.Pipeline.HistoryDays == 0 {
		c.Pipeline.HistoryDays = 365 * 5
	}
	if c.Pipeline.AnomalySigma == 0 {
		c.Pipeline.AnomalySigma = 4
	}
	if c.Pipeline.MaxMissingRate == 0 {
		c.Pipeline.MaxMissingRate = 0.2
	}
	if c.Pipeline.MockSeed == 0 {
		c.Pipeline.MockSeed = 42
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// LoadEnv loads .env files into the process environment. Missing files are skipped and
// variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides deployment keys from BASISMIND_* variables.
func (c *Root) ApplyEnv() {
	if v := os.Getenv("BASISMIND_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("BASISMIND_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("BASISMIND_SLACK_WEBHOOK"); v != "" {
		c.Alerts.Slack.WebhookURL = v
		c.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("BASISMIND_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}
