// Package app wires the store, journal, engine, book, alerts and pipeline from a config.Root.
package app

import (
	"errors"
	"fmt"

	"github.com/bruno-portfolio/basismind/internal/alerts"
	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/pipeline"
	"github.com/bruno-portfolio/basismind/internal/portfolio"
	"github.com/bruno-portfolio/basismind/internal/store"
)

// App holds the long-lived components shared by the pipeline and server binaries.
type App struct {
	Config   config.Root
	Store    *store.Store
	Journal  *store.Journal
	Engine   *decision.Engine
	Book     *portfolio.Manager
	Alerts   *alerts.Manager
	Slack    *alerts.SlackClient
	Pipeline *pipeline.Pipeline
}

// New builds every component. On error the parts already opened are closed.
func New(cfg config.Root) (_ *App, err error) {
	observ.SetLevel(observ.ParseLevel(cfg.Log.Level))
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Engine, err = decision.NewEngine(cfg.Engine); err != nil {
		return nil, err
	}
	if a.Store, err = store.Open(cfg.Store.DBPath); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.Journal.Enabled {
		if a.Journal, err = store.NewJournal(cfg.Journal.Path); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	a.Book = portfolio.NewManager(cfg.Pipeline.BookPath, cfg.Book)
	if err = a.Book.Load(); err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}

	if a.Alerts, err = a.buildAlerts(); err != nil {
		return nil, err
	}

	sources, err := pipeline.NewSources(cfg.Pipeline.Sources, cfg.Pipeline.ManualPath, cfg.Pipeline.CSVPath, cfg.Pipeline.MockSeed)
	if err != nil {
		return nil, err
	}
	a.Pipeline = &pipeline.Pipeline{
		Config:   cfg.Pipeline,
		Triggers: cfg.Alerts.Triggers,
		Sources:  sources,
		Store:    a.Store,
		Journal:  a.Journal,
		Engine:   a.Engine,
		Book:     a.Book,
		Alerts:   a.Alerts,
	}

	observ.Log("startup", map[string]any{
		"db_path":       cfg.Store.DBPath,
		"journal":       cfg.Journal.Enabled,
		"sources":       cfg.Pipeline.Sources,
		"slack_enabled": a.Slack != nil,
		"book_version":  a.Book.Snapshot().Version,
	})
	return a, nil
}

func (a *App) buildAlerts() (*alerts.Manager, error) {
	minLevel, err := alerts.ParseLevel(a.Config.Alerts.MinLevel)
	if err != nil {
		return nil, err
	}
	m := alerts.NewManager(minLevel, alerts.LogHandler{})
	if p := a.Config.Alerts.FilePath; p != "" {
		j, err := store.NewJournal(p)
		if err != nil {
			return nil, fmt.Errorf("open alert file: %w", err)
		}
		m.AddHandler(alerts.FileHandler{Journal: j})
	}
	if s := a.Config.Alerts.Slack; s.Enabled {
		if s.WebhookURL == "" {
			return nil, errors.New("slack enabled without webhook_url")
		}
		a.Slack = alerts.NewSlackClient(s)
		m.AddHandler(a.Slack)
		observ.Log("slack_init", map[string]any{"channel": s.Channel, "rate_limit_per_min": s.RateLimitPerMin})
	}
	return m, nil
}

// Close drains the Slack queue and closes the store.
func (a *App) Close() {
	if a.Slack != nil {
		a.Slack.Close()
		m := a.Slack.GetMetrics()
		observ.SetGauge("slack_alerts_sent_total", float64(m.AlertsSentTotal), nil)
		observ.SetGauge("slack_webhook_errors_total", float64(m.WebhookErrorsTotal), nil)
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			observ.Error("store_close_failed", err, nil)
		}
	}
}
