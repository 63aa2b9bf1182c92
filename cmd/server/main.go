package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bruno-portfolio/basismind/internal/app"
	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/transport"
	"github.com/bruno-portfolio/basismind/internal/transport/httpapi"
)

// schedule runs the pipeline for the current day every interval until ctx ends.
func schedule(ctx context.Context, a *app.App, hub *transport.Hub, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			res, err := a.Pipeline.Run(ctx, time.Now().UTC())
			if err != nil {
				// logged by the pipeline; the next tick retries
				continue
			}
			if _, err := hub.Publish(httpapi.EventRun, res); err != nil {
				observ.Error("event_publish_failed", err, map[string]any{"type": httpapi.EventRun})
			}
			if res.Report != nil {
				_, _ = hub.Publish(httpapi.EventDecision, *res.Report)
			}
		}
	}
}

func main() {
	log.SetFlags(0)
	var cfgPath, envFile, version string
	var every time.Duration
	var seedYears int
	flag.StringVar(&cfgPath, "config", "", "config path (defaults when empty)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file")
	flag.DurationVar(&every, "schedule", 0, "run the pipeline on this interval (off when zero)")
	flag.IntVar(&seedYears, "seed-history", 0, "seed an empty store with this many years of synthetic history")
	flag.StringVar(&version, "version", "dev", "version reported by /healthz")
	flag.Parse()

	if err := config.LoadEnv(envFile); err != nil {
		log.Fatal(err)
	}
	cfg := config.Defaults()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	cfg.ApplyEnv()
	observ.SetVersion(version)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seedYears > 0 {
		if _, err := a.Pipeline.SeedHistory(ctx, cfg.Pipeline.MockSeed, time.Now().UTC(), seedYears); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	hub := transport.NewHub(200)
	srv, err := httpapi.NewServer(httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutMs) * time.Millisecond,
		Engine:       a.Engine,
		Store:        a.Store,
		Book:         a.Book,
		Pipeline:     a.Pipeline,
		Hub:          hub,
	})
	if err != nil {
		log.Fatalf("http: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if every > 0 {
		observ.Log("pipeline_schedule", map[string]any{"every": every.String()})
		g.Go(func() error { return schedule(gctx, a, hub, every) })
	}
	if err := g.Wait(); err != nil {
		observ.Error("server_stopped", err, nil)
		a.Close()
		os.Exit(1)
	}
	observ.Log("shutdown", nil)
}
