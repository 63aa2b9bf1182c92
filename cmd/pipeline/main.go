package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bruno-portfolio/basismind/internal/app"
	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/pipeline"
)

func parseDay(flagName, v string) time.Time {
	d, err := market.ParseDate(v)
	if err != nil {
		log.Fatalf("-%s must be YYYY-MM-DD: %v", flagName, err)
	}
	return d
}

func main() {
	log.SetFlags(0)
	var cfgPath, envFile, date, from, to string
	var seedYears int
	flag.StringVar(&cfgPath, "config", "", "config path (defaults when empty)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file")
	flag.StringVar(&date, "date", "", "reference date (today when empty)")
	flag.StringVar(&from, "from", "", "first date of a backfill range")
	flag.StringVar(&to, "to", "", "last date of a backfill range (inclusive)")
	flag.IntVar(&seedYears, "seed-history", 0, "seed an empty store with this many years of synthetic history")
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

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	first, last := market.Day(time.Now().UTC()), market.Day(time.Now().UTC())
	switch {
	case from != "" || to != "":
		if from == "" || to == "" {
			log.Fatal("-from and -to go together")
		}
		first, last = parseDay("from", from), parseDay("to", to)
		if last.Before(first) {
			log.Fatal("-to is before -from")
		}
	case date != "":
		first = parseDay("date", date)
		last = first
	}

	if seedYears > 0 {
		if _, err := a.Pipeline.SeedHistory(ctx, cfg.Pipeline.MockSeed, first, seedYears); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	results, runErr := a.Pipeline.RunRange(ctx, first, last)
	enc := json.NewEncoder(os.Stdout)
	for _, r := range results {
		_ = enc.Encode(summary(r))
	}
	if runErr != nil {
		observ.Error("pipeline_aborted", runErr, map[string]any{"runs": len(results)})
		a.Close()
		os.Exit(1)
	}
}

type runSummary struct {
	Date           string   `json:"date"`
	Status         string   `json:"status"`
	Source         string   `json:"source,omitempty"`
	Issues         int      `json:"issues"`
	Classification string   `json:"classification,omitempty"`
	Physical       string   `json:"physical,omitempty"`
	Hedge          string   `json:"hedge,omitempty"`
	Overrides      []string `json:"overrides,omitempty"`
	ReportID       string   `json:"report_id,omitempty"`
}

func summary(r pipeline.Result) runSummary {
	s := runSummary{Date: r.Date, Status: r.Status, Source: r.Source, Issues: len(r.Issues), ReportID: r.ReportID}
	if r.Report != nil {
		s.Classification = r.Report.Classification.String()
		s.Physical = r.Report.Physical.Action.String()
		s.Hedge = r.Report.Hedge.Action.String()
		s.Overrides = r.Report.FiredIDs()
	}
	return s
}
