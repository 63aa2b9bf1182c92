package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
)

type outcome struct {
	Scenario string                  `json:"scenario"`
	Inputs   decision.MarketInputs   `json:"inputs"`
	Report   decision.DecisionReport `json:"report"`
	Warnings []string                `json:"warnings,omitempty"`
}

func replay(eng *decision.Engine, book decision.BookState, sc market.Scenario, days int, csvDir string) (outcome, error) {
	recs := sc.Generate(days)
	if len(recs) < 2 {
		return outcome{}, fmt.Errorf("scenario %s produced %d records", sc.Name, len(recs))
	}
	if csvDir != "" {
		f, err := os.Create(filepath.Join(csvDir, sc.Name+".csv"))
		if err != nil {
			return outcome{}, err
		}
		err = market.WriteCSV(f, recs)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return outcome{}, fmt.Errorf("export %s: %w", sc.Name, err)
		}
	}
	d, err := market.Derive(recs[:len(recs)-1], recs[len(recs)-1])
	if err != nil {
		return outcome{}, fmt.Errorf("derive %s: %w", sc.Name, err)
	}
	start := time.Now()
	rep, err := eng.Run(d.Inputs, book)
	observ.RecordDecision("replay", rep.FiredIDs(), time.Since(start), err)
	if err != nil {
		return outcome{}, fmt.Errorf("decide %s: %w", sc.Name, err)
	}
	return outcome{Scenario: sc.Name, Inputs: d.Inputs, Report: rep, Warnings: d.Warnings}, nil
}

func main() {
	log.SetFlags(0)
	var cfgPath, names, csvDir string
	var days int
	flag.StringVar(&cfgPath, "config", "", "config path (defaults when empty)")
	flag.StringVar(&names, "scenarios", strings.Join(market.ScenarioNames(), ","), "comma separated scenarios")
	flag.IntVar(&days, "days", 365*3, "calendar days of history per scenario")
	flag.StringVar(&csvDir, "csv-dir", "", "export each scenario series as CSV into this directory")
	flag.Parse()

	cfg := config.Defaults()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	observ.SetOutput(os.Stderr)
	observ.SetLevel(observ.ParseLevel(cfg.Log.Level))

	eng, err := decision.NewEngine(cfg.Engine)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	if csvDir != "" {
		if err := os.MkdirAll(csvDir, 0o755); err != nil {
			log.Fatalf("csv dir: %v", err)
		}
	}

	var scs []market.Scenario
	for _, n := range strings.Split(names, ",") {
		sc, err := market.LookupScenario(strings.TrimSpace(n))
		if err != nil {
			log.Fatal(err)
		}
		scs = append(scs, sc)
	}

	// one engine serves every scenario concurrently
	out := make([]outcome, len(scs))
	g, _ := errgroup.WithContext(context.Background())
	for i, sc := range scs {
		i, sc := i, sc
		g.Go(func() error {
			o, err := replay(eng, cfg.Book, sc, days, csvDir)
			out[i] = o
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("replay: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, o := range out {
		if err := enc.Encode(o); err != nil {
			log.Fatalf("encode %s: %v", o.Scenario, err)
		}
		observ.Log("replay_scenario", map[string]any{
			"scenario":       o.Scenario,
			"classification": o.Report.Classification.String(),
			"score":          o.Report.AggregateScore,
			"overrides":      o.Report.FiredIDs(),
		})
	}
}
