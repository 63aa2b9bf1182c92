package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/portfolio"
	"github.com/bruno-portfolio/basismind/internal/schema"
)

func readPayload(path, name string, v any) {
	var b []byte
	var err error
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	if err := schema.Validate(name, b); err != nil {
		log.Fatalf("%s: %v", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.Fatalf("json %s: %v", path, err)
	}
}

// scenarioInputs derives today's inputs from a synthetic scenario.
func scenarioInputs(name string) decision.MarketInputs {
	sc, err := market.LookupScenario(name)
	if err != nil {
		log.Fatal(err)
	}
	recs := sc.Generate(365 * 3)
	d, err := market.Derive(recs[:len(recs)-1], recs[len(recs)-1])
	if err != nil {
		log.Fatalf("derive %s: %v", name, err)
	}
	for _, w := range d.Warnings {
		observ.Warn("derivation_warning", map[string]any{"scenario": name, "warning": w})
	}
	return d.Inputs
}

func main() {
	log.SetFlags(0)
	var cfgPath, inputsPath, bookPath, scenario string
	var useDesk, pretty bool
	flag.StringVar(&cfgPath, "config", "", "config path (defaults when empty)")
	flag.StringVar(&inputsPath, "inputs", "", "market inputs JSON file, - for stdin")
	flag.StringVar(&scenario, "scenario", "", "derive inputs from a synthetic scenario instead")
	flag.StringVar(&bookPath, "book", "", "book JSON file (config book when empty)")
	flag.BoolVar(&useDesk, "desk-book", false, "use the persisted desk book from pipeline.book_path")
	flag.BoolVar(&pretty, "pretty", false, "indent the report")
	flag.Parse()

	cfg := config.Defaults()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	observ.SetLevel(observ.ParseLevel(cfg.Log.Level))
	// keep stdout for the report
	observ.SetOutput(os.Stderr)

	var in decision.MarketInputs
	switch {
	case inputsPath != "":
		readPayload(inputsPath, schema.Inputs, &in)
	case scenario != "":
		in = scenarioInputs(scenario)
	default:
		log.Fatal("one of -inputs or -scenario is required")
	}

	book := cfg.Book
	switch {
	case bookPath != "":
		readPayload(bookPath, schema.Book, &book)
	case useDesk:
		m := portfolio.NewManager(cfg.Pipeline.BookPath, cfg.Book)
		if err := m.Load(); err != nil {
			log.Fatalf("load book: %v", err)
		}
		book = m.Book()
	}

	eng, err := decision.NewEngine(cfg.Engine)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	start := time.Now()
	rep, err := eng.Run(in, book)
	observ.RecordDecision("cli", rep.FiredIDs(), time.Since(start), err)
	if err != nil {
		log.Fatalf("decide: %v", err)
	}

	var out []byte
	if pretty {
		out, err = json.MarshalIndent(rep, "", "  ")
	} else {
		out, err = json.Marshal(rep)
	}
	if err != nil {
		log.Fatalf("encode report: %v", err)
	}
	fmt.Println(string(out))
	observ.Log("decision", map[string]any{
		"date":           rep.View().ReferenceDate,
		"classification": rep.Classification.String(),
		"physical":       rep.Physical.Action.String(),
		"hedge":          rep.Hedge.Action.String(),
		"overrides":      rep.FiredIDs(),
	})
}
