package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/schema"
)

// ErrNoData means a source has no record for the requested date.
var ErrNoData = errors.New("no data for date")

// Source provides the raw daily record for a date.
type Source interface {
	Name() string
	Fetch(ctx context.Context, date time.Time) (market.DailyRecord, error)
}

// ManualSource reads desk-entered records from a JSON file holding one record or an array.
// Every record is checked against the market record schema.
type ManualSource struct {
	Path string
}

func (ManualSource) Name() string { return "manual" }

func (s ManualSource) Fetch(_ context.Context, date time.Time) (market.DailyRecord, error) {
	raw, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return market.DailyRecord{}, ErrNoData
	}
	if err != nil {
		return market.DailyRecord{}, fmt.Errorf("manual source: %w", err)
	}
	var items []json.RawMessage
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		items = []json.RawMessage{trimmed}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return market.DailyRecord{}, fmt.Errorf("manual source %s: %w", s.Path, err)
	}
	want := market.Day(date)
	for _, item := range items {
		var probe struct {
			Date string `json:"date"`
		}
		if err := json.Unmarshal(item, &probe); err != nil || probe.Date != want.Format(market.DateLayout) {
			continue
		}
		if err := schema.Validate(schema.MarketRecord, item); err != nil {
			return market.DailyRecord{}, fmt.Errorf("manual source: %w", err)
		}
		var rec market.DailyRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return market.DailyRecord{}, fmt.Errorf("manual source: %w", err)
		}
		return rec, nil
	}
	return market.DailyRecord{}, ErrNoData
}

// CSVSource reads records from a CSV export.
type CSVSource struct {
	Path string
}

func (CSVSource) Name() string { return "csv" }

func (s CSVSource) Fetch(_ context.Context, date time.Time) (market.DailyRecord, error) {
	f, err := os.Open(s.Path)
	if os.IsNotExist(err) {
		return market.DailyRecord{}, ErrNoData
	}
	if err != nil {
		return market.DailyRecord{}, fmt.Errorf("csv source: %w", err)
	}
	defer f.Close()
	recs, err := market.ReadCSV(f)
	if err != nil {
		return market.DailyRecord{}, fmt.Errorf("csv source %s: %w", s.Path, err)
	}
	want := market.Day(date)
	// last row wins when a date repeats
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Date.Equal(want) {
			return recs[i], nil
		}
	}
	return market.DailyRecord{}, ErrNoData
}

// MockSource generates a synthetic weekday record.
type MockSource struct {
	Seed int64
}

func (MockSource) Name() string { return "mock" }

func (s MockSource) Fetch(_ context.Context, date time.Time) (market.DailyRecord, error) {
	d := market.Day(date)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return market.DailyRecord{}, ErrNoData
	}
	recs := market.NewGenerator(s.Seed + d.Unix()/86400).Series(d.AddDate(0, 0, -30), d)
	return recs[len(recs)-1], nil
}

// NewSources builds the sources named in order. Unknown names are an error.
func NewSources(names []string, manualPath, csvPath string, seed int64) ([]Source, error) {
	out := make([]Source, 0, len(names))
	for _, n := range names {
		switch n {
		case "manual":
			out = append(out, ManualSource{Path: manualPath})
		case "csv":
			out = append(out, CSVSource{Path: csvPath})
		case "mock":
			out = append(out, MockSource{Seed: seed})
		default:
			return nil, fmt.Errorf("unknown pipeline source %q", n)
		}
	}
	return out, nil
}

// fetch tries each source in order and returns the first record found.
func fetch(ctx context.Context, sources []Source, date time.Time) (market.DailyRecord, string, error) {
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return market.DailyRecord{}, "", err
		}
		rec, err := src.Fetch(ctx, date)
		if err == nil {
			rec.Date = market.Day(date)
			return rec, src.Name(), nil
		}
		if !errors.Is(err, ErrNoData) {
			observ.Warn("pipeline_source_failed", map[string]any{"source": src.Name(), "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	if len(errs) > 0 {
		return market.DailyRecord{}, "", errors.Join(errs...)
	}
	return market.DailyRecord{}, "", ErrNoData
}
