// Package pipeline runs the daily flow: fetch the raw record, validate and store it, derive
// the indicators, run the engine, persist the report and raise alerts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bruno-portfolio/basismind/internal/alerts"
	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/store"
)

// BookSource supplies the desk book at decision time.
type BookSource interface {
	Book() decision.BookState
}

// Pipeline wires the sources, store, engine and alerts together. Journal and Alerts may be nil.
type Pipeline struct {
	Config   config.Pipeline
	Triggers config.Triggers
	Sources  []Source
	Store    *store.Store
	Journal  *store.Journal
	Engine   *decision.Engine
	Book     BookSource
	Alerts   *alerts.Manager

	now func() time.Time
}

// Result is the outcome of one daily run.
type Result struct {
	RunID      string                  `json:"run_id"`
	Date       string                  `json:"date"`
	Status     string                  `json:"status"`
	Source     string                  `json:"source,omitempty"`
	Issues     []market.Issue          `json:"issues,omitempty"`
	Derivation *market.Derivation      `json:"derivation,omitempty"`
	Report     *decision.DecisionReport `json:"report,omitempty"`
	ReportID   string                  `json:"report_id,omitempty"`
	Triggers   alerts.TriggerCheck     `json:"triggers"`
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Run executes the pipeline for one date. A date with no data in any source is skipped and
// recorded as such. Failures are recorded in the run log and returned.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (Result, error) {
	started := p.clock()
	day := market.Day(date)
	res := Result{Date: day.Format(market.DateLayout)}
	run := store.PipelineRun{Date: res.Date, StartedAt: started}

	err := p.run(ctx, day, &res, &run)
	run.Duration = p.clock().Sub(started)
	switch {
	case errors.Is(err, ErrNoData):
		run.Status = store.RunSkipped
		err = nil
	case err != nil:
		run.Status = store.RunFailed
		run.Error = err.Error()
	default:
		run.Status = store.RunSuccess
	}
	res.Status = run.Status

	id, logErr := p.Store.LogRun(context.WithoutCancel(ctx), run)
	if logErr != nil {
		observ.Error("pipeline_run_log_failed", logErr, map[string]any{"date": res.Date})
	}
	res.RunID = id
	p.recordMetrics(res, run, err)
	if p.Journal != nil {
		if jErr := p.Journal.Append(store.EntryRun, res.Date, run); jErr != nil {
			observ.Error("journal_append_failed", jErr, map[string]any{"type": store.EntryRun})
		}
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, day time.Time, res *Result, run *store.PipelineRun) error {
	rec, src, err := fetch(ctx, p.Sources, day)
	if err != nil {
		return err
	}
	res.Source, run.Source, run.Records = src, src, 1

	history, err := p.Store.MarketHistory(ctx, day, p.Config.HistoryDays)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	ok, issues := market.ValidateRecord(rec, history, p.Config.AnomalySigma)
	res.Issues, run.Issues = issues, len(issues)
	if len(issues) > 0 {
		observ.IncCounterBy("data_quality_issues_total", map[string]string{"source": src}, int64(len(issues)))
		if err := p.Store.LogIssues(ctx, day, issues); err != nil {
			return fmt.Errorf("log issues: %w", err)
		}
	}
	if !ok {
		return fmt.Errorf("record %s from %s rejected: %s", res.Date, src, firstError(issues))
	}
	if err := p.Store.UpsertMarket(ctx, src, rec); err != nil {
		return fmt.Errorf("store record: %w", err)
	}

	d, err := market.Derive(history, rec)
	if err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	if rate := market.MissingRate(recent(history, 20)); len(history) > 0 && rate > p.Config.MaxMissingRate {
		d.Warnings = append(d.Warnings, fmt.Sprintf("recent history missing rate %.0f%% above %.0f%%", rate*100, p.Config.MaxMissingRate*100))
	}
	for _, w := range d.Warnings {
		observ.Warn("derivation_warning", map[string]any{"date": res.Date, "warning": w})
	}
	res.Derivation = &d

	t0 := p.clock()
	rep, err := p.Engine.Run(d.Inputs, p.Book.Book())
	observ.RecordDecision("pipeline", rep.FiredIDs(), p.clock().Sub(t0), err)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	res.Report = &rep

	if res.ReportID, err = p.Store.SaveReport(ctx, rep, d.Inputs); err != nil {
		return err
	}
	if p.Journal != nil {
		if err := p.Journal.Append(store.EntryDecision, res.Date, rep); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	observ.Log("decision", map[string]any{
		"date":           res.Date,
		"source":         src,
		"classification": rep.Classification.String(),
		"score":          rep.AggregateScore,
		"physical":       rep.Physical.Action.String(),
		"hedge":          rep.Hedge.Action.String(),
		"overrides":      rep.FiredIDs(),
	})

	res.Triggers = alerts.CheckTriggers(d, p.Triggers)
	if p.Alerts != nil {
		batch := append(alerts.TriggerAlerts(d, res.Triggers), alerts.DecisionAlerts(rep)...)
		if err := p.Alerts.SendAll(ctx, batch); err != nil {
			// a failed notification does not fail the run
			observ.Error("pipeline_alerts_failed", err, map[string]any{"date": res.Date})
		}
	}
	return nil
}

func (p *Pipeline) recordMetrics(res Result, run store.PipelineRun, err error) {
	observ.IncCounter("pipeline_runs_total", map[string]string{"status": run.Status})
	observ.RecordDuration("pipeline_run", run.Duration, nil)
	if run.Source != "" {
		observ.SetInfo("pipeline_last_source", run.Source)
	}
	switch run.Status {
	case store.RunFailed:
		observ.IncCounter("pipeline_failures_total", nil)
		observ.SetGauge("pipeline_last_status", 0, nil)
		observ.Error("pipeline_failed", err, map[string]any{"date": res.Date, "source": run.Source})
	case store.RunSuccess:
		observ.SetGauge("pipeline_last_status", 1, nil)
		observ.SetGauge("pipeline_last_success_unix", float64(p.clock().Unix()), nil)
		observ.Log("pipeline_completed", map[string]any{
			"date": res.Date, "source": run.Source, "issues": run.Issues, "duration_ms": run.Duration.Milliseconds(),
		})
	default:
		observ.Log("pipeline_skipped", map[string]any{"date": res.Date})
	}
}

// RunRange runs every date from `from` to `to` inclusive, in order. Each day sees the rows
// stored by the days before it. It stops at the first failure.
func (p *Pipeline) RunRange(ctx context.Context, from, to time.Time) ([]Result, error) {
	var out []Result
	for d := market.Day(from); !d.After(market.Day(to)); d = d.AddDate(0, 0, 1) {
		res, err := p.Run(ctx, d)
		out = append(out, res)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// SeedHistory fills an empty store with synthetic history ending the day before `end`.
// It returns the number of rows written.
func (p *Pipeline) SeedHistory(ctx context.Context, seed int64, end time.Time, years int) (int, error) {
	n, err := p.Store.CountMarket(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	recs := market.HistoryUntil(seed, end, years)
	if err := p.Store.UpsertMarket(ctx, "mock", recs...); err != nil {
		return 0, fmt.Errorf("seed history: %w", err)
	}
	observ.Log("history_seeded", map[string]any{"rows": len(recs), "until": market.Day(end).Format(market.DateLayout)})
	return len(recs), nil
}

func firstError(issues []market.Issue) string {
	for _, is := range issues {
		if is.Severity == market.SeverityError {
			return is.Message
		}
	}
	return "unknown"
}

func recent(rs []market.DailyRecord, n int) []market.DailyRecord {
	if len(rs) <= n {
		return rs
	}
	return rs[len(rs)-n:]
}
