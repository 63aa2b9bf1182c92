package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bruno-portfolio/basismind/internal/alerts"
	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/store"
)

type staticBook decision.BookState

func (b staticBook) Book() decision.BookState { return decision.BookState(b) }

type collect struct {
	mu  sync.Mutex
	got []alerts.Alert
}

func (c *collect) Name() string { return "collect" }

func (c *collect) Send(_ context.Context, a alerts.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, a)
	return nil
}

func (c *collect) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, a := range c.got {
		out = append(out, a.Key)
	}
	return out
}

type fixture struct {
	p       *Pipeline
	store   *store.Store
	journal *store.Journal
	alerts  *collect
	dir     string
}

func newFixture(t *testing.T, sources ...Source) fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "basismind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	j, err := store.NewJournal(filepath.Join(dir, "decisions.jsonl"))
	require.NoError(t, err)
	eng, err := decision.NewEngine(decision.DefaultConfig())
	require.NoError(t, err)
	col := &collect{}
	cfg := config.Defaults()

	return fixture{
		p: &Pipeline{
			Config:   cfg.Pipeline,
			Triggers: cfg.Alerts.Triggers,
			Sources:  sources,
			Store:    st,
			Journal:  j,
			Engine:   eng,
			Book:     staticBook(decision.DefaultBook()),
			Alerts:   alerts.NewManager(alerts.LevelInfo, col),
		},
		store:   st,
		journal: j,
		alerts:  col,
		dir:     dir,
	}
}

var friday = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

func TestRun_MockEndToEnd(t *testing.T) {
	observ.Reset()
	ctx := context.Background()
	f := newFixture(t, MockSource{Seed: 42})

	n, err := f.p.SeedHistory(ctx, 42, friday, 5)
	require.NoError(t, err)
	assert.Greater(t, n, 1000)
	again, err := f.p.SeedHistory(ctx, 42, friday, 5)
	require.NoError(t, err)
	assert.Zero(t, again)

	res, err := f.p.Run(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, res.Status)
	assert.Equal(t, "mock", res.Source)
	require.NotNil(t, res.Report)
	require.NotNil(t, res.Derivation)
	assert.NotEmpty(t, res.ReportID)

	stored, err := f.store.Report(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, res.ReportID, stored.ID)
	assert.Equal(t, res.Report.Classification.String(), stored.Classification)

	rec, err := f.store.MarketRecord(ctx, friday)
	require.NoError(t, err)
	assert.True(t, rec.PremiumParanagua.Valid)

	decisions, err := f.journal.Entries(store.EntryDecision)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "2024-06-14", decisions[0].Key)

	assert.Contains(t, f.alerts.keys(), "decision:2024-06-14")

	runs, err := f.store.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunSuccess, runs[0].Status)

	assert.Equal(t, int64(1), observ.Counter("pipeline_runs_total", map[string]string{"status": "success"}))
	assert.Equal(t, int64(1), observ.Counter("decision_runs_total", map[string]string{"source": "pipeline"}))
	v, ok := observ.Gauge("pipeline_last_status", nil)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestRun_WeekendIsSkipped(t *testing.T) {
	f := newFixture(t, MockSource{Seed: 1})
	res, err := f.p.Run(context.Background(), friday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, store.RunSkipped, res.Status)
	assert.Nil(t, res.Report)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRun_RejectsInconsistentRecord(t *testing.T) {
	observ.Reset()
	ctx := context.Background()
	f := newFixture(t)
	path := writeFile(t, f.dir, "manual.json", `[{"date":"2024-06-14","premium_paranagua":80,"chicago_front":1200,"usd_brl":5.2,
		"fob_paranagua":480,"fob_us_gulf":470,"lineup_bruto":50,"lineup_liquido":60}]`)
	f.p.Sources = []Source{ManualSource{Path: path}}

	res, err := f.p.Run(ctx, friday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Equal(t, store.RunFailed, res.Status)

	issues, err := f.store.Issues(ctx, friday)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	_, err = f.store.MarketRecord(ctx, friday)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, int64(1), observ.Counter("pipeline_failures_total", nil))
	assert.Equal(t, "failed", observ.CurrentHealth().Status)
}

func TestRun_FallsBackToCSVAndAlertsOnLogistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.p.SeedHistory(ctx, 7, friday, 3)
	require.NoError(t, err)

	csvPath := writeFile(t, f.dir, "daily.csv",
		"date,premium_paranagua,chicago_front,usd_brl,fob_paranagua,fob_us_gulf,lineup_bruto,lineup_liquido,cancelamentos_7d,exports_weekly_tons,manual_event\n"+
			"2024-06-14,85,1210,5.25,480,470,90,84,3,2500000,strike at Paranagua\n")
	f.p.Sources = []Source{ManualSource{Path: filepath.Join(f.dir, "missing.json")}, CSVSource{Path: csvPath}}

	res, err := f.p.Run(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, "csv", res.Source)
	assert.True(t, res.Triggers.Logistics)
	require.NotNil(t, res.Report.DominantOverride)
	assert.Equal(t, decision.OverrideLogistics, res.Report.DominantOverride.ID)
	assert.True(t, res.Report.Physical.Urgent)

	keys := f.alerts.keys()
	assert.Contains(t, keys, "logistics:2024-06-14")
	assert.Contains(t, keys, "override_logistics:2024-06-14")
}

func TestRun_ManualSourceSchemaError(t *testing.T) {
	f := newFixture(t)
	path := writeFile(t, f.dir, "manual.json", `{"date":"2024-06-14","premium_paranagua":"lots","chicago_front":1200,"fob_paranagua":480,"fob_us_gulf":470}`)
	f.p.Sources = []Source{ManualSource{Path: path}, MockSource{Seed: 3}}

	// the schema failure is logged and the mock source answers
	res, err := f.p.Run(context.Background(), friday)
	require.NoError(t, err)
	assert.Equal(t, "mock", res.Source)

	f.p.Sources = []Source{ManualSource{Path: path}}
	_, err = f.p.Run(context.Background(), friday)
	assert.ErrorContains(t, err, "market_record payload invalid")
}

func TestRunRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, MockSource{Seed: 11})
	_, err := f.p.SeedHistory(ctx, 11, friday, 3)
	require.NoError(t, err)

	out, err := f.p.RunRange(ctx, friday, friday.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, out, 4)
	var statuses []string
	for _, r := range out {
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []string{store.RunSuccess, store.RunSkipped, store.RunSkipped, store.RunSuccess}, statuses)

	list, err := f.store.ListReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-06-17", list[0].Date)
}

func TestNewSources(t *testing.T) {
	srcs, err := NewSources([]string{"manual", "csv", "mock"}, "a.json", "b.csv", 1)
	require.NoError(t, err)
	require.Len(t, srcs, 3)
	assert.Equal(t, "csv", srcs[1].Name())

	_, err = NewSources([]string{"ftp"}, "", "", 0)
	assert.Error(t, err)
}
