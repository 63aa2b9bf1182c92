package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	name string
	got  []Alert
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.err
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelInfo, "info": LevelInfo, "WARNING": LevelWarning, "critical": LevelCritical} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestManager_FiltersAndCounts(t *testing.T) {
	observ.Reset()
	rec := &recorder{name: "rec"}
	m := NewManager(LevelWarning, rec)

	ctx := context.Background()
	require.NoError(t, m.Send(ctx, Alert{Level: LevelInfo, Title: "quiet"}))
	require.NoError(t, m.Send(ctx, Alert{Level: LevelCritical, Title: "loud"}))

	require.Len(t, rec.got, 1)
	assert.Equal(t, "loud", rec.got[0].Title)
	assert.False(t, rec.got[0].Timestamp.IsZero())
	assert.Equal(t, int64(1), observ.Counter("alerts_sent_total", map[string]string{"handler": "rec"}))
	assert.Equal(t, int64(1), observ.Counter("alerts_filtered_total", map[string]string{"level": "info"}))
}

func TestManager_JoinsHandlerErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recorder{name: "ok"}
	m := NewManager(LevelInfo, &recorder{name: "bad", err: boom})
	m.AddHandler(ok)

	err := m.SendAll(context.Background(), []Alert{{Level: LevelWarning, Title: "a"}, {Level: LevelWarning, Title: "b"}})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.got, 2)
}

func TestFileHandler(t *testing.T) {
	j, err := store.NewJournal(filepath.Join(t.TempDir(), "alerts.jsonl"))
	require.NoError(t, err)
	m := NewManager(LevelInfo, LogHandler{}, FileHandler{Journal: j})
	require.NoError(t, m.Send(context.Background(), Alert{Level: LevelWarning, Title: "t", Key: "k1"}))

	entries, err := j.Entries(store.EntryAlert)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k1", entries[0].Key)
	var a map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Data, &a))
	assert.Equal(t, "warning", a["level"])
}

func TestCheckTriggers(t *testing.T) {
	th := config.Defaults().Alerts.Triggers
	base := market.Derivation{Inputs: decision.MarketInputs{Date: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)}}

	tests := []struct {
		name string
		mod  func(d *market.Derivation)
		want TriggerCheck
	}{
		{"quiet", func(d *market.Derivation) {}, TriggerCheck{}},
		{"lineup swing", func(d *market.Derivation) {
			d.Inputs.LineupWeeklyVarPct, d.PrevLineupVarPct, d.HasPrevLineupVar = 15, -10, true
		}, TriggerCheck{LineupSwing: true}},
		{"swing without previous week", func(d *market.Derivation) {
			d.Inputs.LineupWeeklyVarPct = 40
		}, TriggerCheck{}},
		{"premium move", func(d *market.Derivation) { d.PremiumMoveZ = -2.5 }, TriggerCheck{PremiumMove: true}},
		{"logistics", func(d *market.Derivation) { d.Inputs.LogisticsFlagActive = true }, TriggerCheck{Logistics: true}},
		{"chicago at threshold", func(d *market.Derivation) { d.ChicagoVar5dPct = 5 }, TriggerCheck{}},
		{"chicago drop", func(d *market.Derivation) { d.ChicagoVar5dPct = -6 }, TriggerCheck{ChicagoWeekly: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mod(&d)
			got := CheckTriggers(d, th)
			assert.Equal(t, tt.want, got)
			as := TriggerAlerts(d, got)
			assert.Equal(t, got.Any(), len(as) > 0)
		})
	}
}

func TestDecisionAlerts_Logistics(t *testing.T) {
	eng, err := decision.NewEngine(decision.DefaultConfig())
	require.NoError(t, err)
	rep, err := eng.Run(decision.MarketInputs{
		Date:                time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC),
		PremiumPercentile:   50,
		ChicagoPercentile:   50,
		LogisticsFlagActive: true,
		LogisticsReason:     "ship wait 18d > 15d for 2 weeks",
	}, decision.DefaultBook())
	require.NoError(t, err)

	as := DecisionAlerts(rep)
	require.GreaterOrEqual(t, len(as), 2)
	assert.Equal(t, LevelCritical, as[0].Level)
	assert.Equal(t, "override_logistics:2024-03-25", as[0].Key)
	last := as[len(as)-1]
	assert.Equal(t, LevelInfo, last.Level)
	assert.Equal(t, "decision:2024-03-25", last.Key)
	assert.Equal(t, rep.Justification, last.Message)
}

func slackServer(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32, *[]SlackMessage) {
	t.Helper()
	var calls atomic.Int32
	var mu sync.Mutex
	var msgs []SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var m SlackMessage
		_ = json.Unmarshal(body, &m)
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &msgs
}

func TestSlackClient_DeliversAndDedupes(t *testing.T) {
	srv, calls, msgs := slackServer(t, 0)
	c := NewSlackClient(config.Slack{Enabled: true, WebhookURL: srv.URL, Channel: "#desk", Username: "BasisMind", RateLimitPerMin: 10})

	a := Alert{Level: LevelCritical, Source: "decision", Title: "Override logistics", Message: "ships waiting", Key: "override_logistics:2024-03-25",
		Details: map[string]any{"priority": 1}}
	require.NoError(t, c.Send(context.Background(), a))
	require.NoError(t, c.Send(context.Background(), a))
	c.Close()

	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, *msgs, 1)
	msg := (*msgs)[0]
	assert.Equal(t, "#desk", msg.Channel)
	assert.Contains(t, msg.Text, "Override logistics")
	assert.Equal(t, "danger", msg.Attachments[0].Color)
	m := c.GetMetrics()
	assert.Equal(t, int64(1), m.AlertsSentTotal)
	assert.Equal(t, int64(1), m.DedupedTotal)

	assert.ErrorIs(t, c.Send(context.Background(), Alert{Title: "late"}), ErrClosed)
}

func TestSlackClient_RetriesThenSucceeds(t *testing.T) {
	srv, calls, _ := slackServer(t, 2)
	c := NewSlackClient(config.Slack{Enabled: true, WebhookURL: srv.URL, MaxRetries: 2})
	c.backoff = time.Millisecond

	require.NoError(t, c.Send(context.Background(), Alert{Level: LevelWarning, Title: "retry"}))
	c.Close()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), c.GetMetrics().AlertsSentTotal)
	assert.Equal(t, int64(0), c.GetMetrics().WebhookErrorsTotal)
}

func TestSlackClient_GivesUp(t *testing.T) {
	srv, calls, _ := slackServer(t, 100)
	c := NewSlackClient(config.Slack{Enabled: true, WebhookURL: srv.URL, MaxRetries: 1})
	c.backoff = time.Millisecond

	require.NoError(t, c.Send(context.Background(), Alert{Title: "never"}))
	c.Close()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), c.GetMetrics().WebhookErrorsTotal)
}

func TestSlackClient_RateLimited(t *testing.T) {
	srv, _, _ := slackServer(t, 0)
	c := NewSlackClient(config.Slack{Enabled: true, WebhookURL: srv.URL, RateLimitPerMin: 1})
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), Alert{Title: "one"}))
	assert.ErrorIs(t, c.Send(context.Background(), Alert{Title: "two"}), ErrRateLimited)
	assert.Equal(t, int64(1), c.GetMetrics().RateLimitHitsTotal)
}

func TestSlackClient_Disabled(t *testing.T) {
	srv, calls, _ := slackServer(t, 0)
	c := NewSlackClient(config.Slack{WebhookURL: srv.URL})
	require.NoError(t, c.Send(context.Background(), Alert{Title: "x"}))
	c.Close()
	assert.Equal(t, int32(0), calls.Load())
}
