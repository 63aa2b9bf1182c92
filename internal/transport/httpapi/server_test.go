package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bruno-portfolio/basismind/internal/config"
	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/pipeline"
	"github.com/bruno-portfolio/basismind/internal/portfolio"
	"github.com/bruno-portfolio/basismind/internal/store"
	"github.com/bruno-portfolio/basismind/internal/transport"
)

const neutralInputs = `{"date":"2024-06-14","lineup_weekly_var_pct":0,"premium_percentile":50,
	"fob_spread_usd_per_ton":0,"export_pace_z":0,"fx_var_5d_pct":0,"chicago_percentile":50}`

type fixture struct {
	srv   *Server
	store *store.Store
	book  *portfolio.Manager
	hub   *transport.Hub
}

func newFixture(t *testing.T, withPipeline bool) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "basismind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	eng, err := decision.NewEngine(decision.DefaultConfig())
	require.NoError(t, err)
	book := portfolio.NewManager(filepath.Join(dir, "book.json"), decision.DefaultBook())
	require.NoError(t, book.Load())
	hub := transport.NewHub(10)

	cfg := Config{Engine: eng, Store: st, Book: book, Hub: hub}
	if withPipeline {
		cfg.Pipeline = &pipeline.Pipeline{
			Config:   config.Defaults().Pipeline,
			Triggers: config.Defaults().Alerts.Triggers,
			Sources:  []pipeline.Source{pipeline.MockSource{Seed: 5}},
			Store:    st,
			Engine:   eng,
			Book:     book,
		}
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return fixture{srv: srv, store: st, book: book, hub: hub}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	observ.Reset()
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/v1/decisions?persist=true", `{"inputs":`+neutralInputs+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view decision.ReportView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "2024-06-14", view.ReferenceDate)
	assert.Equal(t, "neutral", view.Classification)
	assert.NotEmpty(t, view.Justification)
	id := w.Header().Get("X-Report-ID")
	assert.NotEmpty(t, id)

	recent := f.hub.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, EventDecision, recent[0].Type)
	assert.Equal(t, int64(1), observ.Counter("decision_runs_total", map[string]string{"source": "api"}))

	w = f.do(t, http.MethodGet, "/api/v1/reports/2024-06-14", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stored store.StoredReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, id, stored.ID)
	assert.Equal(t, "neutral", stored.Classification)
}

func TestDecide_Errors(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/v1/decisions", `{"inputs":{"date":"2024-06-14"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "decision_request payload invalid")

	w = f.do(t, http.MethodPost, "/api/v1/decisions", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	badBook := `{"exposicao_fisica_pct":0,"limite_long_pct":0,"limite_short_pct":0,"hedge_atual_pct":0,"hedge_meta_pct":50}`
	w = f.do(t, http.MethodPost, "/api/v1/decisions", `{"inputs":`+neutralInputs+`,"book":`+badBook+`}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "limite_short_pct")
	assert.Empty(t, f.hub.Recent(0))
}

func TestReports(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/v1/reports/2024-06-14", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodGet, "/api/v1/reports/yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, d := range []string{"2024-06-13", "2024-06-14"} {
		in := bytes.Replace([]byte(neutralInputs), []byte("2024-06-14"), []byte(d), 1)
		w = f.do(t, http.MethodPost, "/api/v1/decisions?persist=1", `{"inputs":`+string(in)+`}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/v1/reports?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Reports []store.StoredReport `json:"reports"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "2024-06-14", out.Reports[0].Date)
}

func TestBook(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/v1/book", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap portfolio.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, decision.DefaultBook(), snap.Book)

	body := `{"exposicao_fisica_pct":10,"limite_long_pct":40,"limite_short_pct":-20,"hedge_atual_pct":30,"hedge_meta_pct":60}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/book", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Updated-By", "desk")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "desk", snap.UpdatedBy)
	assert.Equal(t, 10.0, f.book.Book().PhysicalExposurePct)

	w = f.do(t, http.MethodPut, "/api/v1/book", `{"exposicao_fisica_pct":10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPut, "/api/v1/book", `{"exposicao_fisica_pct":10,"limite_long_pct":0,"limite_short_pct":0,"hedge_atual_pct":30,"hedge_meta_pct":60}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 40.0, f.book.Book().LongLimitPct)

	w = f.do(t, http.MethodPost, "/api/v1/book/adjust", `{"physical_pp":-5,"hedge_pp":80}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5.0, f.book.Book().PhysicalExposurePct)
	assert.Equal(t, 100.0, f.book.Book().HedgeCurrentPct)

	var types []string
	for _, ev := range f.hub.Recent(0) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventBook, EventBook}, types)
}

func TestRuns(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/runs?date=2024-06-14", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f = newFixture(t, true)
	w = f.do(t, http.MethodPost, "/api/v1/runs?date=14-06-2024", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/runs?date=2024-06-14", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Status string `json:"status"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, store.RunSuccess, res.Status)
	assert.Equal(t, "mock", res.Source)

	w = f.do(t, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	var types []string
	for _, ev := range f.hub.Recent(0) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventRun, EventDecision}, types)
}

func TestHealthAndMetrics(t *testing.T) {
	observ.Reset()
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), observ.Counter("http_requests_total", map[string]string{"route": "/healthz", "code": "200"}))
}
