package observ

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(prev)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLog_WritesJSONLine(t *testing.T) {
	buf := captureLogs(t)

	Log("decision_run", map[string]any{"date": "2024-06-15"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "decision_run", line["event"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "2024-06-15", line["date"])
	assert.NotEmpty(t, line["ts"])
}

func TestLog_LevelFilter(t *testing.T) {
	buf := captureLogs(t)
	SetLevel(LevelWarn)

	Debug("noise", nil)
	Log("info_line", nil)
	Warn("warn_line", nil)
	Error("error_line", errors.New("boom"), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"warn_line"`)
	assert.Contains(t, lines[1], `"error":"boom"`)
}

func TestLog_DoesNotMutateCallerMap(t *testing.T) {
	captureLogs(t)
	kv := map[string]any{"k": 1}
	Log("x", kv)
	assert.Len(t, kv, 1)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestRecordDecision(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	RecordDecision("pipeline", []string{"logistics", "competitiveness"}, 3*time.Millisecond, nil)
	RecordDecision("pipeline", nil, time.Millisecond, errors.New("bad input"))

	assert.Equal(t, int64(2), Counter("decision_runs_total", map[string]string{"source": "pipeline"}))
	assert.Equal(t, int64(1), Counter("decision_failures_total", map[string]string{"source": "pipeline"}))
	assert.Equal(t, int64(1), Counter("override_fired_total", map[string]string{"id": "logistics"}))

	h := CurrentHealth()
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, 0.5, h.Metrics.DecisionSuccessRate)
	fired := h.Details["overrides_fired"].(map[string]int64)
	assert.Equal(t, int64(1), fired["competitiveness"])
}

func TestHealthHandler_Status(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	rec := httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	SetGauge("pipeline_last_status", 0, nil)
	SetInfo("pipeline_last_source", "csv")
	rec = httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "failed", body.Status)
	assert.Equal(t, "csv", body.Details["pipeline_last_source"])
}

func TestHandler_DumpsRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	IncCounter("alerts_sent_total", map[string]string{"handler": "slack"})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `"alerts_sent_total":{"handler=slack":1}`)
}
