package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
	info     map[string]string
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		counters: map[string]map[string]int64{},
		gauges:   map[string]map[string]float64{},
		hist:     map[string]map[string][]float64{},
		info:     map[string]string{},
	}
}

// Reset drops every recorded metric.
func Reset() {
	fresh := newRegistry()
	reg.mu.Lock()
	reg.counters, reg.gauges, reg.hist, reg.info = fresh.counters, fresh.gauges, fresh.hist, fresh.info
	reg.mu.Unlock()
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)] += value
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration metric in milliseconds under name+"_ms".
func RecordDuration(name string, d time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(d.Microseconds())/1000, labels)
}

// RecordDecision records one engine run: latency, outcome and every fired override id.
func RecordDecision(source string, fired []string, d time.Duration, err error) {
	labels := map[string]string{"source": source}
	IncCounter("decision_runs_total", labels)
	RecordDuration("decision_latency", d, labels)
	if err != nil {
		IncCounter("decision_failures_total", labels)
		return
	}
	for _, id := range fired {
		IncCounter("override_fired_total", map[string]string{"id": id})
	}
}

// SetInfo records a free-form detail shown on the health endpoint.
func SetInfo(key, value string) {
	reg.mu.Lock()
	reg.info[key] = value
	reg.mu.Unlock()
}

// Counter returns the current value of one labelled counter.
func Counter(name string, labels map[string]string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.counters[name][canonLabels(labels)]
}

// Gauge returns the current value of one labelled gauge.
func Gauge(name string, labels map[string]string) (float64, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	v, ok := reg.gauges[name][canonLabels(labels)]
	return v, ok
}

// Basic JSON dump for quick checks (not Prometheus format on purpose)
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus represents overall service health
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "degraded", "failed"
	Timestamp string         `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Version   string         `json:"version"`
	Metrics   HealthMetrics  `json:"metrics"`
	Details   map[string]any `json:"details"`
}

type HealthMetrics struct {
	DecisionRuns         int64   `json:"decision_runs"`
	DecisionFailures     int64   `json:"decision_failures"`
	DecisionSuccessRate  float64 `json:"decision_success_rate"`
	DecisionLatencyP95Ms float64 `json:"decision_latency_p95_ms"`
	PipelineRuns         int64   `json:"pipeline_runs"`
	PipelineFailures     int64   `json:"pipeline_failures"`
	QualityIssues        int64   `json:"quality_issues"`
	AlertsSent           int64   `json:"alerts_sent"`
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

func SetVersion(v string) {
	version = v
}

// HealthHandler reports service health from the decision and pipeline metrics.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := CurrentHealth()

		statusCode := http.StatusOK
		if health.Status == "failed" {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

// CurrentHealth computes the health snapshot served by HealthHandler.
func CurrentHealth() HealthStatus {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m := calculateHealthMetrics()
	return HealthStatus{
		Status:    overallStatus(m),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Version:   version,
		Metrics:   m,
		Details:   gatherHealthDetails(),
	}
}

func sumCounter(name string) int64 {
	var total int64
	for _, v := range reg.counters[name] {
		total += v
	}
	return total
}

func p95(name string) float64 {
	var all []float64
	for _, samples := range reg.hist[name] {
		all = append(all, samples...)
	}
	if len(all) == 0 {
		return 0
	}
	sort.Float64s(all)
	idx := int(float64(len(all)) * 0.95)
	if idx >= len(all) {
		idx = len(all) - 1
	}
	return all[idx]
}

func calculateHealthMetrics() HealthMetrics {
	m := HealthMetrics{
		DecisionRuns:         sumCounter("decision_runs_total"),
		DecisionFailures:     sumCounter("decision_failures_total"),
		DecisionLatencyP95Ms: p95("decision_latency_ms"),
		PipelineRuns:         sumCounter("pipeline_runs_total"),
		PipelineFailures:     sumCounter("pipeline_failures_total"),
		QualityIssues:        sumCounter("data_quality_issues_total"),
		AlertsSent:           sumCounter("alerts_sent_total"),
	}
	if m.DecisionRuns > 0 {
		m.DecisionSuccessRate = float64(m.DecisionRuns-m.DecisionFailures) / float64(m.DecisionRuns)
	}
	return m
}

func overallStatus(m HealthMetrics) string {
	if v, ok := reg.gauges["pipeline_last_status"][""]; ok && v == 0 {
		return "failed"
	}
	if m.DecisionRuns >= 10 && m.DecisionSuccessRate < 0.5 {
		return "failed"
	}
	if m.DecisionLatencyP95Ms > 200 || m.DecisionFailures > 0 {
		return "degraded"
	}
	return "healthy"
}

func gatherHealthDetails() map[string]any {
	details := map[string]any{}

	fired := map[string]int64{}
	for k, v := range reg.counters["override_fired_total"] {
		fired[strings.TrimPrefix(k, "id=")] = v
	}
	details["overrides_fired"] = fired

	if v, ok := reg.gauges["pipeline_last_success_unix"][""]; ok {
		details["pipeline_last_success"] = time.Unix(int64(v), 0).UTC().Format(time.RFC3339)
	}
	for k, v := range reg.info {
		details[k] = v
	}
	return details
}
