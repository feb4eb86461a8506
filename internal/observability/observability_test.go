package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"runquest/internal/config"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RunStarted()
	m.Outcome("completed")
	m.Outcome("completed")
	m.Outcome("skipped")
	m.RunFinished("abandoned")
	m.RunRepaired()
	m.Upload("ok")
	m.SetActiveRuns(4)
	m.ObserveHTTP(http.MethodGet, "/api/runs/:id", 200, 15*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFinished.WithLabelValues("abandoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunRepairs))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}

// 两个实例互不干扰，也不会重复注册
func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RunStarted()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsStarted))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunStarted()
		m.Outcome("failed")
		m.RunFinished("exhausted")
		m.RunRepaired()
		m.Upload("failed")
		m.SetActiveRuns(1)
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RunStarted()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "runquest_runs_started_total 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "run_id", "r1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"run_id":"r1"`)
}

func TestInitTracing(t *testing.T) {
	shutdown, err := InitTracing(config.TracingConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	var buf bytes.Buffer
	shutdown, err = InitTracing(config.TracingConfig{Enabled: true, ServiceName: "runquest-test"}, &buf)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
