// Package observability 提供 Prometheus 指标、OpenTelemetry 追踪与 slog 日志初始化。
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "runquest"

// Metrics 所有方法对 nil 接收者安全，测试中可直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	RunsStarted  prometheus.Counter
	Outcomes     *prometheus.CounterVec
	RunsFinished *prometheus.CounterVec
	RunRepairs   prometheus.Counter
	Uploads      *prometheus.CounterVec
	ActiveRuns   prometheus.Gauge
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics 每个实例使用独立 registry，避免重复注册 panic
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs started",
		}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outcomes_total",
			Help:      "Submitted challenge outcomes by kind",
		}, []string{"outcome"}),
		RunsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_finished_total",
			Help:      "Finished runs by reason",
		}, []string{"reason"}),
		RunRepairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "run_repairs_total",
			Help:      "Runs whose pending state was repaired on read",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uploads_total",
			Help:      "Proof uploads by status",
		}, []string{"status"}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runs_active",
			Help:      "Runs that are not finished, refreshed periodically",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// Outcome outcome 取值 completed/skipped/failed
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}

// RunFinished reason 取值 exhausted/abandoned/repaired
func (m *Metrics) RunFinished(reason string) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(reason).Inc()
}

func (m *Metrics) RunRepaired() {
	if m == nil {
		return
	}
	m.RunRepairs.Inc()
}

func (m *Metrics) Upload(status string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveRuns(n int64) {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
