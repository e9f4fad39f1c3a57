// Package metrics 运行与设备结果的 Prometheus 指标。
//
// 指标统一使用 netfleet_ 前缀，计数器以 _total 结尾，耗时直方图以 _seconds 结尾。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netfleetpro/netfleet/internal/fleet"
)

// Metrics 指标集合，使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal             *prometheus.CounterVec
	RunDurationSeconds    *prometheus.HistogramVec
	DevicesTotal          *prometheus.CounterVec
	DeviceDurationSeconds *prometheus.HistogramVec
	SubtasksTotal         *prometheus.CounterVec
	RunsInFlight          prometheus.Gauge
	InventoryDevices      prometheus.Gauge
	InventoryReloadsTotal *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netfleet_runs_total",
			Help: "Total number of runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RunDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netfleet_run_duration_seconds",
			Help:    "Duration of runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind"}),
		DevicesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netfleet_devices_total",
			Help: "Total device results by platform and status.",
		}, []string{"platform", "status"}),
		DeviceDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netfleet_device_duration_seconds",
			Help:    "Per-device processing time in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"platform"}),
		SubtasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netfleet_subtasks_total",
			Help: "Total subtask results by task kind and status.",
		}, []string{"kind", "status"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netfleet_runs_in_flight",
			Help: "Number of runs currently executing.",
		}),
		InventoryDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netfleet_inventory_devices",
			Help: "Number of devices in the current inventory snapshot.",
		}),
		InventoryReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netfleet_inventory_reloads_total",
			Help: "Total inventory reloads by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDurationSeconds,
		m.DevicesTotal,
		m.DeviceDurationSeconds,
		m.SubtasksTotal,
		m.RunsInFlight,
		m.InventoryDevices,
		m.InventoryReloadsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 底层注册表
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnDeviceResult 实现 fleet.Observer
func (m *Metrics) OnDeviceResult(_ string, r fleet.DeviceResult) {
	platform := r.Platform
	if platform == "" {
		platform = "unknown"
	}
	m.DevicesTotal.WithLabelValues(platform, string(r.Status())).Inc()
	if d := r.Duration(); d > 0 {
		m.DeviceDurationSeconds.WithLabelValues(platform).Observe(d.Seconds())
	}
	for _, s := range r.Subtasks {
		m.SubtasksTotal.WithLabelValues(string(s.Kind), string(s.Status)).Inc()
	}
}

// RunStarted 运行开始
func (m *Metrics) RunStarted() { m.RunsInFlight.Inc() }

// RunFinished 运行结束：outcome 为 success / failed / cancelled
func (m *Metrics) RunFinished(kind string, res *fleet.FleetResult) {
	m.RunsInFlight.Dec()
	outcome := "success"
	switch {
	case res.Incomplete > 0:
		outcome = "cancelled"
	case res.Failed > 0:
		outcome = "failed"
	}
	m.RunsTotal.WithLabelValues(kind, outcome).Inc()
	m.RunDurationSeconds.WithLabelValues(kind).Observe(res.Finished.Sub(res.Started).Seconds())
}

// InventoryReloaded 清单重新加载
func (m *Metrics) InventoryReloaded(devices int, err error) {
	if err != nil {
		m.InventoryReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.InventoryReloadsTotal.WithLabelValues("ok").Inc()
	m.InventoryDevices.Set(float64(devices))
}
