// Package metrics exposes Prometheus instrumentation for the job engine and device calls.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relayd"

// Recorder implements the counters used across relayd.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prom.Registry
	jobFires      prom.Counter
	firesDropped  prom.Counter
	activeJobs    prom.Gauge
	executeSkips  *prom.CounterVec
	deviceSteps   *prom.CounterVec
	deviceLatency *prom.HistogramVec
}

// New constructs and registers the metrics on reg (a fresh registry when nil).
func New(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	r := &Recorder{
		registry: reg,
		jobFires: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_fires_total",
			Help:      "Jobs handed to the worker pool by the dispatcher",
		}),
		firesDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_fires_dropped_total",
			Help:      "Fires dropped because the worker queue was full or closing",
		}),
		activeJobs: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Jobs currently registered with the timer engine",
		}),
		executeSkips: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "execute_skipped_total",
			Help:      "Executions that did not reach the device, by reason",
		}, []string{"reason"}),
		deviceSteps: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "device_steps_total",
			Help:      "Relay and strip step outcomes",
		}, []string{"step", "outcome"}),
		deviceLatency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "device_request_duration_seconds",
			Help:      "Duration of device HTTP requests",
			Buckets:   prom.DefBuckets,
		}, []string{"call", "result"}),
	}

	reg.MustRegister(r.jobFires, r.firesDropped, r.activeJobs, r.executeSkips, r.deviceSteps, r.deviceLatency)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prom.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) IncJobFire() {
	if r == nil {
		return
	}
	r.jobFires.Inc()
}

func (r *Recorder) IncFireDropped() {
	if r == nil {
		return
	}
	r.firesDropped.Inc()
}

func (r *Recorder) SetActiveJobs(n int) {
	if r == nil {
		return
	}
	r.activeJobs.Set(float64(n))
}

func (r *Recorder) IncExecuteSkipped(reason string) {
	if r == nil {
		return
	}
	r.executeSkips.WithLabelValues(reason).Inc()
}

func (r *Recorder) IncDeviceStep(step, outcome string) {
	if r == nil {
		return
	}
	r.deviceSteps.WithLabelValues(step, outcome).Inc()
}

func (r *Recorder) ObserveDeviceRequest(call string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	r.deviceLatency.WithLabelValues(call, result).Observe(d.Seconds())
}
