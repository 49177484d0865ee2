// Package metrics exports walkthrough step and run outcomes to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dev/bravebird/guest-registration-walkthrough/pkg/models"
)

const namespace = "guest_registration"

// Recorder observes walkthrough progress and updates Prometheus collectors
type Recorder struct {
	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	lastSuccess  prometheus.Gauge
}

// New registers the walkthrough collectors on reg, or on the default registerer when reg is nil.
// Collectors already registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of walkthrough steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "status"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed walkthrough steps by error kind.",
		}, []string{"step", "kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed walkthrough runs by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete walkthrough runs.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	var err error
	if r.stepDuration, err = register(reg, r.stepDuration); err != nil {
		return nil, err
	}
	if r.stepFailures, err = register(reg, r.stepFailures); err != nil {
		return nil, err
	}
	if r.runs, err = register(reg, r.runs); err != nil {
		return nil, err
	}
	if r.runDuration, err = register(reg, r.runDuration); err != nil {
		return nil, err
	}
	if r.lastSuccess, err = register(reg, r.lastSuccess); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register collector: %w", err)
	}
	return c, nil
}

// StepDone records a finished or skipped step
func (r *Recorder) StepDone(res models.StepResult) {
	if r == nil || res.Status == models.StatusSkipped {
		return
	}
	r.stepDuration.WithLabelValues(res.Name, string(res.Status)).Observe(msToSeconds(res.Duration))
	if res.Status == models.StatusFailed {
		r.stepFailures.WithLabelValues(res.Name, string(res.ErrorKind)).Inc()
	}
}

// RunDone records the outcome of a run
func (r *Recorder) RunDone(res models.RunResult) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(string(res.Status)).Inc()
	r.runDuration.Observe(msToSeconds(res.TotalDuration))
	if res.Status == models.StatusSuccess {
		r.lastSuccess.SetToCurrentTime()
	}
}

func msToSeconds(ms int64) float64 {
	return (time.Duration(ms) * time.Millisecond).Seconds()
}

// Handler serves the collectors of g in the Prometheus exposition format
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
