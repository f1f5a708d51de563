package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks scheduled job runs. A nil value records nothing.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	lockSkipped prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Cron job run time in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		lockSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cron_cycles_skipped_total",
			Help: "Cron cycles skipped because another instance held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.lockSkipped)
	return m
}

// ObserveRun records one run of job that finished at end after took.
func (m *CronJobMetrics) ObserveRun(job string, end time.Time, took time.Duration, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(end.Unix()))
}

func (m *CronJobMetrics) LockSkipped() {
	if m == nil {
		return
	}
	m.lockSkipped.Inc()
}

// normalizeLabel keeps empty label values out of the series.
func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
