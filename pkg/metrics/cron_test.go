package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	end := time.Unix(1_790_000_000, 0)

	m.ObserveRun("orphan-reconcile", end, 250*time.Millisecond, nil)
	m.ObserveRun("orphan-reconcile", end.Add(time.Minute), time.Second, errors.New("db down"))
	m.LockSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("orphan-reconcile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("orphan-reconcile", "failure")))
	assert.Equal(t, float64(end.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("orphan-reconcile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockSkipped))

	expected := `
# HELP cron_job_duration_seconds Cron job run time in seconds.
# TYPE cron_job_duration_seconds histogram
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="0.01"} 0
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="0.05"} 0
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="0.1"} 0
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="0.5"} 1
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="1"} 2
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="5"} 2
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="15"} 2
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="30"} 2
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="60"} 2
cron_job_duration_seconds_bucket{job="orphan-reconcile",le="+Inf"} 2
cron_job_duration_seconds_sum{job="orphan-reconcile"} 1.25
cron_job_duration_seconds_count{job="orphan-reconcile"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cron_job_duration_seconds"))
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Now(), time.Second, nil)
	m.LockSkipped()
	assert.Nil(t, NewCronJobMetrics(nil))
}

func TestCronJobMetricsUnnamedJob(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.ObserveRun("", time.Now(), time.Millisecond, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", "success")))
}
