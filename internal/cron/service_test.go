package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type steppedClock struct {
	now time.Time
}

func (c *steppedClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, lock Lock, clock *steppedClock, schedules ...Schedule) *Service {
	t.Helper()
	registry := NewRegistry()
	for _, s := range schedules {
		if err := registry.Register(s.Job, s.Every); err != nil {
			t.Fatalf("register %s: %v", s.Job.Name(), err)
		}
	}
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestRunCycleRunsAllJobsAndCombinesFailures(t *testing.T) {
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", err: errors.New("boom")}
	worse := &testJob{name: "worse", err: errors.New("bang")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, &steppedClock{now: time.Now()}, Schedule{Job: bad}, Schedule{Job: ok}, Schedule{Job: worse})

	err := svc.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "bad: boom") || !strings.Contains(err.Error(), "worse: bang") {
		t.Fatalf("expected both failures in %q", err.Error())
	}
	for _, job := range []*testJob{ok, bad, worse} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
	if lock.released != 1 || lock.held {
		t.Fatalf("expected lock released once, released=%d held=%v", lock.released, lock.held)
	}
}

func TestRunCycleHonoursCadence(t *testing.T) {
	clock := &steppedClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	reconcile := &testJob{name: "orphan-reconcile"}
	prune := &testJob{name: "outbox-prune"}
	every := &testJob{name: "every-tick"}
	svc := newTestService(t, &fakeLock{}, clock,
		Schedule{Job: reconcile, Every: 5 * time.Minute},
		Schedule{Job: prune, Every: 24 * time.Hour},
		Schedule{Job: every},
	)

	for i := 0; i < 10; i++ {
		if err := svc.runCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		clock.now = clock.now.Add(time.Minute)
	}

	if reconcile.runs != 2 {
		t.Fatalf("expected reconcile twice in ten minutes, got %d", reconcile.runs)
	}
	if prune.runs != 1 {
		t.Fatalf("expected prune once, got %d", prune.runs)
	}
	if every.runs != 10 {
		t.Fatalf("expected every-tick job ten times, got %d", every.runs)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{held: true}
	svc := newTestService(t, lock, &steppedClock{now: time.Now()}, Schedule{Job: job})

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs without the lock, got %d", job.runs)
	}
	if lock.released != 0 {
		t.Fatalf("expected no release without ownership")
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected missing logger to fail")
	}
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "x"})}); err == nil {
		t.Fatal("expected missing lock to fail")
	}
}

type panicJob struct{}

func (panicJob) Name() string { return "panicky" }

func (panicJob) Run(context.Context) error { panic("nil map write") }

type releaseFailLock struct{ fakeLock }

func (l *releaseFailLock) Release(context.Context) error {
	return errors.New("lease lost")
}

func TestRunCycleRecoversJobPanics(t *testing.T) {
	after := &testJob{name: "after"}
	svc := newTestService(t, &fakeLock{}, &steppedClock{now: time.Now()}, Schedule{Job: panicJob{}}, Schedule{Job: after})

	err := svc.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicky: panic: nil map write") {
		t.Fatalf("expected recovered panic in error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("jobs after a panic must still run, got %d", after.runs)
	}
}

func TestRunCycleReportsReleaseFailure(t *testing.T) {
	svc := newTestService(t, &releaseFailLock{}, &steppedClock{now: time.Now()}, Schedule{Job: &testJob{name: "ok"}})

	err := svc.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "lease lost") {
		t.Fatalf("expected release failure, got %v", err)
	}
}

func TestRunCycleRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := NewRegistry()
	if err := registry.Register(&testJob{name: "outbox-prune"}, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	lock.held = true
	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{"cron_job_runs_total", "cron_job_duration_seconds", "cron_cycles_skipped_total"} {
		if !seen[name] {
			t.Fatalf("expected %s to be exported, got %v", name, seen)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "tick"}
	svc := newTestService(t, &fakeLock{}, &steppedClock{now: time.Now()}, Schedule{Job: job})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the immediate cycle to run once, got %d", job.runs)
	}
}
