package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Tick     time.Duration
	Now      func() time.Time
}

// Service wakes up every tick, takes the cluster lock and runs whichever jobs are due.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
	lastRun  map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     params.Tick,
		now:      params.Now,
		lastRun:  map[string]time.Time{},
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run runs a cycle immediately and then once per tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with failures", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle runs every due job under the lock. Failures are collected so one
// bad job never starves the rest.
func (s *Service) runCycle(ctx context.Context) (errs error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.LockSkipped()
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		errs = multierr.Append(errs, s.lock.Release(ctx))
	}()

	now := s.now()
	for _, sched := range s.registry.Schedules() {
		name := sched.Job.Name()
		if last, ran := s.lastRun[name]; ran && sched.Every > 0 && now.Sub(last) < sched.Every {
			continue
		}
		s.lastRun[name] = now
		if err := s.runJob(ctx, sched.Job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	start := s.now()
	err := safeRun(ctx, job)
	end := s.now()
	s.metrics.ObserveRun(job.Name(), end, end.Sub(start), err)

	ctx = s.logg.WithField(ctx, "duration_ms", end.Sub(start).Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return err
	}
	s.logg.Info(ctx, "cron job completed")
	return nil
}

// safeRun turns a job panic into an error so the worker keeps its schedule.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
