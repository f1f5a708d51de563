package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Job is one unit of periodic work. Name doubles as its metrics label.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule pairs a job with its cadence. A zero Every runs the job on every tick.
type Schedule struct {
	Job   Job
	Every time.Duration
}

type Registry struct {
	schedules []Schedule
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job to run at most once per every. Names must be unique and
// non-blank; a negative cadence is treated as zero.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("cron job is nil")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("cron job name is required")
	}
	if slices.ContainsFunc(r.schedules, func(s Schedule) bool { return s.Job.Name() == name }) {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: max(every, 0)})
	return nil
}

// Schedules returns a copy, in registration order.
func (r *Registry) Schedules() []Schedule {
	return slices.Clone(r.schedules)
}
