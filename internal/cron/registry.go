package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled marketplace maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduledJob struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Registry holds jobs with their cadence. A cadence at or below the cycle
// interval means every cycle. Due times live in this process only, so a
// freshly started worker runs every job on its first cycle.
type Registry struct {
	jobs []*scheduledJob
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job to run at most once per every. Nil jobs are ignored.
func (r *Registry) Register(job Job, every time.Duration) *Registry {
	if job != nil {
		r.jobs = append(r.jobs, &scheduledJob{job: job, every: every})
	}
	return r
}

// Due returns the jobs whose time has come, in registration order, and
// schedules each one's next run.
func (r *Registry) Due(now time.Time) []Job {
	var due []Job
	for _, s := range r.jobs {
		if now.Before(s.next) {
			continue
		}
		due = append(due, s.job)
		s.next = now.Add(s.every)
	}
	return due
}

// Names lists job names, used for startup logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, s := range r.jobs {
		names = append(names, s.job.Name())
	}
	return names
}
