package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Job is one unit of scheduled work. Name must be unique within a Registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

var (
	ErrDuplicateJob = errors.New("cron job already registered")
	ErrUnknownJob   = errors.New("cron job not registered")
)

// Registry holds jobs in the order they run each cycle.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

// NewRegistry panics when two jobs share a name; the job set is fixed at
// startup so a collision is a wiring mistake.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{byName: map[string]Job{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register appends job. Nil jobs are ignored.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return errors.New("cron job name is required")
	}
	if r.byName == nil {
		r.byName = map[string]Job{}
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	r.byName[name] = job
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[strings.TrimSpace(name)]
	return job, ok
}

// Subset returns a registry limited to the named jobs, keeping registration
// order. An empty name list returns r unchanged.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	want := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
		}
		want[name] = true
	}
	subset := &Registry{byName: map[string]Job{}}
	for _, job := range r.jobs {
		if want[job.Name()] {
			_ = subset.Register(job)
		}
	}
	return subset, nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
