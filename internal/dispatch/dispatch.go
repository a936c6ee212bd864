// Package dispatch implements the bounded fire-and-forget background-task
// dispatcher the serving path hands reflection and bootstrap work to: an
// accept-then-release concurrency semaphore running arbitrary job
// functions whenever a slot is free, with a global in-flight bound to
// protect the process.
package dispatch

import (
	"log/slog"
	"sync"
)

// Config controls dispatcher behavior.
type Config struct {
	MaxConcurrent int // Maximum concurrent background jobs (default: 64)
}

// DefaultConfig returns the default global in-flight bound.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 64}
}

// Dispatcher runs fire-and-forget jobs with a bounded concurrency pool.
// It is the serving path's only contact with the learning path:
// RecordOutcome submits a job and returns immediately regardless of
// whether a slot is free.
type Dispatcher struct {
	mu        sync.Mutex
	config    Config
	sem       chan struct{}
	active    int
	completed int64
	rejected  int64
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config: cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		logger: logger,
	}
}

// Submit attempts to run job in the background. If the dispatcher is at
// capacity, the job is dropped and Submit returns false; callers never
// block on this, and a dropped reflection/bootstrap attempt
// simply gets retried on the next qualifying recordOutcome.
func (d *Dispatcher) Submit(label string, job func()) bool {
	select {
	case d.sem <- struct{}{}:
	default:
		d.mu.Lock()
		d.rejected++
		d.mu.Unlock()
		d.logger.Warn("dispatcher at capacity, dropping job", "job", label)
		return false
	}

	d.mu.Lock()
	d.active++
	d.mu.Unlock()

	go func() {
		defer func() {
			<-d.sem
			d.mu.Lock()
			d.active--
			d.completed++
			d.mu.Unlock()
			if r := recover(); r != nil {
				d.logger.Error("background job panicked", "job", label, "panic", r)
			}
		}()
		job()
	}()
	return true
}

// Stats reports current dispatcher load for debug surfaces.
type Stats struct {
	Active    int
	Completed int64
	Rejected  int64
	MaxSlots  int
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Active:    d.active,
		Completed: d.completed,
		Rejected:  d.rejected,
		MaxSlots:  d.config.MaxConcurrent,
	}
}
