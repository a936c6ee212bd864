// Package lock implements the advisory-timestamp lock discipline shared
// by the reflection engine and the rubric bootstrap: a writer sets a
// lock field, reads it back, and proceeds only if the read matches
// exactly. The double-check-after-write substitutes for a proper
// distributed lock where none is available.
package lock

import (
	"context"
	"time"

	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/metrics"
)

// Kind identifies which of the skill's two lock fields to operate on.
type Kind int

const (
	Reflection Kind = iota
	Evaluation
)

// String renders a Kind for metric labels and log lines.
func (k Kind) String() string {
	if k == Reflection {
		return "reflection"
	}
	return "evaluation"
}

// Manager acquires and releases skill-level advisory locks.
type Manager struct {
	storage domain.StorageConnector
	now     func() time.Time
}

// New creates a lock Manager over the given storage connector.
func New(storage domain.StorageConnector) *Manager {
	return &Manager{storage: storage, now: time.Now}
}

// Timeout returns the staleness timeout for a lock kind.
func (k Kind) Timeout() time.Duration {
	if k == Reflection {
		return 10 * time.Minute
	}
	return 5 * time.Minute
}

// Release clears a lock unconditionally. Safe to call even if the lock
// was never acquired by this process; failed background work must still
// get its lock cleared, best effort.
func (m *Manager) Release(ctx context.Context, skillID string, kind Kind) {
	var err error
	switch kind {
	case Reflection:
		err = m.storage.ClearReflectionLock(ctx, skillID)
	case Evaluation:
		err = m.storage.ClearEvaluationLock(ctx, skillID)
	}
	if err != nil {
		// Contention/fatal errors on release are swallowed: this is
		// always called from a background path. A failed release simply
		// leaves the lock to be reclaimed by the next stale-timeout check.
		_ = err
	}
}

// Acquire performs the double-check-after-write: write now as the
// lock's AcquiredAt, read back, and only proceed if the read matches;
// otherwise another worker won the race and this caller aborts. Returns
// a release func the caller must defer immediately, so every acquired
// lock gets a paired clear attempt even on panics.
func (m *Manager) Acquire(ctx context.Context, skillID string, kind Kind, holderID string) (acquired bool, release func(), err error) {
	now := m.now()
	want := domain.Lock{HolderID: holderID, AcquiredAt: now}
	timeout := kind.Timeout()

	var won bool
	var observed domain.Lock
	switch kind {
	case Reflection:
		won, observed, err = m.storage.CompareAndSwapReflectionLock(ctx, skillID, want, timeout)
	case Evaluation:
		won, observed, err = m.storage.CompareAndSwapEvaluationLock(ctx, skillID, want, timeout)
	}
	if err != nil {
		return false, func() {}, err
	}
	if !won || !observed.AcquiredAt.Equal(now) {
		// Another worker wrote first, or our own write didn't read back
		// as expected. Either way: abort.
		metrics.LockContention.WithLabelValues(kind.String()).Inc()
		return false, func() {}, nil
	}

	release = func() { m.Release(ctx, skillID, kind) }
	return true, release, nil
}
