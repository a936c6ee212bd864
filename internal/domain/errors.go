// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture: it depends on nothing.
package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, no infrastructure dependency.

var (
	// Skill / partition / arm lookups
	ErrSkillNotFound     = errors.New("skill not found")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrArmNotFound       = errors.New("arm not found")
	ErrNoArms            = errors.New("partition has no arms")

	// Lock discipline
	ErrLockHeld     = errors.New("lock is held by another writer")
	ErrLockLost     = errors.New("lock compare-after-write mismatch: another worker won")
	ErrLockReleased = errors.New("lock already released")

	// Reflection preconditions
	ErrReflectionNotReady = errors.New("reflection preconditions not met")
	ErrInsufficientArms   = errors.New("partition needs at least 2 arms to reflect")
	ErrArmBelowThreshold  = errors.New("arm pull count dropped below threshold during reflection")
	ErrCompletionRaced    = errors.New("completion flag changed during lock acquisition")

	// Evaluation schema validation
	ErrInvalidEvaluationParams = errors.New("evaluation params failed method parameter schema")
	ErrUnknownEvaluationMethod = errors.New("unknown evaluation method")

	// Serving-path fatal errors, the only failures that
	// propagate to callers of SelectArmForRequest / RecordOutcome.
	ErrStorageUnavailable = errors.New("storage backend unreachable")
)
