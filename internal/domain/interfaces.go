package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define the engine's boundary with the rest of the
// gateway. Infrastructure implements them; the engine packages
// depend only on these contracts.

// SkillPatch carries a partial update to a Skill's non-lock fields. Lock
// fields and the completion flag go through the dedicated CAS/single-write
// methods below, never through this patch.
type SkillPatch struct {
	Description          *string
	PartitionCount       *int
	MinPullsPerArm       *int
	SystemPromptVariants *int
	ExplorationConstant  *float64
}

// StorageConnector is the relational persistence collaborator.
// Every operation is atomic at the row level.
type StorageConnector interface {
	GetSkill(ctx context.Context, id string) (*Skill, error)
	UpdateSkill(ctx context.Context, id string, patch SkillPatch) error

	// CompareAndSwapReflectionLock implements the double-check-after-write
	// lock discipline as a single call so implementations can use a real
	// row-level transaction instead of two round-trips racing each other.
	// It sets the lock to `want` only if the current lock is free (the
	// zero value) or stale per `staleAfter`, and returns the value actually
	// observed after the write.
	CompareAndSwapReflectionLock(ctx context.Context, skillID string, want Lock, staleAfter time.Duration) (won bool, observed Lock, err error)
	CompareAndSwapEvaluationLock(ctx context.Context, skillID string, want Lock, staleAfter time.Duration) (won bool, observed Lock, err error)
	ClearReflectionLock(ctx context.Context, skillID string) error
	ClearEvaluationLock(ctx context.Context, skillID string) error

	// SetEvaluationsRegeneratedAndClearLock sets the bootstrap completion
	// flag and clears the evaluation lock in one atomic statement, so
	// observers see either "in progress" or "done", never a gap between.
	SetEvaluationsRegeneratedAndClearLock(ctx context.Context, skillID string, at time.Time) error

	// IncrementSkillTotalRequests bumps the skill-level lifetime counter.
	IncrementSkillTotalRequests(ctx context.Context, skillID string) error

	GetPartitions(ctx context.Context, skillID string) ([]Partition, error)
	CreatePartitions(ctx context.Context, partitions []Partition) error
	UpdatePartition(ctx context.Context, id string, patch PartitionPatch) error
	DeletePartition(ctx context.Context, id string) error

	// IncrementPartitionCounters bumps total_steps and total_requests by
	// one each as a single row-level delta, so
	// concurrent RecordOutcome calls landing on the same partition (from
	// different arms, or racing updates to the same arm) never lose a
	// count the way a read-modify-write pair could.
	IncrementPartitionCounters(ctx context.Context, partitionID string) error

	GetArmsByPartition(ctx context.Context, partitionID string) ([]Arm, error)
	GetArmsBySkill(ctx context.Context, skillID string) ([]Arm, error)
	CreateArms(ctx context.Context, arms []Arm) error
	DeleteArmsForPartition(ctx context.Context, partitionID string) error
	DeleteArmsForSkill(ctx context.Context, skillID string) error

	// RecordArmReward folds one reward observation into an arm's running
	// statistics as a single row-level delta (n+=1, total_reward+=r,
	// mean=total_reward/n, n2+=r²) and returns the resulting stats.
	// Implementations must perform this as one atomic statement against
	// the stored row rather than a read-modify-write pair, so concurrent
	// callers on the same arm can never lose an update. Returns ErrArmNotFound if armID doesn't
	// exist.
	RecordArmReward(ctx context.Context, armID string, reward float64) (ArmStats, error)

	// UpdateArmParams replaces an arm's params in place and resets its
	// stats to zero, preserving the arm's ID. Used instead of
	// DeleteArmsForPartition+CreateArms whenever a replacement keeps the
	// partition's arm count unchanged (resetPartition, resetSkill, and
	// the bootstrap's seed-prompt rollout), so external consumers holding
	// an arm ID don't see it churn.
	// Returns ErrArmNotFound if armID doesn't exist.
	UpdateArmParams(ctx context.Context, armID string, params ArmParams) error

	GetEvaluations(ctx context.Context, skillID string) ([]Evaluation, error)
	CreateEvaluations(ctx context.Context, evaluations []Evaluation) error
	DeleteEvaluationsForSkill(ctx context.Context, skillID string) error
	UpdateEvaluation(ctx context.Context, id string, params map[string]any) error
}

// PartitionPatch carries a partial update to a Partition.
type PartitionPatch struct {
	Centroid      []float64
	TotalSteps    *int64
	TotalRequests *int64
}

// LogQuery filters the request-record log for exemplar fetches.
type LogQuery struct {
	SkillID          string
	PartitionID      string // optional
	EmbeddingNotNull bool
	Limit            int
}

// LogConnector is the append-only request log collaborator.
// The engine never writes logs; the surrounding proxy does.
type LogConnector interface {
	GetLogs(ctx context.Context, q LogQuery) ([]RequestRecord, error)
	CountLogs(ctx context.Context, q LogQuery) (int, error)
}

// LLMClient is the model-access collaborator: embeddings and
// LLM-as-judge calls, both bounded by the caller's context deadline.
type LLMClient interface {
	Embed(ctx context.Context, text string, model string) ([]float64, error)
	Judge(ctx context.Context, prompt string, jsonSchema map[string]any) (string, error)
}

// EventSink is the optional observability bridge: an opaque
// (eventType, payload) sink injected at construction. Production may
// bridge to SSE; tests may capture a slice.
type EventSink interface {
	Emit(eventType string, payload any)
}

// NoopEventSink discards every event. Used when no sink is injected.
type NoopEventSink struct{}

func (NoopEventSink) Emit(string, any) {}
