package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/skillengine/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSkill(t *testing.T, db *DB, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO skills (id, agent_id, agent_description, description, partition_count, min_pulls_per_arm,
			system_prompt_variants, embedding_model, embedding_dim, exploration_constant, created_at)
		VALUES (?, 'agent-1', 'an agent', 'a skill', 2, 2, 3, 'text-embed', 2, 1.0, ?)`,
		id, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		t.Fatalf("seed skill: %v", err)
	}
}

func TestGetSkill_RoundTrips(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")

	skill, err := db.GetSkill(context.Background(), "skill-1")
	if err != nil {
		t.Fatalf("get skill: %v", err)
	}
	if skill.AgentID != "agent-1" || skill.PartitionCount != 2 || skill.MinPullsPerArm != 2 {
		t.Fatalf("unexpected skill: %+v", skill)
	}
	if skill.ReflectionLock.IsHeld() {
		t.Fatal("expected no reflection lock on a fresh skill")
	}
}

func TestGetSkill_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSkill(context.Background(), "missing")
	if err != domain.ErrSkillNotFound {
		t.Fatalf("expected ErrSkillNotFound, got %v", err)
	}
}

func TestCompareAndSwapReflectionLock_SecondWriterLosesUntilStale(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")
	ctx := context.Background()

	now := time.Now()
	want1 := domain.Lock{HolderID: "worker-1", AcquiredAt: now}
	won, observed, err := db.CompareAndSwapReflectionLock(ctx, "skill-1", want1, 10*time.Minute)
	if err != nil || !won || !observed.AcquiredAt.Equal(now) {
		t.Fatalf("expected first writer to win, got won=%v observed=%+v err=%v", won, observed, err)
	}

	want2 := domain.Lock{HolderID: "worker-2", AcquiredAt: now.Add(time.Second)}
	won2, observed2, err := db.CompareAndSwapReflectionLock(ctx, "skill-1", want2, 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won2 {
		t.Fatal("expected second writer to lose while lock is fresh")
	}
	if !observed2.AcquiredAt.Equal(now) {
		t.Fatalf("expected observed lock to be the first writer's, got %+v", observed2)
	}

	// A writer arriving after the staleness window wins. Staleness is
	// judged against the store's clock, so advance it past the timeout.
	db.now = func() time.Time { return now.Add(11 * time.Minute) }
	want3 := domain.Lock{HolderID: "worker-3", AcquiredAt: now.Add(11 * time.Minute)}
	won3, _, err := db.CompareAndSwapReflectionLock(ctx, "skill-1", want3, 10*time.Minute)
	if err != nil || !won3 {
		t.Fatalf("expected stale lock to be reclaimed, got won=%v err=%v", won3, err)
	}
}

func TestArmLifecycle_CreateUpdateDelete(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")
	ctx := context.Background()

	if err := db.CreatePartitions(ctx, []domain.Partition{{ID: "p1", SkillID: "skill-1", Index: 1, Centroid: []float64{1, 0}}}); err != nil {
		t.Fatalf("create partition: %v", err)
	}

	arms := []domain.Arm{
		{PartitionID: "p1", Params: domain.ArmParams{ModelID: "m1", SystemPrompt: "p1", SamplingParams: map[string]any{"temperature": 0.7}}},
		{PartitionID: "p1", Params: domain.ArmParams{ModelID: "m1", SystemPrompt: "p2"}},
	}
	if err := db.CreateArms(ctx, arms); err != nil {
		t.Fatalf("create arms: %v", err)
	}

	loaded, err := db.GetArmsByPartition(ctx, "p1")
	if err != nil || len(loaded) != 2 {
		t.Fatalf("expected 2 arms, got %d err=%v", len(loaded), err)
	}

	stats, err := db.RecordArmReward(ctx, loaded[0].ID, 0.8)
	if err != nil {
		t.Fatalf("record arm reward: %v", err)
	}
	if stats.N != 1 || stats.Mean != 0.8 {
		t.Fatalf("unexpected stats from RecordArmReward: %+v", stats)
	}

	reloaded, _ := db.GetArmsByPartition(ctx, "p1")
	var found bool
	for _, a := range reloaded {
		if a.ID == loaded[0].ID {
			found = true
			if a.Stats.N != 1 || a.Stats.Mean != 0.8 {
				t.Fatalf("unexpected stats after update: %+v", a.Stats)
			}
		}
	}
	if !found {
		t.Fatal("updated arm not found")
	}

	if err := db.DeleteArmsForPartition(ctx, "p1"); err != nil {
		t.Fatalf("delete arms: %v", err)
	}
	remaining, _ := db.GetArmsByPartition(ctx, "p1")
	if len(remaining) != 0 {
		t.Fatalf("expected 0 arms after delete, got %d", len(remaining))
	}
}

func TestRecordArmReward_AccumulatesAcrossCalls(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")
	ctx := context.Background()

	if err := db.CreatePartitions(ctx, []domain.Partition{{ID: "p1", SkillID: "skill-1", Index: 1, Centroid: []float64{1, 0}}}); err != nil {
		t.Fatalf("create partition: %v", err)
	}
	if err := db.CreateArms(ctx, []domain.Arm{{PartitionID: "p1", Params: domain.ArmParams{ModelID: "m1"}}}); err != nil {
		t.Fatalf("create arms: %v", err)
	}
	loaded, _ := db.GetArmsByPartition(ctx, "p1")
	armID := loaded[0].ID

	if _, err := db.RecordArmReward(ctx, armID, 1.0); err != nil {
		t.Fatalf("first reward: %v", err)
	}
	stats, err := db.RecordArmReward(ctx, armID, 0.0)
	if err != nil {
		t.Fatalf("second reward: %v", err)
	}
	if stats.N != 2 || stats.TotalReward != 1.0 || stats.Mean != 0.5 {
		t.Fatalf("unexpected accumulated stats: %+v", stats)
	}
	if _, err := db.RecordArmReward(ctx, "does-not-exist", 0.5); err != domain.ErrArmNotFound {
		t.Fatalf("expected ErrArmNotFound for unknown arm, got %v", err)
	}
}

func TestIncrementPartitionCounters_AccumulatesBothFields(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")
	ctx := context.Background()
	if err := db.CreatePartitions(ctx, []domain.Partition{{ID: "p1", SkillID: "skill-1", Index: 1, Centroid: []float64{1, 0}}}); err != nil {
		t.Fatalf("create partition: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := db.IncrementPartitionCounters(ctx, "p1"); err != nil {
			t.Fatalf("increment partition counters: %v", err)
		}
	}

	partitions, err := db.GetPartitions(ctx, "skill-1")
	if err != nil || len(partitions) != 1 {
		t.Fatalf("get partitions: %+v err=%v", partitions, err)
	}
	if partitions[0].TotalSteps != 3 || partitions[0].TotalRequests != 3 {
		t.Fatalf("expected total_steps=total_requests=3, got %+v", partitions[0])
	}

	if err := db.IncrementPartitionCounters(ctx, "missing"); err != domain.ErrPartitionNotFound {
		t.Fatalf("expected ErrPartitionNotFound for unknown partition, got %v", err)
	}
}

func TestEvaluationLifecycle(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")
	ctx := context.Background()

	evals := []domain.Evaluation{
		{SkillID: "skill-1", Method: domain.MethodTurnRelevancy, Weight: 1, Params: map[string]any{"focus": "x"}},
	}
	if err := db.CreateEvaluations(ctx, evals); err != nil {
		t.Fatalf("create evaluations: %v", err)
	}
	loaded, err := db.GetEvaluations(ctx, "skill-1")
	if err != nil || len(loaded) != 1 {
		t.Fatalf("expected 1 evaluation, got %d err=%v", len(loaded), err)
	}
	if err := db.DeleteEvaluationsForSkill(ctx, "skill-1"); err != nil {
		t.Fatalf("delete evaluations: %v", err)
	}
	remaining, _ := db.GetEvaluations(ctx, "skill-1")
	if len(remaining) != 0 {
		t.Fatalf("expected 0 evaluations after delete, got %d", len(remaining))
	}
}

func TestSetEvaluationsRegeneratedAndClearLock_SingleWrite(t *testing.T) {
	db := newTestDB(t)
	seedSkill(t, db, "skill-1")
	ctx := context.Background()

	now := time.Now()
	db.CompareAndSwapEvaluationLock(ctx, "skill-1", domain.Lock{HolderID: "w1", AcquiredAt: now}, 5*time.Minute)

	completedAt := now.Add(time.Minute)
	if err := db.SetEvaluationsRegeneratedAndClearLock(ctx, "skill-1", completedAt); err != nil {
		t.Fatalf("set regenerated: %v", err)
	}
	skill, err := db.GetSkill(ctx, "skill-1")
	if err != nil {
		t.Fatalf("get skill: %v", err)
	}
	if skill.EvaluationsRegeneratedAt == nil || !skill.EvaluationsRegeneratedAt.Equal(completedAt) {
		t.Fatalf("expected completion timestamp set, got %+v", skill.EvaluationsRegeneratedAt)
	}
	if skill.EvaluationLock.IsHeld() {
		t.Fatal("expected evaluation lock to be cleared by the same write")
	}
}
