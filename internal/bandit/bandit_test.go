package bandit

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/skillengine/internal/domain"
)

func TestSelect_ColdStartSweepsUnpulledArm(t *testing.T) {
	arms := []domain.Arm{
		{ID: "a", Stats: domain.ArmStats{N: 10, Mean: 0.9}},
		{ID: "b", Stats: domain.ArmStats{N: 0}},
		{ID: "c", Stats: domain.ArmStats{N: 5, Mean: 0.1}},
	}
	got, err := Select(arms, 1.0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("expected cold-start arm b, got %s", got.ID)
	}
}

func TestSelect_NoArmsReturnsErrNoArms(t *testing.T) {
	_, err := Select(nil, 1.0)
	if err != domain.ErrNoArms {
		t.Fatalf("expected ErrNoArms, got %v", err)
	}
}

func TestSelect_UCB1PrefersHigherMeanAtEqualPulls(t *testing.T) {
	arms := []domain.Arm{
		{ID: "low", Stats: domain.ArmStats{N: 20, Mean: 0.2}},
		{ID: "high", Stats: domain.ArmStats{N: 20, Mean: 0.8}},
	}
	got, err := Select(arms, 1.0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "high" {
		t.Fatalf("expected higher-mean arm to win once pulls are equal, got %s", got.ID)
	}
}

func TestSelect_NonPositiveConstantTieBreaksByInsertionOrder(t *testing.T) {
	arms := []domain.Arm{
		{ID: "a", Stats: domain.ArmStats{N: 5, Mean: 0.5}},
		{ID: "b", Stats: domain.ArmStats{N: 5, Mean: 0.5}},
	}
	got, err := Select(arms, 0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "a" {
		t.Fatalf("expected tie to break to first arm by insertion order, got %s", got.ID)
	}
}

type fakeArmStorage struct {
	domain.StorageConnector
	arms    []domain.Arm
	current map[string]domain.ArmStats
	updated map[string]domain.ArmStats
}

func (f *fakeArmStorage) GetArmsByPartition(ctx context.Context, partitionID string) ([]domain.Arm, error) {
	return f.arms, nil
}

func (f *fakeArmStorage) RecordArmReward(ctx context.Context, armID string, reward float64) (domain.ArmStats, error) {
	if f.current == nil {
		f.current = make(map[string]domain.ArmStats)
	}
	stats := f.current[armID]
	stats.Observe(reward)
	f.current[armID] = stats

	if f.updated == nil {
		f.updated = make(map[string]domain.ArmStats)
	}
	f.updated[armID] = stats
	return stats, nil
}

func TestSelectForPartition_ReturnsHandleStampedWithNow(t *testing.T) {
	storage := &fakeArmStorage{arms: []domain.Arm{{ID: "only", PartitionID: "p1", Stats: domain.ArmStats{N: 0}}}}
	sel := New(storage)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sel.now = func() time.Time { return fixed }

	arm, handle, err := sel.SelectForPartition(context.Background(), domain.Skill{ID: "s1", ExplorationConstant: 1.0}, "p1")
	if err != nil {
		t.Fatalf("SelectForPartition: %v", err)
	}
	if arm.ID != "only" || handle.ArmID != "only" || handle.PartitionID != "p1" || handle.SkillID != "s1" {
		t.Fatalf("unexpected handle: %+v", handle)
	}
	if !handle.SelectedAt.Equal(fixed) {
		t.Fatalf("expected SelectedAt to use injected clock, got %v", handle.SelectedAt)
	}
}

func TestRecordReward_PersistsObservedReward(t *testing.T) {
	storage := &fakeArmStorage{current: map[string]domain.ArmStats{
		"arm1": {N: 1, TotalReward: 0.5, Mean: 0.5},
	}}
	sel := New(storage)

	next, err := sel.RecordReward(context.Background(), "arm1", 1.0)
	if err != nil {
		t.Fatalf("RecordReward: %v", err)
	}
	if next.N != 2 || next.TotalReward != 1.5 || next.Mean != 0.75 {
		t.Fatalf("unexpected stats after update: %+v", next)
	}
	persisted, ok := storage.updated["arm1"]
	if !ok {
		t.Fatalf("expected RecordArmReward to be called for arm1")
	}
	if persisted != next {
		t.Fatalf("persisted stats %+v did not match returned stats %+v", persisted, next)
	}
}

func TestRecordReward_ConcurrentCallsNeverLoseAnUpdate(t *testing.T) {
	storage := &fakeArmStorage{current: map[string]domain.ArmStats{"arm1": {}}}
	sel := New(storage)

	const n = 50
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := sel.RecordReward(context.Background(), "arm1", 1.0); err != nil {
				t.Errorf("RecordReward: %v", err)
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	final := storage.current["arm1"]
	if final.N != n {
		t.Fatalf("expected n=%d after %d concurrent rewards, got %d", n, n, final.N)
	}
	if final.Mean != final.TotalReward/float64(final.N) {
		t.Fatalf("mean %v does not match totalReward/n = %v", final.Mean, final.TotalReward/float64(final.N))
	}
}

func TestSortByMeanDescending_StableOnTies(t *testing.T) {
	arms := []domain.Arm{
		{ID: "a", Stats: domain.ArmStats{Mean: 0.5}},
		{ID: "b", Stats: domain.ArmStats{Mean: 0.9}},
		{ID: "c", Stats: domain.ArmStats{Mean: 0.5}},
	}
	sorted := SortByMeanDescending(arms)
	if sorted[0].ID != "b" {
		t.Fatalf("expected highest-mean arm first, got %s", sorted[0].ID)
	}
	if sorted[1].ID != "a" || sorted[2].ID != "c" {
		t.Fatalf("expected ties to preserve insertion order, got order %s,%s", sorted[1].ID, sorted[2].ID)
	}
	if arms[0].ID != "a" {
		t.Fatalf("SortByMeanDescending must not mutate its input")
	}
}
