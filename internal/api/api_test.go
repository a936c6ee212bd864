package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaymesh/skillengine/internal/domain"
)

type fakeStorage struct {
	skill      domain.Skill
	partitions []domain.Partition
	arms       []domain.Arm
}

func (f fakeStorage) GetSkill(ctx context.Context, id string) (*domain.Skill, error) {
	if id != f.skill.ID {
		return nil, domain.ErrSkillNotFound
	}
	s := f.skill
	return &s, nil
}
func (f fakeStorage) UpdateSkill(ctx context.Context, id string, patch domain.SkillPatch) error {
	return nil
}
func (f fakeStorage) IncrementSkillTotalRequests(ctx context.Context, skillID string) error {
	return nil
}
func (f fakeStorage) CompareAndSwapReflectionLock(ctx context.Context, skillID string, want domain.Lock, staleAfter time.Duration) (bool, domain.Lock, error) {
	return true, want, nil
}
func (f fakeStorage) CompareAndSwapEvaluationLock(ctx context.Context, skillID string, want domain.Lock, staleAfter time.Duration) (bool, domain.Lock, error) {
	return true, want, nil
}
func (f fakeStorage) ClearReflectionLock(ctx context.Context, skillID string) error { return nil }
func (f fakeStorage) ClearEvaluationLock(ctx context.Context, skillID string) error { return nil }
func (f fakeStorage) SetEvaluationsRegeneratedAndClearLock(ctx context.Context, skillID string, at time.Time) error {
	return nil
}
func (f fakeStorage) GetPartitions(ctx context.Context, skillID string) ([]domain.Partition, error) {
	return f.partitions, nil
}
func (f fakeStorage) CreatePartitions(ctx context.Context, partitions []domain.Partition) error {
	return nil
}
func (f fakeStorage) UpdatePartition(ctx context.Context, id string, patch domain.PartitionPatch) error {
	return nil
}
func (f fakeStorage) DeletePartition(ctx context.Context, id string) error { return nil }
func (f fakeStorage) IncrementPartitionCounters(ctx context.Context, partitionID string) error {
	return nil
}
func (f fakeStorage) GetArmsByPartition(ctx context.Context, partitionID string) ([]domain.Arm, error) {
	return f.arms, nil
}
func (f fakeStorage) GetArmsBySkill(ctx context.Context, skillID string) ([]domain.Arm, error) {
	return nil, nil
}
func (f fakeStorage) CreateArms(ctx context.Context, arms []domain.Arm) error { return nil }
func (f fakeStorage) DeleteArmsForPartition(ctx context.Context, partitionID string) error {
	return nil
}
func (f fakeStorage) DeleteArmsForSkill(ctx context.Context, skillID string) error { return nil }
func (f fakeStorage) RecordArmReward(ctx context.Context, armID string, reward float64) (domain.ArmStats, error) {
	return domain.ArmStats{}, nil
}
func (f fakeStorage) UpdateArmParams(ctx context.Context, armID string, params domain.ArmParams) error {
	return nil
}
func (f fakeStorage) GetEvaluations(ctx context.Context, skillID string) ([]domain.Evaluation, error) {
	return nil, nil
}
func (f fakeStorage) CreateEvaluations(ctx context.Context, evaluations []domain.Evaluation) error {
	return nil
}
func (f fakeStorage) DeleteEvaluationsForSkill(ctx context.Context, skillID string) error {
	return nil
}
func (f fakeStorage) UpdateEvaluation(ctx context.Context, id string, params map[string]any) error {
	return nil
}

func TestHealthz(t *testing.T) {
	s := NewServer(fakeStorage{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetSkill_NotFound(t *testing.T) {
	s := NewServer(fakeStorage{skill: domain.Skill{ID: "known"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/skills/unknown", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSkill_Found(t *testing.T) {
	s := NewServer(fakeStorage{
		skill:      domain.Skill{ID: "skill-1"},
		partitions: []domain.Partition{{ID: "p1", SkillID: "skill-1"}},
	}, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/skills/skill-1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetArms(t *testing.T) {
	s := NewServer(fakeStorage{arms: []domain.Arm{{ID: "a1", PartitionID: "p1"}}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/arms/p1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
