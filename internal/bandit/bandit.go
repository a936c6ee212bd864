// Package bandit implements the per-partition UCB1 multi-armed bandit that
// picks an arm for each request and folds back observed rewards: a
// cold-start sweep guarantees every arm gets pulled before scoring
// starts, then UCB1 trades off mean reward against uncertainty.
package bandit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/metrics"
)

// Selector chooses and updates arms for (skill, partition) pairs.
// It serializes concurrent updates to the same arm with a per-arm mutex
// while delegating durable state to the injected storage connector.
type Selector struct {
	storage domain.StorageConnector
	now     func() time.Time

	mu       sync.Mutex
	armLocks map[string]*sync.Mutex // armID -> dedicated update lock
}

// New creates a Selector over the given storage connector.
func New(storage domain.StorageConnector) *Selector {
	return &Selector{
		storage:  storage,
		now:      time.Now,
		armLocks: make(map[string]*sync.Mutex),
	}
}

// armLock returns (creating if needed) the dedicated mutex for one arm ID.
func (s *Selector) armLock(armID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.armLocks[armID]
	if !ok {
		l = &sync.Mutex{}
		s.armLocks[armID] = l
	}
	return l
}

// Select picks an arm for one partition:
//  1. cold-start sweep: any arm with n=0 wins outright (insertion order
//     tie-break, i.e. the order storage returned the arms in);
//  2. otherwise UCB1, ties broken by highest mean then insertion order.
func Select(arms []domain.Arm, explorationConstant float64) (domain.Arm, error) {
	if len(arms) == 0 {
		return domain.Arm{}, domain.ErrNoArms
	}

	for _, a := range arms {
		if a.Stats.N == 0 {
			metrics.ArmPulls.WithLabelValues("cold_start").Inc()
			return a, nil
		}
	}

	var total int64
	for _, a := range arms {
		total += a.Stats.N
	}

	c := explorationConstant
	if c <= 0 {
		c = 1.0
	}

	bestIdx := 0
	bestScore := ucb1(arms[0], total, c)
	for i := 1; i < len(arms); i++ {
		score := ucb1(arms[i], total, c)
		if score > bestScore ||
			(score == bestScore && arms[i].Stats.Mean > arms[bestIdx].Stats.Mean) {
			bestScore = score
			bestIdx = i
		}
	}
	metrics.ArmPulls.WithLabelValues("ucb1").Inc()
	return arms[bestIdx], nil
}

// ucb1 computes score(a) = mean + c*sqrt(2*ln(T)/n), T = Σ n over the
// partition's arms.
func ucb1(a domain.Arm, total int64, c float64) float64 {
	if a.Stats.N == 0 || total == 0 {
		return math.Inf(1)
	}
	exploitation := a.Stats.Mean
	exploration := c * math.Sqrt(2*math.Log(float64(total))/float64(a.Stats.N))
	return exploitation + exploration
}

// SelectForPartition loads the partition's arms and selects one, returning
// a handle the caller can later pass to Update.
func (s *Selector) SelectForPartition(ctx context.Context, skill domain.Skill, partitionID string) (domain.Arm, domain.ArmHandle, error) {
	arms, err := s.storage.GetArmsByPartition(ctx, partitionID)
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, fmt.Errorf("load arms for partition %s: %w", partitionID, err)
	}
	arm, err := Select(arms, skill.ExplorationConstant)
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, err
	}
	handle := domain.ArmHandle{
		ArmID:       arm.ID,
		PartitionID: partitionID,
		SkillID:     skill.ID,
		SelectedAt:  s.now(),
	}
	return arm, handle, nil
}

// RecordReward folds one reward observation into an arm's running
// statistics. The durable increment is
// delegated to storage.RecordArmReward as a single row-level delta so the
// update is linearizable even across separate processes; the in-process
// arm mutex additionally serializes same-process callers, so each
// caller's persisted write and the stats it returns are not interleaved
// with another caller's update of the same arm.
func (s *Selector) RecordReward(ctx context.Context, armID string, reward float64) (domain.ArmStats, error) {
	lock := s.armLock(armID)
	lock.Lock()
	defer lock.Unlock()

	stats, err := s.storage.RecordArmReward(ctx, armID, reward)
	if err != nil {
		return domain.ArmStats{}, fmt.Errorf("persist arm %s stats: %w", armID, err)
	}
	return stats, nil
}

// SortByMeanDescending returns arms ordered best-to-worst by mean reward,
// stable on ties (insertion order preserved), used by the reflection
// engine to identify top/bottom halves.
func SortByMeanDescending(arms []domain.Arm) []domain.Arm {
	sorted := make([]domain.Arm, len(arms))
	copy(sorted, arms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Stats.Mean > sorted[j].Stats.Mean
	})
	return sorted
}
