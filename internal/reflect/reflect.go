// Package reflect implements the reflection engine: once every arm in a
// partition has accumulated enough pulls, it retires the
// worst-performing arm, keeps the top half of the remainder's system
// prompts, and rewrites the rest from the best arm plus recent
// conversation exemplars.
package reflect

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/relaymesh/skillengine/internal/bandit"
	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/evaluator"
	"github.com/relaymesh/skillengine/internal/lock"
	"github.com/relaymesh/skillengine/internal/metrics"
)

// exemplarLimit caps how many recent requests feed the prompt reflector.
const exemplarLimit = 7

// Engine runs the reflection algorithm for one partition at a time.
type Engine struct {
	storage domain.StorageConnector
	logs    domain.LogConnector
	judge   domain.LLMClient
	locks   *lock.Manager
	events  domain.EventSink
	now     func() time.Time
}

// New creates a reflection Engine.
func New(storage domain.StorageConnector, logs domain.LogConnector, judge domain.LLMClient, events domain.EventSink) *Engine {
	if events == nil {
		events = domain.NoopEventSink{}
	}
	return &Engine{
		storage: storage,
		logs:    logs,
		judge:   judge,
		locks:   lock.New(storage),
		events:  events,
		now:     time.Now,
	}
}

// MaybeReflect checks the trigger condition for one partition (lock free
// or stale, every arm at or past the pull threshold, at least 2 arms)
// and, if met, runs the full algorithm under lock. It never returns an
// error to the caller: learning-path failures are swallowed, since this
// is always invoked fire-and-forget after RecordOutcome.
func (e *Engine) MaybeReflect(ctx context.Context, skillID, partitionID, holderID string) {
	skill, err := e.storage.GetSkill(ctx, skillID)
	if err != nil {
		return
	}
	if skill.ReflectionLock.IsHeld() && !skill.ReflectionLock.Stale(e.now(), lock.Reflection.Timeout()) {
		metrics.ReflectionTriggers.WithLabelValues("skipped").Inc()
		return
	}

	arms, err := e.storage.GetArmsByPartition(ctx, partitionID)
	if err != nil || len(arms) < 2 {
		return
	}
	for _, a := range arms {
		if a.Stats.N < int64(skill.MinPullsPerArm) {
			return
		}
	}

	acquired, release, err := e.locks.Acquire(ctx, skillID, lock.Reflection, holderID)
	if err != nil || !acquired {
		metrics.ReflectionTriggers.WithLabelValues("lock_lost").Inc()
		return
	}
	defer release()

	e.reflect(ctx, *skill, partitionID)
	metrics.ReflectionTriggers.WithLabelValues("completed").Inc()
}

// ResetPartition runs the reflection algorithm with freshly generated
// arms and no prerequisite checks: no arm is dropped, the top half of
// the arms by mean reward keep their system prompts, the rest get new
// prompts generated from the current best arm's prompt, and every arm is
// updated in place with its stats reset to zero.
func (e *Engine) ResetPartition(ctx context.Context, skillID, partitionID string) error {
	skill, err := e.storage.GetSkill(ctx, skillID)
	if err != nil {
		return fmt.Errorf("load skill %s: %w", skillID, err)
	}
	arms, err := e.storage.GetArmsByPartition(ctx, partitionID)
	if err != nil {
		return fmt.Errorf("load arms for partition %s: %w", partitionID, err)
	}
	if len(arms) == 0 {
		return domain.ErrNoArms
	}
	sorted := bandit.SortByMeanDescending(arms)
	return e.replaceArms(ctx, *skill, partitionID, sorted, sorted, len(sorted))
}

// reflect runs the reflection algorithm while holding the reflection
// lock (release deferred by the caller): identify best and worst arms,
// re-verify the pull threshold, rewrite the bottom half's prompts from
// the best arm, and swap the new generation in.
func (e *Engine) reflect(ctx context.Context, skill domain.Skill, partitionID string) {
	arms, err := e.storage.GetArmsByPartition(ctx, partitionID)
	if err != nil || len(arms) < 2 {
		return
	}

	sorted := bandit.SortByMeanDescending(arms)
	best := sorted[0]
	worst := sorted[len(sorted)-1]

	// Safety re-check: refetch and verify the threshold still holds.
	fresh, err := e.storage.GetArmsByPartition(ctx, partitionID)
	if err != nil {
		return
	}
	freshByID := make(map[string]domain.Arm, len(fresh))
	for _, a := range fresh {
		freshByID[a.ID] = a
	}
	bestFresh, bestOK := freshByID[best.ID]
	worstFresh, worstOK := freshByID[worst.ID]
	if !bestOK || !worstOK || bestFresh.Stats.N < int64(skill.MinPullsPerArm) || worstFresh.Stats.N < int64(skill.MinPullsPerArm) {
		return
	}

	if err := e.replaceArms(ctx, skill, partitionID, sorted, sorted[:len(sorted)-1], len(sorted)); err != nil {
		return
	}

	e.events.Emit("reflection.completed", map[string]any{
		"skill_id":     skill.ID,
		"partition_id": partitionID,
		"removed_arm":  worst.ID,
	})
}

// replaceArms builds and installs the next arm generation, shared with
// ResetPartition: given arms sorted best-to-worst and the subset to
// retain prompt lineage from (everything but the single worst arm for a
// normal reflection; all arms for a reset), it writes the new generation
// over the old one.
//
// The worst arm is dropped from the full set first, then the remaining
// set is halved; only the slots below the halfway line of that remainder
// are regenerated. Exactly one arm disappears per reflection cycle,
// independent of partition size.
func (e *Engine) replaceArms(ctx context.Context, skill domain.Skill, partitionID string, sortedAll, survivors []domain.Arm, totalBefore int) error {
	if len(survivors) == 0 {
		return domain.ErrInsufficientArms
	}
	best := sortedAll[0]

	keepCount := (len(survivors) + 1) / 2
	if keepCount < 1 {
		keepCount = 1
	}
	keep := survivors[:keepCount]
	toReplace := survivors[keepCount:]

	exemplars, err := e.fetchExemplars(ctx, skill.ID, partitionID)
	if err != nil {
		return err
	}

	candidates := make([]string, 0, len(toReplace))
	for range toReplace {
		prompt, err := e.generateCandidatePrompt(ctx, best.Params.SystemPrompt, exemplars, skill)
		if err != nil {
			return err
		}
		candidates = append(candidates, prompt)
	}

	keptPrompts := make([]string, len(keep))
	for i, a := range keep {
		keptPrompts[i] = a.Params.SystemPrompt
	}
	pool := append(keptPrompts, candidates...)
	if err := fisherYatesShuffle(pool); err != nil {
		return err
	}

	newArms := make([]domain.Arm, 0, len(keep)+len(toReplace))
	sourceArms := append(append([]domain.Arm{}, keep...), toReplace...)
	for i, prompt := range pool {
		source := sourceArms[i%len(sourceArms)]
		newArms = append(newArms, domain.Arm{
			PartitionID: partitionID,
			Params: domain.ArmParams{
				ModelID:        source.Params.ModelID,
				SystemPrompt:   prompt,
				SamplingParams: source.Params.SamplingParams,
			},
			Stats:     domain.ArmStats{},
			CreatedAt: e.now(),
		})
	}

	// Arm identity across this swap: when the arm count doesn't change
	// (always true for ResetPartition, since survivors and sortedAll are
	// the same set) update each existing row in place so its ID survives
	// for external consumers. A normal reflection cycle always drops
	// exactly one arm, so the count here is totalBefore-1; that case
	// deletes-and-recreates, and IDs are allowed to churn.
	if len(newArms) == totalBefore {
		for i := range newArms {
			if err := e.storage.UpdateArmParams(ctx, sortedAll[i].ID, newArms[i].Params); err != nil {
				return fmt.Errorf("update arm %s in place for partition %s: %w", sortedAll[i].ID, partitionID, err)
			}
		}
	} else {
		if err := e.storage.DeleteArmsForPartition(ctx, partitionID); err != nil {
			return fmt.Errorf("delete old arms for partition %s: %w", partitionID, err)
		}
		if err := e.storage.CreateArms(ctx, newArms); err != nil {
			return fmt.Errorf("create new arms for partition %s: %w", partitionID, err)
		}
	}

	zero := int64(0)
	if err := e.storage.UpdatePartition(ctx, partitionID, domain.PartitionPatch{TotalSteps: &zero}); err != nil {
		return fmt.Errorf("reset total_steps for partition %s: %w", partitionID, err)
	}
	return nil
}

// fetchExemplars implements step 1: up to 7 recent requests with a
// non-null embedding, rendered as conversation transcripts with
// structural constraints only.
func (e *Engine) fetchExemplars(ctx context.Context, skillID, partitionID string) ([]evaluator.Example, error) {
	if e.logs == nil {
		return nil, nil
	}
	records, err := e.logs.GetLogs(ctx, domain.LogQuery{
		SkillID:          skillID,
		PartitionID:      partitionID,
		EmbeddingNotNull: true,
		Limit:            exemplarLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch exemplars for partition %s: %w", partitionID, err)
	}
	examples := make([]evaluator.Example, 0, len(records))
	for _, r := range records {
		examples = append(examples, evaluator.Example{
			Transcript: evaluator.RenderTranscript(evaluator.Request{
				Messages:    r.InputMessages,
				Constraints: r.Constraints,
			}),
			Response: r.Response,
		})
	}
	return examples, nil
}

// generateCandidatePrompt calls the LLM prompt reflector. It applies
// its own domain.ReflectTimeout budget rather than inheriting the judge
// client's shorter default judge-call timeout; MaybeReflect is always
// dispatched with context.Background(), so on the reflection path
// nothing upstream imposes a deadline.
func (e *Engine) generateCandidatePrompt(ctx context.Context, bestPrompt string, exemplars []evaluator.Example, skill domain.Skill) (string, error) {
	if e.judge == nil {
		return bestPrompt, nil
	}
	prompt := fmt.Sprintf(
		"You are improving a system prompt for an LLM agent based on its best-performing "+
			"variant and recent real conversations.\n\nAgent: %s\nSkill: %s\n\n"+
			"Current best system prompt:\n%s\n\nRecent conversations:\n%s\n\n"+
			"Write an improved system prompt. Return plain text only, no preamble, no markdown fences.",
		skill.AgentDescription, skill.Description, bestPrompt, evaluator.RenderExamplesBlock(exemplars),
	)
	ctx, cancel := context.WithTimeout(ctx, domain.ReflectTimeout)
	defer cancel()
	out, err := e.judge.Judge(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("reflection prompt rewrite: %w", err)
	}
	return evaluator.StripMarkdownFences(out), nil
}

// fisherYatesShuffle randomizes prompt-to-slot assignment using a
// crypto/rand-backed uniform index draw. Unlike centroid seeding, the
// shuffle has no reproducibility requirement, so no seeded PRNG.
func fisherYatesShuffle(items []string) error {
	for i := len(items) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return err
		}
		items[i], items[j] = items[j], items[i]
	}
	return nil
}

func randomIndex(n int) (int, error) {
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		var buf [8]byte
		if _, rerr := rand.Read(buf[:]); rerr != nil {
			return 0, fmt.Errorf("random index draw: %w", err)
		}
		return int(binary.BigEndian.Uint64(buf[:]) % uint64(n)), nil
	}
	return int(v.Int64()), nil
}
