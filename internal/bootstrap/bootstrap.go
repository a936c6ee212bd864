// Package bootstrap implements the rubric bootstrap: the one-time-per-
// skill regeneration of evaluator parameters and the arm
// system prompt from a skill's first real traffic, replacing the
// description-only rubrics synthesized at skill creation.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/evaluator"
	"github.com/relaymesh/skillengine/internal/lock"
	"github.com/relaymesh/skillengine/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// exampleLimit caps how many recent real examples feed the regeneration.
const exampleLimit = 5

// minLoggedRequests is how many embedded requests a skill needs logged
// before the bootstrap is allowed to run.
const minLoggedRequests = 5

// Engine runs the rubric-bootstrap algorithm for one skill at a time.
type Engine struct {
	storage  domain.StorageConnector
	logs     domain.LogConnector
	judge    domain.LLMClient
	registry *evaluator.Registry
	locks    *lock.Manager
	events   domain.EventSink
	now      func() time.Time
}

// New creates a bootstrap Engine.
func New(storage domain.StorageConnector, logs domain.LogConnector, judge domain.LLMClient, registry *evaluator.Registry, events domain.EventSink) *Engine {
	if events == nil {
		events = domain.NoopEventSink{}
	}
	return &Engine{
		storage:  storage,
		logs:     logs,
		judge:    judge,
		registry: registry,
		locks:    lock.New(storage),
		events:   events,
		now:      time.Now,
	}
}

// MaybeBootstrap checks the trigger condition for a skill (not yet
// regenerated, lock free or stale, enough embedded requests logged) and,
// if met, runs the regeneration algorithm under lock. As with the
// reflection engine, all failures are swallowed; this always runs
// fire-and-forget after recordOutcome.
func (e *Engine) MaybeBootstrap(ctx context.Context, skillID, holderID string) {
	skill, err := e.storage.GetSkill(ctx, skillID)
	if err != nil {
		return
	}
	if skill.EvaluationsRegeneratedAt != nil {
		return
	}
	if skill.EvaluationLock.IsHeld() && !skill.EvaluationLock.Stale(e.now(), lock.Evaluation.Timeout()) {
		metrics.BootstrapCompletions.WithLabelValues("skipped").Inc()
		return
	}
	count, err := e.logs.CountLogs(ctx, domain.LogQuery{SkillID: skillID, EmbeddingNotNull: true})
	if err != nil || count < minLoggedRequests {
		return
	}

	acquired, release, err := e.locks.Acquire(ctx, skillID, lock.Evaluation, holderID)
	if err != nil || !acquired {
		metrics.BootstrapCompletions.WithLabelValues("lock_lost").Inc()
		return
	}
	defer release()

	// Completion re-check: another worker may have finished between the
	// trigger check and lock acquisition.
	reloaded, err := e.storage.GetSkill(ctx, skillID)
	if err != nil || reloaded.EvaluationsRegeneratedAt != nil {
		return
	}

	e.bootstrap(ctx, *reloaded)
	metrics.BootstrapCompletions.WithLabelValues("completed").Inc()
}

func (e *Engine) bootstrap(ctx context.Context, skill domain.Skill) {
	examples, responseFormat, err := e.fetchExamples(ctx, skill.ID)
	if err != nil {
		return
	}

	existing, err := e.storage.GetEvaluations(ctx, skill.ID)
	if err != nil {
		return
	}

	var newParams []map[string]any
	var seedPrompt string

	g, gctx := errgroup.WithContext(ctx)
	newParams = make([]map[string]any, len(existing))
	g.Go(func() error {
		for i, ev := range existing {
			impl, ok := e.registry.Get(ev.Method)
			if !ok {
				newParams[i] = ev.Params
				continue
			}
			params, err := impl.GenerateParamsFromExamples(gctx, e.judge, skill.AgentDescription, skill.Description, examples)
			if err != nil {
				return fmt.Errorf("regenerate params for %s: %w", ev.Method, err)
			}
			newParams[i] = params
		}
		return nil
	})
	g.Go(func() error {
		prompt, err := e.generateSeedPrompt(gctx, skill, examples, responseFormat)
		if err != nil {
			return err
		}
		seedPrompt = prompt
		return nil
	})
	if err := g.Wait(); err != nil {
		return
	}

	newEvaluations := make([]domain.Evaluation, len(existing))
	for i, ev := range existing {
		// Pre-validate before persisting. A malformed generated params
		// pack aborts the whole run; the next qualifying request retries.
		if _, ok := e.registry.Get(ev.Method); ok {
			if err := e.registry.ValidateParams(ev.Method, newParams[i]); err != nil {
				return
			}
		}
		newEvaluations[i] = domain.Evaluation{
			SkillID: skill.ID,
			Method:  ev.Method,
			Weight:  ev.Weight,
			Params:  newParams[i],
		}
	}
	if err := e.storage.DeleteEvaluationsForSkill(ctx, skill.ID); err != nil {
		return
	}
	if err := e.storage.CreateEvaluations(ctx, newEvaluations); err != nil {
		return
	}

	partitions, err := e.storage.GetPartitions(ctx, skill.ID)
	if err != nil {
		return
	}
	for _, p := range partitions {
		if err := e.replaceArmsWithSeedPrompt(ctx, p.ID, seedPrompt); err != nil {
			return
		}
	}

	// Single-write completion + lock-clear.
	now := e.now()
	if err := e.storage.SetEvaluationsRegeneratedAndClearLock(ctx, skill.ID, now); err != nil {
		return
	}

	// total_steps reset happens strictly after the completion write, so
	// concurrent increments during regeneration are erased rather than
	// racing the completion flag.
	zero := int64(0)
	for _, p := range partitions {
		_ = e.storage.UpdatePartition(ctx, p.ID, domain.PartitionPatch{TotalSteps: &zero})
	}

	e.events.Emit("bootstrap.completed", map[string]any{"skill_id": skill.ID})
}

// replaceArmsWithSeedPrompt swaps every arm's system prompt for the new
// seed prompt and resets its stats. The arm count never changes here, so
// every arm is updated in place via UpdateArmParams rather than deleted
// and recreated, preserving arm IDs for external consumers.
func (e *Engine) replaceArmsWithSeedPrompt(ctx context.Context, partitionID, seedPrompt string) error {
	arms, err := e.storage.GetArmsByPartition(ctx, partitionID)
	if err != nil {
		return fmt.Errorf("load arms for partition %s: %w", partitionID, err)
	}
	for _, a := range arms {
		params := domain.ArmParams{
			ModelID:        a.Params.ModelID,
			SystemPrompt:   seedPrompt,
			SamplingParams: a.Params.SamplingParams,
		}
		if err := e.storage.UpdateArmParams(ctx, a.ID, params); err != nil {
			return fmt.Errorf("update arm %s in place for partition %s: %w", a.ID, partitionID, err)
		}
	}
	return nil
}

// fetchExamples loads the recent real examples and sniffs a
// response-format schema from the first request that declares one.
func (e *Engine) fetchExamples(ctx context.Context, skillID string) ([]evaluator.Example, map[string]any, error) {
	records, err := e.logs.GetLogs(ctx, domain.LogQuery{SkillID: skillID, EmbeddingNotNull: true, Limit: exampleLimit})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch bootstrap examples: %w", err)
	}
	examples := make([]evaluator.Example, 0, len(records))
	var responseFormat map[string]any
	for _, r := range records {
		examples = append(examples, evaluator.Example{
			Transcript: evaluator.RenderTranscript(evaluator.Request{Messages: r.InputMessages, Constraints: r.Constraints}),
			Response:   r.Response,
		})
		if responseFormat == nil && r.Constraints.ResponseFormat != nil {
			responseFormat = r.Constraints.ResponseFormat
		}
	}
	return examples, responseFormat, nil
}

func (e *Engine) generateSeedPrompt(ctx context.Context, skill domain.Skill, examples []evaluator.Example, responseFormat map[string]any) (string, error) {
	if e.judge == nil {
		return "", nil
	}
	prompt := fmt.Sprintf(
		"Write a system prompt for an LLM agent from its description and real traffic.\n\n"+
			"Agent: %s\nSkill: %s\nResponse format (if any): %v\n\nExamples:\n%s\n\n"+
			"Return plain text only, no preamble, no markdown fences.",
		skill.AgentDescription, skill.Description, responseFormat, evaluator.RenderExamplesBlock(examples),
	)
	out, err := e.judge.Judge(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("generate seed prompt: %w", err)
	}
	return evaluator.StripMarkdownFences(out), nil
}
