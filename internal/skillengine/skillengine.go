// Package skillengine assembles the engine's four-entry external
// interface from the component packages: partitioner, bandit selector,
// reward pipeline, reflection engine, and rubric bootstrap. It is the
// only package the surrounding gateway imports.
package skillengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/skillengine/internal/bandit"
	"github.com/relaymesh/skillengine/internal/bootstrap"
	"github.com/relaymesh/skillengine/internal/dispatch"
	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/evaluator"
	"github.com/relaymesh/skillengine/internal/partition"
	reflectengine "github.com/relaymesh/skillengine/internal/reflect"
	"github.com/relaymesh/skillengine/internal/reward"
)

// Engine is the Skill Optimization Engine: the single object a
// gateway process constructs and calls for every optimizable request.
type Engine struct {
	storage  domain.StorageConnector
	logs     domain.LogConnector
	judge    domain.LLMClient
	events   domain.EventSink
	registry *evaluator.Registry

	partitioner *partition.Partitioner
	selector    *bandit.Selector
	rewards     *reward.Pipeline
	reflection  *reflectengine.Engine
	bootstrap   *bootstrap.Engine
	dispatcher  *dispatch.Dispatcher

	holderID string // identifies this process as a lock writer
	now      func() time.Time
}

// New wires every component over a shared storage/log/judge/events
// collaborator set. dispatcher may be nil, in which case a
// DefaultConfig dispatcher is created.
func New(storage domain.StorageConnector, logs domain.LogConnector, judge domain.LLMClient, registry *evaluator.Registry, events domain.EventSink, dispatcher *dispatch.Dispatcher) *Engine {
	if events == nil {
		events = domain.NoopEventSink{}
	}
	if dispatcher == nil {
		dispatcher = dispatch.New(dispatch.DefaultConfig(), nil)
	}
	return &Engine{
		storage:     storage,
		logs:        logs,
		judge:       judge,
		events:      events,
		registry:    registry,
		partitioner: partition.New(judge),
		selector:    bandit.New(storage),
		rewards:     reward.New(registry),
		reflection:  reflectengine.New(storage, logs, judge, events),
		bootstrap:   bootstrap.New(storage, logs, judge, registry, events),
		dispatcher:  dispatcher,
		holderID:    uuid.NewString(),
		now:         time.Now,
	}
}

// SelectInput is the minimal request view selectArmForRequest needs.
type SelectInput struct {
	FunctionName domain.FunctionName
	Messages     []domain.Message
}

// SelectArmForRequest partitions the request and picks an arm for it.
// Non-optimizable function names bypass the partitioner and bandit
// entirely and receive the skill's default arm.
func (e *Engine) SelectArmForRequest(ctx context.Context, skillID string, in SelectInput) (domain.Arm, domain.ArmHandle, error) {
	skill, err := e.storage.GetSkill(ctx, skillID)
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, fmt.Errorf("select arm: load skill %s: %w", skillID, err)
	}

	partitions, err := e.storage.GetPartitions(ctx, skillID)
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, fmt.Errorf("select arm: load partitions for skill %s: %w", skillID, err)
	}

	if !domain.IsOptimizable(in.FunctionName) {
		return e.defaultArm(ctx, *skill, partitions)
	}

	chosen, _, err := e.partitioner.PartitionFor(ctx, *skill, partitions, partition.Request{Messages: in.Messages})
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, fmt.Errorf("select arm: partition skill %s: %w", skillID, err)
	}

	arm, handle, err := e.selector.SelectForPartition(ctx, *skill, chosen.ID)
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, fmt.Errorf("select arm: select for partition %s: %w", chosen.ID, err)
	}
	return arm, handle, nil
}

// defaultArm is the non-optimizable fallback: first arm of the first
// partition, or a null arm when the skill has neither.
func (e *Engine) defaultArm(ctx context.Context, skill domain.Skill, partitions []domain.Partition) (domain.Arm, domain.ArmHandle, error) {
	if len(partitions) == 0 {
		return domain.Arm{}, domain.ArmHandle{SkillID: skill.ID, SelectedAt: e.now()}, nil
	}
	first := partitions[0]
	arms, err := e.storage.GetArmsByPartition(ctx, first.ID)
	if err != nil {
		return domain.Arm{}, domain.ArmHandle{}, fmt.Errorf("select default arm: load arms for partition %s: %w", first.ID, err)
	}
	if len(arms) == 0 {
		return domain.Arm{}, domain.ArmHandle{SkillID: skill.ID, PartitionID: first.ID, SelectedAt: e.now()}, nil
	}
	arm := arms[0]
	return arm, domain.ArmHandle{
		ArmID:       arm.ID,
		PartitionID: first.ID,
		SkillID:     skill.ID,
		SelectedAt:  e.now(),
	}, nil
}

// RecordInput is the completed-call view recordOutcome needs to score
// the reward and render reflection/bootstrap exemplars.
type RecordInput struct {
	Messages    []domain.Message
	Constraints domain.RequestConstraints
	Response    string
}

// RecordOutcome scores the completed call's reward, folds it into the
// arm's running statistics, bumps the partition/skill counters, then
// dispatches the reflection and bootstrap checks fire-and-forget. Only
// ever call this for handles produced for an optimizable request;
// non-optimizable calls bypass the learning pipeline and have nothing
// to record.
func (e *Engine) RecordOutcome(ctx context.Context, handle domain.ArmHandle, in RecordInput) error {
	if handle.ArmID == "" || handle.PartitionID == "" {
		return nil
	}

	skill, err := e.storage.GetSkill(ctx, handle.SkillID)
	if err != nil {
		return fmt.Errorf("record outcome: load skill %s: %w", handle.SkillID, err)
	}
	evaluations, err := e.storage.GetEvaluations(ctx, handle.SkillID)
	if err != nil {
		return fmt.Errorf("record outcome: load evaluations for skill %s: %w", handle.SkillID, err)
	}

	req := evaluator.Request{Messages: in.Messages, Constraints: in.Constraints}
	r, _ := e.rewards.Combine(ctx, e.judge, evaluations, req, in.Response)

	if _, err := e.selector.RecordReward(ctx, handle.ArmID, r); err != nil {
		return fmt.Errorf("record outcome: update arm %s: %w", handle.ArmID, err)
	}

	if err := e.storage.IncrementPartitionCounters(ctx, handle.PartitionID); err != nil {
		return fmt.Errorf("record outcome: bump partition %s counters: %w", handle.PartitionID, err)
	}
	if err := e.storage.IncrementSkillTotalRequests(ctx, skill.ID); err != nil {
		return fmt.Errorf("record outcome: bump skill %s total_requests: %w", skill.ID, err)
	}

	e.events.Emit("outcome.recorded", map[string]any{
		"skill_id":     skill.ID,
		"partition_id": handle.PartitionID,
		"arm_id":       handle.ArmID,
		"reward":       r,
	})

	// Fire-and-forget. Background jobs run on their own context:
	// the inbound ctx is tied to the caller's request lifetime and may
	// be cancelled the moment this function returns.
	skillID, partitionID := skill.ID, handle.PartitionID
	e.dispatcher.Submit("reflect:"+partitionID, func() {
		e.reflection.MaybeReflect(context.Background(), skillID, partitionID, e.holderID)
	})
	e.dispatcher.Submit("bootstrap:"+skillID, func() {
		e.bootstrap.MaybeBootstrap(context.Background(), skillID, e.holderID)
	})

	return nil
}

// ResetOptions controls the optional counter-clearing behavior of the
// two reset entries.
type ResetOptions struct {
	ClearObservabilityCount bool
}

// ResetPartition runs the reflection algorithm with freshly generated
// arms and no prerequisite checks. Arm IDs are preserved where the arm
// count is unchanged; total_steps is always zeroed, total_requests only
// when requested.
func (e *Engine) ResetPartition(ctx context.Context, skillID, partitionID string, opts ResetOptions) error {
	if err := e.reflection.ResetPartition(ctx, skillID, partitionID); err != nil {
		return fmt.Errorf("reset partition %s: %w", partitionID, err)
	}
	if !opts.ClearObservabilityCount {
		return nil
	}
	zero := int64(0)
	if err := e.storage.UpdatePartition(ctx, partitionID, domain.PartitionPatch{TotalRequests: &zero}); err != nil {
		return fmt.Errorf("reset partition %s total_requests: %w", partitionID, err)
	}
	return nil
}

// ResetSkill reseeds centroids in place (never delete-recreate, so
// partition IDs survive for external consumers), regenerates every
// partition's arms, and re-parameterizes evaluations from the skill and
// agent description alone. No traffic examples, unlike the rubric
// bootstrap.
func (e *Engine) ResetSkill(ctx context.Context, skillID string, opts ResetOptions) error {
	skill, err := e.storage.GetSkill(ctx, skillID)
	if err != nil {
		return fmt.Errorf("reset skill %s: load skill: %w", skillID, err)
	}
	partitions, err := e.storage.GetPartitions(ctx, skillID)
	if err != nil {
		return fmt.Errorf("reset skill %s: load partitions: %w", skillID, err)
	}

	centroids := partition.SeedCentroids(skillID, len(partitions), skill.EmbeddingDim)
	for i, p := range partitions {
		var centroid []float64
		if i < len(centroids) {
			centroid = centroids[i]
		}
		if err := e.storage.UpdatePartition(ctx, p.ID, domain.PartitionPatch{Centroid: centroid}); err != nil {
			return fmt.Errorf("reset skill %s: reseed centroid for partition %s: %w", skillID, p.ID, err)
		}
		if err := e.reflection.ResetPartition(ctx, skillID, p.ID); err != nil {
			return fmt.Errorf("reset skill %s: regenerate arms for partition %s: %w", skillID, p.ID, err)
		}
		if opts.ClearObservabilityCount {
			zero := int64(0)
			if err := e.storage.UpdatePartition(ctx, p.ID, domain.PartitionPatch{TotalRequests: &zero}); err != nil {
				return fmt.Errorf("reset skill %s: clear total_requests for partition %s: %w", skillID, p.ID, err)
			}
		}
	}

	evaluations, err := e.storage.GetEvaluations(ctx, skillID)
	if err != nil {
		return fmt.Errorf("reset skill %s: load evaluations: %w", skillID, err)
	}
	for _, ev := range evaluations {
		impl, ok := e.registry.Get(ev.Method)
		if !ok {
			continue
		}
		params, err := impl.GenerateParamsFromExamples(ctx, e.judge, skill.AgentDescription, skill.Description, nil)
		if err != nil {
			return fmt.Errorf("reset skill %s: reparameterize evaluation %s: %w", skillID, ev.ID, err)
		}
		if err := e.registry.ValidateParams(ev.Method, params); err != nil {
			return fmt.Errorf("reset skill %s: validate evaluation %s params: %w", skillID, ev.ID, err)
		}
		if err := e.storage.UpdateEvaluation(ctx, ev.ID, params); err != nil {
			return fmt.Errorf("reset skill %s: persist evaluation %s: %w", skillID, ev.ID, err)
		}
	}

	e.events.Emit("skill.reset", map[string]any{"skill_id": skillID})
	return nil
}
