// Package reward implements the reward pipeline: it combines a skill's
// configured evaluations into a single scalar reward for the
// bandit, weighting each evaluator's score by its configured weight and
// falling back to a neutral score wherever an evaluator cannot run.
package reward

import (
	"context"
	"sync"

	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/evaluator"
	"github.com/relaymesh/skillengine/internal/metrics"
)

// NeutralScore is the reward assigned when no evaluator could produce a
// real score.
const NeutralScore = 0.5

// EvaluationOutcome records one evaluator's contribution to a combined
// reward, useful for logging/debugging.
type EvaluationOutcome struct {
	Method   domain.EvaluationMethod
	Weight   float64
	Score    float64
	Fallback bool
}

// Pipeline computes a combined reward from a skill's evaluation config.
type Pipeline struct {
	registry *evaluator.Registry
}

// New creates a reward Pipeline backed by the given evaluator registry.
func New(registry *evaluator.Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// Combine evaluates every configured evaluation concurrently and returns
// the weight-normalized mean score:
//   - if evaluations is empty, returns the neutral score with no outcomes;
//   - if every evaluator weight is zero, returns the neutral score along
//     with each evaluator's outcome;
//   - each evaluator's failure (transport error, unparseable response, or
//     unknown method) is isolated and degrades only that evaluator's
//     contribution to the neutral score, never the whole pipeline.
func (p *Pipeline) Combine(ctx context.Context, judge domain.LLMClient, evaluations []domain.Evaluation, req evaluator.Request, response string) (float64, []EvaluationOutcome) {
	if len(evaluations) == 0 {
		return NeutralScore, nil
	}

	outcomes := make([]EvaluationOutcome, len(evaluations))
	var wg sync.WaitGroup
	for i, ev := range evaluations {
		wg.Add(1)
		go func(i int, ev domain.Evaluation) {
			defer wg.Done()
			outcomes[i] = p.evaluateOne(ctx, judge, ev, req, response)
		}(i, ev)
	}
	wg.Wait()

	var weightedSum, totalWeight float64
	for _, o := range outcomes {
		weightedSum += o.Weight * o.Score
		totalWeight += o.Weight
	}
	var combined float64
	if totalWeight == 0 {
		combined = NeutralScore
	} else {
		combined = weightedSum / totalWeight
	}
	metrics.RewardObserved.Observe(combined)
	return combined, outcomes
}

func (p *Pipeline) evaluateOne(ctx context.Context, judge domain.LLMClient, ev domain.Evaluation, req evaluator.Request, response string) EvaluationOutcome {
	impl, ok := p.registry.Get(ev.Method)
	if !ok {
		metrics.RewardFallbacks.Inc()
		return EvaluationOutcome{Method: ev.Method, Weight: ev.Weight, Score: NeutralScore, Fallback: true}
	}
	result := impl.EvaluateOnline(ctx, judge, ev.Params, req, response)
	if result.Fallback {
		metrics.RewardFallbacks.Inc()
	}
	return EvaluationOutcome{
		Method:   ev.Method,
		Weight:   ev.Weight,
		Score:    result.Score,
		Fallback: result.Fallback,
	}
}
