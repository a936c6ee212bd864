// Package evaluator implements the automatic-evaluator capabilities
// that back the reward pipeline and the rubric bootstrap's
// param-from-examples regeneration.
//
// Each evaluator is an LLM-as-judge capability: it renders a prompt from
// its params and the request/response, calls domain.LLMClient.Judge, and
// parses a strict JSON response of shape
// {score: number in [0,1], reasoning?: string, metadata?: object}.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaymesh/skillengine/internal/domain"
)

// Result is the outcome of one evaluator invocation.
type Result struct {
	Score    float64
	Fallback bool // true if parse/bounds failure degraded to the neutral score
	Reason   string
}

// Evaluator is one automatic-evaluation capability: online scoring, a
// declared parameter schema, and a param-from-examples generator used by
// the rubric bootstrap.
type Evaluator interface {
	Method() domain.EvaluationMethod
	EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result
	ParameterSchema() map[string]any
	GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error)
}

// Request is the minimal request view an evaluator needs to render its
// judge prompt.
type Request struct {
	Messages    []domain.Message
	Constraints domain.RequestConstraints
}

// Example is one rendered conversation exemplar, shared by reflection and bootstrap.
type Example struct {
	Transcript string // rendered messages + structural constraints
	Response   string
}

// Registry looks up an Evaluator by method name.
type Registry struct {
	byMethod map[domain.EvaluationMethod]Evaluator
}

// NewRegistry builds a Registry containing the six built-in evaluators.
func NewRegistry() *Registry {
	r := &Registry{byMethod: make(map[domain.EvaluationMethod]Evaluator)}
	for _, e := range []Evaluator{
		newTaskCompletion(),
		newTurnRelevancy(),
		newToolCorrectness(),
		newKnowledgeRetention(),
		newConversationCompleteness(),
		newRoleAdherence(),
	} {
		r.byMethod[e.Method()] = e
	}
	return r
}

// Get returns the evaluator for a method, or (nil, false) if unknown.
func (r *Registry) Get(method domain.EvaluationMethod) (Evaluator, bool) {
	e, ok := r.byMethod[method]
	return e, ok
}

// ValidateParams checks a params object against its method's declared
// parameter schema. Engine-internal generation calls this before
// persisting; API boundaries reject mutations
// that fail it.
func (r *Registry) ValidateParams(method domain.EvaluationMethod, params map[string]any) error {
	e, ok := r.byMethod[method]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEvaluationMethod, method)
	}
	schema := e.ParameterSchema()
	required, _ := schema["required"].([]string)
	properties, _ := schema["properties"].(map[string]any)
	for _, field := range required {
		val, present := params[field]
		if !present {
			return fmt.Errorf("%w: %s missing required field %q", domain.ErrInvalidEvaluationParams, method, field)
		}
		spec, _ := properties[field].(map[string]any)
		if t, _ := spec["type"].(string); t == "string" {
			if _, ok := val.(string); !ok {
				return fmt.Errorf("%w: %s field %q must be a string", domain.ErrInvalidEvaluationParams, method, field)
			}
		}
	}
	return nil
}

// ─── Shared judge-call plumbing ─────────────────────────────────────────────

// judgeResponse is the strict JSON shape every evaluator's judge prompt
// must produce.
type judgeResponse struct {
	Score     *float64       `json:"score"`
	Reasoning string         `json:"reasoning"`
	Metadata  map[string]any `json:"metadata"`
}

// callJudge invokes the judge LLM and parses its response, degrading to a
// neutral fallback score on any parse or bounds failure rather than propagating an error.
func callJudge(ctx context.Context, judge domain.LLMClient, prompt string) Result {
	if judge == nil {
		return Result{Score: 0.5, Fallback: true, Reason: "no judge configured"}
	}

	raw, err := judge.Judge(ctx, prompt, scoreJSONSchema())
	if err != nil {
		return Result{Score: 0.5, Fallback: true, Reason: fmt.Sprintf("judge call failed: %v", err)}
	}

	cleaned := stripMarkdownFences(raw)

	var parsed judgeResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Result{Score: 0.5, Fallback: true, Reason: "judge returned non-JSON output"}
	}
	if parsed.Score == nil {
		return Result{Score: 0.5, Fallback: true, Reason: "judge response missing score"}
	}
	if *parsed.Score < 0 || *parsed.Score > 1 {
		return Result{Score: 0.5, Fallback: true, Reason: "judge score out of [0,1] bounds"}
	}
	return Result{Score: *parsed.Score, Reason: parsed.Reasoning}
}

// StripMarkdownFences removes a leading/trailing ```json ... ``` or ``` ... ```
// fence, a common LLM habit the harness must tolerate. Exported
// for reuse by the reflection engine, which parses plain-text (not JSON)
// LLM output but faces the same fencing habit.
func StripMarkdownFences(s string) string {
	return stripMarkdownFences(s)
}

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func scoreJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"reasoning": map[string]any{"type": "string"},
			"metadata":  map[string]any{"type": "object"},
		},
		"required": []string{"score"},
	}
}

// RenderTranscript is the exported form of renderTranscript, reused by
// the reflection engine to render its own exemplars.
func RenderTranscript(req Request) string {
	return renderTranscript(req)
}

// renderTranscript renders a request's messages and structural
// constraints (tool list and response-format schema, never sampling
// params) into a plain-text block. Reflection exemplars use the same
// rendering.
func renderTranscript(req Request) string {
	var b strings.Builder
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	if len(req.Constraints.Tools) > 0 {
		fmt.Fprintf(&b, "tools: %s\n", strings.Join(req.Constraints.Tools, ", "))
	}
	if req.Constraints.ResponseFormat != nil {
		schemaJSON, _ := json.Marshal(req.Constraints.ResponseFormat)
		fmt.Fprintf(&b, "response_format: %s\n", schemaJSON)
	}
	return b.String()
}

// RenderExamplesBlock is the exported form of renderExamplesBlock, reused
// by the reflection engine when rendering exemplars for the prompt
// reflector.
func RenderExamplesBlock(examples []Example) string {
	return renderExamplesBlock(examples)
}

// renderExamplesBlock renders a batch of exemplars for a param-from-
// examples prompt.
func renderExamplesBlock(examples []Example) string {
	var b strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&b, "--- example %d ---\n%s\nresponse: %s\n", i+1, ex.Transcript, ex.Response)
	}
	return b.String()
}

// parseStringField extracts a single named string field from a judge's
// JSON response.
func parseStringField(jsonBody string, field string) (string, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonBody), &parsed); err != nil {
		return "", err
	}
	val, ok := parsed[field].(string)
	if !ok {
		return "", fmt.Errorf("field %q missing or not a string", field)
	}
	return val, nil
}
