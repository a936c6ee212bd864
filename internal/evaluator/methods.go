package evaluator

import (
	"context"
	"fmt"

	"github.com/relaymesh/skillengine/internal/domain"
)

// Each evaluator below follows the same shape: a params struct rendered
// into a judge prompt, a parameter JSON schema for validating stored
// params, and a from-examples generator used by the rubric bootstrap.
//
// Prompt templates are deliberately plain strings built with fmt.Sprintf;
// the judge contract is loose enough that a template engine would add
// nothing.

// ─── Task Completion ────────────────────────────────────────────────────

type taskCompletionParams struct {
	Criteria string `json:"criteria"`
}

type taskCompletion struct{}

func newTaskCompletion() Evaluator { return taskCompletion{} }

func (taskCompletion) Method() domain.EvaluationMethod { return domain.MethodTaskCompletion }

func (taskCompletion) EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result {
	criteria, _ := params["criteria"].(string)
	prompt := fmt.Sprintf(
		"You are grading whether an assistant response completed the user's task.\n"+
			"Completion criteria: %s\n\nConversation:\n%s\nResponse:\n%s\n\n"+
			"Return JSON {\"score\": <0..1>, \"reasoning\": <string>} where 1 means fully completed.",
		criteria, renderTranscript(req), response,
	)
	return callJudge(ctx, judge, prompt)
}

func (taskCompletion) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"criteria": map[string]any{"type": "string"}},
		"required":   []string{"criteria"},
	}
}

func (taskCompletion) GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Agent: %s\nSkill: %s\n\nGiven these example interactions, write a one-paragraph "+
			"completion criteria describing what a fully successful response looks like.\n\n%s\n\n"+
			"Return JSON {\"criteria\": <string>}.",
		agentDescription, skillDescription, renderExamplesBlock(examples),
	)
	return generateParams(ctx, judge, prompt, "criteria")
}

// ─── Turn Relevancy ─────────────────────────────────────────────────────

type turnRelevancy struct{}

func newTurnRelevancy() Evaluator { return turnRelevancy{} }

func (turnRelevancy) Method() domain.EvaluationMethod { return domain.MethodTurnRelevancy }

func (turnRelevancy) EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result {
	focus, _ := params["focus"].(string)
	prompt := fmt.Sprintf(
		"Rate how relevant the assistant's response is to the most recent user turn.\n"+
			"Focus area: %s\n\nConversation:\n%s\nResponse:\n%s\n\n"+
			"Return JSON {\"score\": <0..1>, \"reasoning\": <string>}.",
		focus, renderTranscript(req), response,
	)
	return callJudge(ctx, judge, prompt)
}

func (turnRelevancy) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"focus": map[string]any{"type": "string"}},
		"required":   []string{"focus"},
	}
}

func (turnRelevancy) GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Agent: %s\nSkill: %s\n\nFrom these examples, describe in one sentence what "+
			"'relevant to the turn' means for this skill.\n\n%s\n\nReturn JSON {\"focus\": <string>}.",
		agentDescription, skillDescription, renderExamplesBlock(examples),
	)
	return generateParams(ctx, judge, prompt, "focus")
}

// ─── Tool Correctness ───────────────────────────────────────────────────

type toolCorrectness struct{}

func newToolCorrectness() Evaluator { return toolCorrectness{} }

func (toolCorrectness) Method() domain.EvaluationMethod { return domain.MethodToolCorrectness }

func (toolCorrectness) EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result {
	expected, _ := params["expected_behavior"].(string)
	prompt := fmt.Sprintf(
		"Rate whether the assistant invoked tools correctly (right tool, right "+
			"arguments, right sequence) for this request.\n"+
			"Expected tool-use behavior: %s\nAvailable tools: %v\n\nConversation:\n%s\nResponse:\n%s\n\n"+
			"Return JSON {\"score\": <0..1>, \"reasoning\": <string>}.",
		expected, req.Constraints.Tools, renderTranscript(req), response,
	)
	return callJudge(ctx, judge, prompt)
}

func (toolCorrectness) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"expected_behavior": map[string]any{"type": "string"}},
		"required":   []string{"expected_behavior"},
	}
}

func (toolCorrectness) GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Agent: %s\nSkill: %s\n\nFrom these examples, describe the expected tool-calling "+
			"behavior in one paragraph.\n\n%s\n\nReturn JSON {\"expected_behavior\": <string>}.",
		agentDescription, skillDescription, renderExamplesBlock(examples),
	)
	return generateParams(ctx, judge, prompt, "expected_behavior")
}

// ─── Knowledge Retention ────────────────────────────────────────────────

type knowledgeRetention struct{}

func newKnowledgeRetention() Evaluator { return knowledgeRetention{} }

func (knowledgeRetention) Method() domain.EvaluationMethod { return domain.MethodKnowledgeRetention }

func (knowledgeRetention) EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result {
	facts, _ := params["must_remember"].(string)
	prompt := fmt.Sprintf(
		"Rate whether the assistant's response is consistent with facts established "+
			"earlier in the conversation.\nFacts that must be retained: %s\n\n"+
			"Conversation:\n%s\nResponse:\n%s\n\nReturn JSON {\"score\": <0..1>, \"reasoning\": <string>}.",
		facts, renderTranscript(req), response,
	)
	return callJudge(ctx, judge, prompt)
}

func (knowledgeRetention) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"must_remember": map[string]any{"type": "string"}},
		"required":   []string{"must_remember"},
	}
}

func (knowledgeRetention) GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Agent: %s\nSkill: %s\n\nFrom these examples, list the kinds of facts a "+
			"correct assistant must retain across turns.\n\n%s\n\nReturn JSON {\"must_remember\": <string>}.",
		agentDescription, skillDescription, renderExamplesBlock(examples),
	)
	return generateParams(ctx, judge, prompt, "must_remember")
}

// ─── Conversation Completeness ──────────────────────────────────────────

type conversationCompleteness struct{}

func newConversationCompleteness() Evaluator { return conversationCompleteness{} }

func (conversationCompleteness) Method() domain.EvaluationMethod {
	return domain.MethodConversationCompleteness
}

func (conversationCompleteness) EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result {
	requiredSteps, _ := params["required_steps"].(string)
	prompt := fmt.Sprintf(
		"Rate whether this response leaves the conversation in a complete state, "+
			"covering the required steps below, or whether it prematurely ends the "+
			"interaction.\nRequired steps: %s\n\nConversation:\n%s\nResponse:\n%s\n\n"+
			"Return JSON {\"score\": <0..1>, \"reasoning\": <string>}.",
		requiredSteps, renderTranscript(req), response,
	)
	return callJudge(ctx, judge, prompt)
}

func (conversationCompleteness) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"required_steps": map[string]any{"type": "string"}},
		"required":   []string{"required_steps"},
	}
}

func (conversationCompleteness) GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Agent: %s\nSkill: %s\n\nFrom these examples, list the steps a complete "+
			"conversation for this skill must cover.\n\n%s\n\nReturn JSON {\"required_steps\": <string>}.",
		agentDescription, skillDescription, renderExamplesBlock(examples),
	)
	return generateParams(ctx, judge, prompt, "required_steps")
}

// ─── Role Adherence ─────────────────────────────────────────────────────

type roleAdherence struct{}

func newRoleAdherence() Evaluator { return roleAdherence{} }

func (roleAdherence) Method() domain.EvaluationMethod { return domain.MethodRoleAdherence }

func (roleAdherence) EvaluateOnline(ctx context.Context, judge domain.LLMClient, params map[string]any, req Request, response string) Result {
	persona, _ := params["persona"].(string)
	prompt := fmt.Sprintf(
		"Rate whether the assistant's response stays in character for its assigned "+
			"role.\nPersona: %s\n\nConversation:\n%s\nResponse:\n%s\n\n"+
			"Return JSON {\"score\": <0..1>, \"reasoning\": <string>}.",
		persona, renderTranscript(req), response,
	)
	return callJudge(ctx, judge, prompt)
}

func (roleAdherence) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"persona": map[string]any{"type": "string"}},
		"required":   []string{"persona"},
	}
}

func (roleAdherence) GenerateParamsFromExamples(ctx context.Context, judge domain.LLMClient, agentDescription, skillDescription string, examples []Example) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Agent: %s\nSkill: %s\n\nFrom these examples, describe the persona/role the "+
			"assistant must adhere to in one paragraph.\n\n%s\n\nReturn JSON {\"persona\": <string>}.",
		agentDescription, skillDescription, renderExamplesBlock(examples),
	)
	return generateParams(ctx, judge, prompt, "persona")
}

// generateParams calls the judge with a param-generation prompt and pulls
// a single string field back out, falling back to an empty string field
// (never an error) on parse failure. The bootstrap tolerates a thin
// rubric better than it tolerates aborting the whole regeneration.
func generateParams(ctx context.Context, judge domain.LLMClient, prompt string, field string) (map[string]any, error) {
	if judge == nil {
		return map[string]any{field: ""}, nil
	}
	raw, err := judge.Judge(ctx, prompt, map[string]any{
		"type":       "object",
		"properties": map[string]any{field: map[string]any{"type": "string"}},
		"required":   []string{field},
	})
	if err != nil {
		return nil, fmt.Errorf("generate params for %s: %w", field, err)
	}
	cleaned := stripMarkdownFences(raw)
	parsed, perr := parseStringField(cleaned, field)
	if perr != nil {
		return map[string]any{field: ""}, nil
	}
	return map[string]any{field: parsed}, nil
}
