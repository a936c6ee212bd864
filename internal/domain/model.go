package domain

import "time"

// ─── Evaluation Methods ─────────────────────────────────────────────────────

// EvaluationMethod names a fixed evaluator kind.
type EvaluationMethod string

const (
	MethodTaskCompletion           EvaluationMethod = "task-completion"
	MethodTurnRelevancy            EvaluationMethod = "turn-relevancy"
	MethodToolCorrectness          EvaluationMethod = "tool-correctness"
	MethodKnowledgeRetention       EvaluationMethod = "knowledge-retention"
	MethodConversationCompleteness EvaluationMethod = "conversation-completeness"
	MethodRoleAdherence            EvaluationMethod = "role-adherence"
)

// ─── Function name filter ──────────────────────────────────────────────

// FunctionName identifies the kind of upstream call a RequestRecord came from.
type FunctionName string

const (
	FunctionChatComplete        FunctionName = "chat-complete"
	FunctionStreamChatComplete  FunctionName = "stream-chat-complete"
	FunctionCreateModelResponse FunctionName = "create-model-response"
)

var optimizableFunctions = map[FunctionName]bool{
	FunctionChatComplete:        true,
	FunctionStreamChatComplete:  true,
	FunctionCreateModelResponse: true,
}

// IsOptimizable reports whether the optimization pipeline applies to a
// call of this function kind. Everything else bypasses partitioning/
// bandit/reflection/bootstrap and receives a default arm.
func IsOptimizable(name FunctionName) bool {
	return optimizableFunctions[name]
}

// ─── Skill ──────────────────────────────────────────────────────────────────

// Skill is a unit of optimization owned by an agent.
type Skill struct {
	ID                       string
	AgentID                  string
	AgentDescription         string
	Description              string
	PartitionCount           int    // K, ≥1
	MinPullsPerArm           int    // m
	SystemPromptVariants     int    // s
	EmbeddingModel           string // empty = embedding provider unconfigured
	EmbeddingDim             int
	ExplorationConstant      float64 // c in UCB1; defaults to 1.0
	ReflectionLock           Lock
	EvaluationLock           Lock
	EvaluationsRegeneratedAt *time.Time // nil until the rubric bootstrap runs once
	TotalRequests            int64      // lifetime, incremented alongside the partition's own counter
	CreatedAt                time.Time
}

// ─── Partition ──────────────────────────────────────────────────────────────

// Partition is one of a skill's K embedding-space regions.
type Partition struct {
	ID            string
	SkillID       string
	Index         int // 1..K
	Centroid      []float64
	TotalSteps    int64 // reset to 0 on reflection/bootstrap
	TotalRequests int64 // lifetime, never reset except resetPartition/resetSkill w/ opt-in
}

// SinglePartitionIndex is the sentinel partition used when the embedding
// provider is unconfigured: the engine behaves as a single-arm-set
// system with no clustering.
const SinglePartitionIndex = 1

// ─── Arm ────────────────────────────────────────────────────────────────────

// ArmParams is a concrete LLM configuration candidate.
type ArmParams struct {
	ModelID        string
	SystemPrompt   string
	SamplingParams map[string]any // temperature, top_p, max_tokens, ...
}

// ArmStats holds the incremental reward statistics for one arm.
// Invariant: n ≥ 0; n=0 ⇒ mean=n2=totalReward=0; mean =
// totalReward/n when n>0.
type ArmStats struct {
	N           int64
	Mean        float64
	N2          float64 // Σ r²  (used for variance)
	TotalReward float64
}

// Observe folds one more reward observation into the running statistics.
// mean is recomputed as totalReward/n on every update so the two stay
// exactly consistent, and n2 is the raw second moment Σ r², not
// Welford's M2.
func (s *ArmStats) Observe(reward float64) {
	s.N++
	s.TotalReward += reward
	s.Mean = s.TotalReward / float64(s.N)
	s.N2 += reward * reward
}

// Variance returns the (biased) sample variance: E[r²] - E[r]².
// Returns 0 for n < 1.
func (s ArmStats) Variance() float64 {
	if s.N == 0 {
		return 0
	}
	meanSq := s.N2 / float64(s.N)
	v := meanSq - s.Mean*s.Mean
	if v < 0 {
		return 0
	}
	return v
}

// Arm belongs to one partition.
type Arm struct {
	ID          string
	PartitionID string
	Params      ArmParams
	Stats       ArmStats
	CreatedAt   time.Time
}

// ─── Evaluation ─────────────────────────────────────────────────────────────

// Evaluation attaches one automatic evaluator to a skill.
type Evaluation struct {
	ID      string
	SkillID string
	Method  EvaluationMethod
	Weight  float64 // (0,1]
	Params  map[string]any
}

// ─── Request Record ─────────────────────────────────────────────────────────

// Message is one turn of a conversation, as rendered for reflection/bootstrap
// exemplars and for reward-pipeline evaluator input.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// RequestConstraints captures the structural (non-sampling) constraints of
// a request: tool list and response-format schema. Reflection exemplars
// include these but never sampling parameters.
type RequestConstraints struct {
	Tools          []string
	ResponseFormat map[string]any // JSON schema, or nil
}

// RequestRecord is produced by the collaborator log store for each
// completed call. Append-only from the engine's perspective.
type RequestRecord struct {
	ID            string
	SkillID       string
	PartitionID   string
	ArmID         string
	FunctionName  FunctionName
	InputMessages []Message
	Constraints   RequestConstraints
	Response      string
	Embedding     []float64 // nil if not embedded
	CreatedAt     time.Time
	DurationMs    int64
}

// ─── Selection Handle ───────────────────────────────────────────────────────

// ArmHandle is returned by SelectArmForRequest and passed back to
// RecordOutcome.
type ArmHandle struct {
	ArmID       string
	PartitionID string
	SkillID     string
	SelectedAt  time.Time
}
