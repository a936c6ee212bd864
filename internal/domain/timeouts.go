package domain

import "time"

// Per-call-kind deadlines for outbound model access. Shared here rather
// than living inside internal/llmclient so that callers
// setting a call-kind-specific budget (e.g. the reflection engine, whose
// prompt-rewrite call gets 60s rather than the default judge-call 30s)
// can reference the same constants without importing a concrete
// LLMClient implementation.
const (
	EmbedTimeout   = 10 * time.Second
	JudgeTimeout   = 30 * time.Second
	ReflectTimeout = 60 * time.Second
)
