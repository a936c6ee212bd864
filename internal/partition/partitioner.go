package partition

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaymesh/skillengine/internal/domain"
)

// Request is the minimal view of an inbound call the partitioner needs:
// enough to build a textual fingerprint for embedding.
type Request struct {
	Messages []domain.Message
}

// Fingerprint concatenates the ordered user/system/tool messages verbatim,
// trimmed. Assistant messages are excluded: the fingerprint represents
// what the caller is asking for, not prior replies.
func Fingerprint(req Request) string {
	var b strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "user", "tool":
			b.WriteString(strings.TrimSpace(m.Content))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Partitioner assigns requests to the nearest-centroid partition of a
// skill.
type Partitioner struct {
	embedder domain.LLMClient
}

// New creates a Partitioner. embedder may be nil, in which case
// partitioning is a no-op and every request lands on the sentinel
// single partition.
func New(embedder domain.LLMClient) *Partitioner {
	return &Partitioner{embedder: embedder}
}

// PartitionFor assigns a request to one of the skill's partitions:
//   - no embedding model configured: SinglePartitionIndex, no embedding call;
//   - otherwise embed the fingerprint and return the partition whose
//     centroid has the largest cosine similarity, ties broken by lowest
//     partition number.
//
// Returns the chosen partition and the embedding vector used (nil if the
// no-op path was taken), so the caller can persist it on the request log.
func (p *Partitioner) PartitionFor(ctx context.Context, skill domain.Skill, partitions []domain.Partition, req Request) (domain.Partition, []float64, error) {
	if skill.EmbeddingModel == "" || p.embedder == nil {
		return singlePartition(partitions), nil, nil
	}

	fingerprint := Fingerprint(req)
	vec, err := p.embedder.Embed(ctx, fingerprint, skill.EmbeddingModel)
	if err != nil {
		// Transient external failure: degrade to the sentinel
		// single partition rather than failing the caller.
		return singlePartition(partitions), nil, nil
	}

	if len(partitions) == 0 {
		return domain.Partition{}, vec, fmt.Errorf("skill %s has no partitions", skill.ID)
	}

	best := partitions[0]
	bestSim := CosineSimilarity(vec, best.Centroid)
	for _, part := range partitions[1:] {
		sim := CosineSimilarity(vec, part.Centroid)
		if sim > bestSim || (sim == bestSim && part.Index < best.Index) {
			bestSim = sim
			best = part
		}
	}
	return best, vec, nil
}

// singlePartition returns the partition with Index == SinglePartitionIndex
// if present, otherwise the first partition, otherwise a synthetic
// sentinel partition (no partitions created yet).
func singlePartition(partitions []domain.Partition) domain.Partition {
	for _, p := range partitions {
		if p.Index == domain.SinglePartitionIndex {
			return p
		}
	}
	if len(partitions) > 0 {
		return partitions[0]
	}
	return domain.Partition{Index: domain.SinglePartitionIndex}
}
