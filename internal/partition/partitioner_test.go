package partition

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/relaymesh/skillengine/internal/domain"
)

func TestFingerprint_IncludesOnlySystemUserToolInOrder(t *testing.T) {
	req := Request{Messages: []domain.Message{
		{Role: "system", Content: " be concise "},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "should be excluded"},
		{Role: "tool", Content: "result"},
	}}
	got := Fingerprint(req)
	want := "be concise\nhello\nresult"
	if got != want {
		t.Fatalf("Fingerprint = %q, want %q", got, want)
	}
}

func TestPartitionFor_NoEmbeddingModelIsNoOp(t *testing.T) {
	p := New(nil)
	skill := domain.Skill{ID: "s1"}
	partitions := []domain.Partition{{Index: domain.SinglePartitionIndex, ID: "single"}}

	part, vec, err := p.PartitionFor(context.Background(), skill, partitions, Request{})
	if err != nil {
		t.Fatalf("PartitionFor: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil embedding vector for no-op path, got %v", vec)
	}
	if part.ID != "single" {
		t.Fatalf("expected sentinel single partition, got %+v", part)
	}
}

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float64, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Judge(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	return "", errors.New("not implemented")
}

func TestPartitionFor_ChoosesNearestCentroid(t *testing.T) {
	p := New(&fakeEmbedder{vec: []float64{1, 0}})
	skill := domain.Skill{ID: "s1", EmbeddingModel: "test-embed"}
	partitions := []domain.Partition{
		{ID: "far", Index: 1, Centroid: []float64{0, 1}},
		{ID: "near", Index: 2, Centroid: []float64{1, 0}},
	}

	part, vec, err := p.PartitionFor(context.Background(), skill, partitions, Request{})
	if err != nil {
		t.Fatalf("PartitionFor: %v", err)
	}
	if part.ID != "near" {
		t.Fatalf("expected nearest centroid partition, got %s", part.ID)
	}
	if len(vec) != 2 {
		t.Fatalf("expected embedding vector to be returned, got %v", vec)
	}
}

func TestPartitionFor_EmbedFailureDegradesToSinglePartition(t *testing.T) {
	p := New(&fakeEmbedder{err: errors.New("embedding provider down")})
	skill := domain.Skill{ID: "s1", EmbeddingModel: "test-embed"}
	partitions := []domain.Partition{{Index: domain.SinglePartitionIndex, ID: "single"}}

	part, vec, err := p.PartitionFor(context.Background(), skill, partitions, Request{})
	if err != nil {
		t.Fatalf("expected transient embed failure to degrade rather than error, got %v", err)
	}
	if vec != nil {
		t.Fatalf("expected no vector on degraded path, got %v", vec)
	}
	if part.ID != "single" {
		t.Fatalf("expected degraded path to return single partition, got %+v", part)
	}
}

func TestSeedCentroids_SimplexForSmallK(t *testing.T) {
	centroids := SeedCentroids("skill-a", 3, 3)
	if len(centroids) != 3 {
		t.Fatalf("expected 3 centroids, got %d", len(centroids))
	}
	for i, c := range centroids {
		if n := l2Norm(c); math.Abs(n-1) > 1e-9 {
			t.Fatalf("centroid %d not unit-normalized: norm=%v", i, n)
		}
	}
	// every pair should be equidistant (regular simplex property)
	d01 := dist(centroids[0], centroids[1])
	d02 := dist(centroids[0], centroids[2])
	if math.Abs(d01-d02) > 1e-9 {
		t.Fatalf("expected equal pairwise distances, got %v vs %v", d01, d02)
	}
}

func TestSeedCentroids_DeterministicAcrossRuns(t *testing.T) {
	a := SeedCentroids("skill-b", 8, 3)
	b := SeedCentroids("skill-b", 8, 3)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("centroid %d component %d differs between runs: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestSeedCentroids_DiffersAcrossSkills(t *testing.T) {
	a := SeedCentroids("skill-c", 8, 3)
	b := SeedCentroids("skill-d", 8, 3)
	same := true
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				same = false
			}
		}
	}
	if same {
		t.Fatalf("expected centroids to differ across distinct skill IDs")
	}
}

func TestCosineSimilarity_ZeroVectorReturnsMinusOne(t *testing.T) {
	got := CosineSimilarity([]float64{0, 0}, []float64{1, 1})
	if got != -1 {
		t.Fatalf("expected -1 for zero vector, got %v", got)
	}
}

func dist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
