package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fakeEngine struct {
	batch [][]float32
	err   error
}

func (f *fakeEngine) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch[0], nil
}

func (f *fakeEngine) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string    { return "fake" }

func TestSpaceEmbedPreservesOrderAndLength(t *testing.T) {
	batch := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	space := NewSpace(&fakeEngine{batch: batch})

	vectors, err := space.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if vectors[1][1] != 1 {
		t.Fatalf("order not preserved: %v", vectors)
	}
}

func TestSpaceEmbedWrapsTransportFailure(t *testing.T) {
	space := NewSpace(&fakeEngine{err: errors.New("connection refused")})

	_, err := space.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	var embErr *Error
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestSpaceEmbedRejectsCountMismatch(t *testing.T) {
	space := NewSpace(&fakeEngine{batch: [][]float32{{1, 0, 0}}})

	_, err := space.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for count mismatch")
	}
	var embErr *Error
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestSpaceEmbedRejectsRaggedDimensions(t *testing.T) {
	space := NewSpace(&fakeEngine{batch: [][]float32{{1, 0, 0}, {1, 0}}})

	if _, err := space.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for mixed dimensionality")
	}
}

func TestSpaceEmbedRejectsEmptyVector(t *testing.T) {
	space := NewSpace(&fakeEngine{batch: [][]float32{{1, 0, 0}, {}}})

	if _, err := space.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for empty vector")
	}
}

func TestSpaceEmbedEmptyInput(t *testing.T) {
	space := NewSpace(&fakeEngine{})
	vectors, err := space.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty input should not error: %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected nil vectors, got %v", vectors)
	}
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Fatalf("identical vectors should score 1, got %v", sim)
	}

	sim, _ = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(sim) > 1e-9 {
		t.Fatalf("orthogonal vectors should score 0, got %v", sim)
	}

	sim, _ = CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(sim+1) > 1e-9 {
		t.Fatalf("opposite vectors should score -1, got %v", sim)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 0}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); math.Abs(d) > 1e-9 {
		t.Fatalf("identical vectors should be distance 0, got %v", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); math.Abs(d-1) > 1e-9 {
		t.Fatalf("orthogonal vectors should be distance 1, got %v", d)
	}
	// Mismatched lengths fall back to maximal distance instead of failing.
	if d := CosineDistance([]float32{1}, []float32{1, 0}); d != 1.0 {
		t.Fatalf("mismatched vectors should be distance 1, got %v", d)
	}
}
