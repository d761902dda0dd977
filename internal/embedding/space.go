package embedding

import (
	"context"
	"fmt"

	"intentminer/internal/logging"
)

// Error wraps a transport or shape failure from the embedding step. The
// whole batch fails together: no partial clustering is possible without a
// complete vector set, so callers treat this as fatal to the run.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Space converts the run's normalized messages into its shared vector set.
// One batched call per run; no internal retry — the caller may retry the
// whole batch.
type Space struct {
	engine Engine
}

// NewSpace wraps an engine as the run's vector space.
func NewSpace(engine Engine) *Space {
	return &Space{engine: engine}
}

// Embed maps the ordered texts to an ordered, equal-length vector set.
// Every returned vector shares the same dimensionality; any shape mismatch
// from the provider is an *Error.
func (s *Space) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Space.Embed")
	defer timer.StopWithInfo()

	if len(texts) == 0 {
		return nil, nil
	}

	logging.Embedding("Embedding batch of %d messages via %s", len(texts), s.engine.Name())

	vectors, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, &Error{Err: err}
	}

	if len(vectors) != len(texts) {
		return nil, &Error{Err: fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))}
	}

	dims := -1
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, &Error{Err: fmt.Errorf("provider returned empty vector at index %d", i)}
		}
		if dims == -1 {
			dims = len(vec)
			continue
		}
		if len(vec) != dims {
			return nil, &Error{Err: fmt.Errorf("vector dimension mismatch at index %d: %d != %d", i, len(vec), dims)}
		}
	}

	logging.EmbeddingDebug("Batch embedded: %d vectors, %d dimensions", len(vectors), dims)
	return vectors, nil
}
