// Package embedder converts catalog text and image references into dense,
// L2-normalized vector embeddings for cosine similarity search.
//
// The package separates two layers:
//
//   - BatchClient is the raw provider contract — one batch call per modality,
//     all-or-nothing per batch. Implementations (NVIDIA NIM, Ollama) talk to
//     their backend via plain HTTP; no additional SDK dependencies are required.
//   - Generator sits above a BatchClient and implements the pipeline the
//     catalog needs: recursive chunking with overlap, fixed-size batching
//     across inputs, mean pooling per source text, image normalization with
//     batch compaction, and per-item failure isolation.
//
// Per-item failures never abort a request. Every Generator method returns a
// result slice of exactly the input length; a failed position carries its
// error instead of a vector.
package embedder

import (
	"context"
	"fmt"
	"math"
)

// Input type labels passed to embedding backends that distinguish retrieval
// queries from stored passages.
const (
	// InputTypeQuery marks text embedded at search time.
	InputTypeQuery = "query"
	// InputTypePassage marks text embedded at ingestion time.
	InputTypePassage = "passage"
)

// BatchClient is the raw provider contract for batch embedding calls.
// Implementations must be safe to call from multiple goroutines.
type BatchClient interface {
	// EmbedTextBatch embeds a batch of text chunks. inputType is one of
	// InputTypeQuery or InputTypePassage. The returned slice is parallel to
	// texts; a call either succeeds for the whole batch or fails for the
	// whole batch.
	EmbedTextBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error)

	// EmbedImageBatch embeds a batch of encoded images (data-URI strings).
	// The returned slice is parallel to images.
	EmbedImageBatch(ctx context.Context, images []string) ([][]float32, error)
}

// Result carries the outcome of embedding one input item. Exactly one of
// Vector and Err is meaningful: a nil Vector with a non-nil Err marks an
// absent embedding, which is distinct from a legitimate zero vector.
type Result struct {
	// Vector is the L2-normalized embedding. Nil when Err is set.
	Vector []float32
	// Err records why this item produced no embedding. Nil on success.
	Err error
}

// OK reports whether the item embedded successfully.
func (r Result) OK() bool { return r.Err == nil && r.Vector != nil }

// ImageResult extends Result with the normalized data-URI payload that was
// actually sent to the model, which the caller stores alongside the vector.
type ImageResult struct {
	Result
	// Encoded is the normalized data-URI representation of the source image.
	// Empty when normalization failed.
	Encoded string
}

// normalize scales v to unit L2 norm in place and returns it. Zero vectors
// are returned unchanged — they cannot be normalized and will score zero
// against everything under cosine similarity.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// meanPool returns the arithmetic mean of the given vectors. All vectors must
// share the same dimension; a mismatch is a provider bug surfaced as an error.
func meanPool(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder: mean of zero vectors")
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embedder: dimension mismatch: %d vs %d", len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}
