// Package rag defines the vector storage interfaces for the catalog
// retriever: collection-scoped ingestion and cosine similarity search.
// Concrete implementations (Qdrant) satisfy these interfaces so the
// retrieval layer never depends on a specific backend.
package rag

import (
	"context"
)

// ProductMeta is the catalog metadata replicated into every collection entry.
type ProductMeta struct {
	// ProductID is the stable product identity, unique within a collection.
	ProductID string

	// Name is the product display name.
	Name string

	// Category is the top-level catalog category (e.g. "apparel").
	Category string

	// Subcategory is the finer catalog category (e.g. "skirts").
	Subcategory string

	// Image is the product image reference (URL, path, or data URI).
	Image string

	// Price is the listed product price.
	Price float64
}

// Entry is one stored unit: a vector, the source text it was derived from,
// and the product metadata needed to render a result without a second lookup.
type Entry struct {
	// ID is the unique point identity within the collection (UUID).
	ID string

	// Text is the source content this entry's vector was computed from —
	// the combined description string for the text collection, the encoded
	// image payload for the image collection.
	Text string

	// Vector is the L2-normalized embedding for this entry.
	Vector []float32

	// Meta carries the product metadata payload.
	Meta ProductMeta
}

// ScoredEntry is an Entry annotated with its similarity to a query vector.
type ScoredEntry struct {
	Entry

	// Score is the cosine similarity assigned during retrieval.
	Score float32
}

// VectorStore is the interface for one catalog collection. The text and
// image collections are independent VectorStore instances.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Add appends new entries to the collection. Callers must filter out
	// entries with absent embeddings before calling — every Entry passed
	// here must carry a vector of the collection's configured dimension.
	Add(ctx context.Context, entries []Entry) error

	// Search returns up to k entries nearest to the query vector, sorted
	// descending by cosine similarity.
	Search(ctx context.Context, vector []float32, k int) ([]ScoredEntry, error)

	// Count returns the number of entries currently in the collection.
	Count(ctx context.Context) (uint64, error)

	// Populated reports whether the collection already holds entries.
	// Used to make catalog ingestion idempotent.
	Populated(ctx context.Context) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
