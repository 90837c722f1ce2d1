package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys used for collection entries.
const (
	payloadText        = "text"
	payloadProductID   = "product_id"
	payloadName        = "name"
	payloadCategory    = "category"
	payloadSubcategory = "subcategory"
	payloadImage       = "image"
	payloadPrice       = "price"
)

// QdrantConfig holds connection parameters for one Qdrant-backed collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by one Qdrant collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// ownsClient records whether Close should close the gRPC connection.
	// False when the client was shared in via NewQdrantStoreWithClient.
	ownsClient bool
}

// NewQdrantStore creates a new QdrantStore with its own client connection,
// ensuring the target collection exists (creating it if necessary).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg, ownsClient: true}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// NewQdrantStoreWithClient creates a QdrantStore over an existing client.
// The text and image collections share one gRPC connection this way; the
// caller remains responsible for closing the client.
func NewQdrantStoreWithClient(ctx context.Context, client *qdrant.Client, cfg *QdrantConfig) (*QdrantStore, error) {
	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// Collection returns the collection name this store operates on.
func (s *QdrantStore) Collection() string { return s.cfg.Collection }

// ensureCollection creates the Qdrant collection if it does not already exist.
// Cosine distance is fixed — entries are L2-normalized upstream, so the
// returned scores are cosine similarities.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Add appends entries to the collection. Every entry must carry a vector of
// the collection's configured dimension; absent embeddings are the caller's
// problem to filter.
func (s *QdrantStore) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if uint64(len(e.Vector)) != s.cfg.VectorSize {
			return fmt.Errorf("qdrant: entry %s vector dimension %d does not match collection dimension %d",
				e.ID, len(e.Vector), s.cfg.VectorSize)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				payloadText:        e.Text,
				payloadProductID:   e.Meta.ProductID,
				payloadName:        e.Meta.Name,
				payloadCategory:    e.Meta.Category,
				payloadSubcategory: e.Meta.Subcategory,
				payloadImage:       e.Meta.Image,
				payloadPrice:       e.Meta.Price,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results,
// sorted descending by score.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]ScoredEntry, error) {
	limit := uint64(k) //nolint:gosec // k is validated upstream
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	entries := make([]ScoredEntry, 0, len(results))
	for _, r := range results {
		e := ScoredEntry{
			Entry: Entry{ID: r.Id.GetUuid()},
			Score: r.Score,
		}
		if p := r.Payload; p != nil {
			if v, ok := p[payloadText]; ok {
				e.Text = v.GetStringValue()
			}
			if v, ok := p[payloadProductID]; ok {
				e.Meta.ProductID = v.GetStringValue()
			}
			if v, ok := p[payloadName]; ok {
				e.Meta.Name = v.GetStringValue()
			}
			if v, ok := p[payloadCategory]; ok {
				e.Meta.Category = v.GetStringValue()
			}
			if v, ok := p[payloadSubcategory]; ok {
				e.Meta.Subcategory = v.GetStringValue()
			}
			if v, ok := p[payloadImage]; ok {
				e.Meta.Image = v.GetStringValue()
			}
			if v, ok := p[payloadPrice]; ok {
				e.Meta.Price = v.GetDoubleValue()
			}
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return count, nil
}

// Populated reports whether the collection already holds at least one entry.
func (s *QdrantStore) Populated(ctx context.Context) (bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the underlying Qdrant gRPC connection when this store owns it.
func (s *QdrantStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}
