package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/shopgenie-go/internal/embedder"
	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/rag"
)

// imageOnlyQuery stands in for the text query when a request carries an
// image but no search strings, so image-only searches still consult the
// text collection.
const imageOnlyQuery = "Can you find me something like this image?"

// defaultSearchTimeout bounds each individual vector store search.
const defaultSearchTimeout = 30 * time.Second

// Config controls retrieval behavior.
type Config struct {
	// TopK is the number of results to return after fusion.
	TopK int

	// Threshold is the minimum cosine similarity; hits must score strictly
	// above it to survive.
	Threshold float32

	// Categories is the allowed category substring list. Empty means no
	// category is admitted and every search returns empty results.
	Categories []string

	// SearchTimeout bounds each vector store search. Zero means the
	// default of 30 seconds.
	SearchTimeout time.Duration
}

// Retriever fans a multi-query request out across the text and image
// collections and fuses the per-query rankings into one result set.
type Retriever struct {
	generator  *embedder.Generator
	textStore  rag.VectorStore
	imageStore rag.VectorStore
	cfg        Config
}

// NewRetriever creates a Retriever. imageStore may be nil when image search
// is not configured; image queries then fail with an explicit error.
func NewRetriever(generator *embedder.Generator, textStore, imageStore rag.VectorStore, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	return &Retriever{
		generator:  generator,
		textStore:  textStore,
		imageStore: imageStore,
		cfg:        cfg,
	}
}

// Categories returns the configured allowed-category list.
func (r *Retriever) Categories() []string { return r.cfg.Categories }

// Retrieve runs one search per query string, plus one image search when
// image is non-empty, concurrently. Each per-store search requests
// k*numQueries candidates so fusion has enough depth to fill k slots after
// dedup and filtering. Any failed search fails the whole retrieval.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, image string) (*Results, error) {
	return r.RetrieveIn(ctx, queries, image, r.cfg.Categories, 0)
}

// RetrieveIn is Retrieve with an explicit allowed-category list and result
// count, used when a caller has narrowed the configured categories or k for
// one request. An empty category list admits nothing; k <= 0 means the
// configured TopK.
func (r *Retriever) RetrieveIn(ctx context.Context, queries []string, image string, categories []string, k int) (*Results, error) {
	log := logging.FromContext(ctx)

	if k <= 0 {
		k = r.cfg.TopK
	}

	if len(queries) == 0 && image == "" {
		return newResults(), nil
	}
	if len(queries) == 0 {
		queries = []string{imageOnlyQuery}
	}

	numQueries := len(queries)
	if image != "" {
		numQueries++
	}
	fetchK := k * numQueries

	lists := make([][]rag.ScoredEntry, numQueries)

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			entries, err := r.searchText(gctx, q, fetchK)
			if err != nil {
				return fmt.Errorf("text search %q: %w", q, err)
			}
			lists[i] = entries
			return nil
		})
	}
	if image != "" {
		g.Go(func() error {
			entries, err := r.searchImage(gctx, image, fetchK)
			if err != nil {
				return fmt.Errorf("image search: %w", err)
			}
			lists[numQueries-1] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := Fuse(lists, k, r.cfg.Threshold, categories)
	log.Debug("retrieval complete",
		"queries", len(queries),
		"with_image", image != "",
		"hits", results.Len())

	return results, nil
}

func (r *Retriever) searchText(ctx context.Context, query string, k int) ([]rag.ScoredEntry, error) {
	vector, err := r.generator.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()
	return r.textStore.Search(sctx, vector, k)
}

func (r *Retriever) searchImage(ctx context.Context, image string, k int) ([]rag.ScoredEntry, error) {
	if r.imageStore == nil {
		return nil, fmt.Errorf("image search is not configured")
	}
	vector, err := r.generator.EmbedImageQuery(ctx, image)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()
	return r.imageStore.Search(sctx, vector, k)
}
