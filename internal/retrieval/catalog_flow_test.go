package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/54b3r/shopgenie-go/internal/embedder"
	"github.com/54b3r/shopgenie-go/internal/imaging"
	"github.com/54b3r/shopgenie-go/internal/ingestion"
	"github.com/54b3r/shopgenie-go/internal/rag"
)

// catalogCSV is a small mixed catalog: three apparel products and two
// electronics products. The headphones description mentions a skirt so the
// category filter has to do real work, not just the threshold.
const catalogCSV = `name,description,category,subcategory,image,price
Wrap Skirt,A wrap skirt in linen,Apparel,Skirts,,39.99
Pleated Skirt,A pleated skirt for summer,Apparel,Skirts,,49.99
Silk Blouse,A silk blouse,Apparel,Tops,,59.99
Wireless Headphones,Headphones for sewing a skirt,Electronics,Audio,,129.99
Bluetooth Speaker,A portable speaker,Electronics,Audio,,79.99
`

// flowVocab is the word list backing the deterministic test embedding.
var flowVocab = []string{"skirt", "pleated", "wrap", "silk", "blouse", "headphones", "speaker", "linen"}

// vocabEmbedClient embeds text as an L2-normalized bag-of-words vector over
// flowVocab, so cosine similarity is exact and rankings are predictable.
type vocabEmbedClient struct{}

func embedBag(text string) []float32 {
	v := make([]float32, len(flowVocab))
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for i, term := range flowVocab {
			if w == term {
				v[i]++
			}
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func (vocabEmbedClient) EmbedTextBatch(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedBag(text)
	}
	return out, nil
}

func (vocabEmbedClient) EmbedImageBatch(_ context.Context, payloads []string) ([][]float32, error) {
	out := make([][]float32, len(payloads))
	for i := range payloads {
		out[i] = make([]float32, len(flowVocab))
	}
	return out, nil
}

// memStore is an in-memory VectorStore with brute-force cosine search.
type memStore struct {
	mu      sync.Mutex
	entries []rag.Entry
}

func (s *memStore) Add(_ context.Context, entries []rag.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *memStore) Search(_ context.Context, vector []float32, k int) ([]rag.ScoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scored := make([]rag.ScoredEntry, 0, len(s.entries))
	for _, e := range s.entries {
		var dot float32
		for i := range vector {
			if i < len(e.Vector) {
				dot += vector[i] * e.Vector[i]
			}
		}
		scored = append(scored, rag.ScoredEntry{Entry: e, Score: dot})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *memStore) Count(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.entries)), nil
}

func (s *memStore) Populated(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) > 0, nil
}

func (s *memStore) Close() error { return nil }

// TestCatalogFlowSkirtQuery runs the whole pipe: load a mixed catalog from
// CSV, ingest it into a vector store, and query it through the retriever.
func TestCatalogFlowSkirtQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	products, err := ingestion.LoadCSV(ctx, strings.NewReader(catalogCSV))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(products) != 5 {
		t.Fatalf("got %d products, want 5", len(products))
	}

	gen, err := embedder.NewGenerator(vocabEmbedClient{}, imaging.NewNormalizer(imaging.Config{}), nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	store := &memStore{}
	textAdded, _, err := ingestion.NewPipeline(gen, store, nil).Run(ctx, products)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if textAdded != 5 {
		t.Fatalf("textAdded = %d, want 5", textAdded)
	}

	r := NewRetriever(gen, store, nil, Config{
		TopK:       4,
		Threshold:  0.3,
		Categories: []string{"apparel"},
	})
	got, err := r.RetrieveIn(ctx, []string{"skirt"}, "", []string{"apparel"}, 4)
	if err != nil {
		t.Fatalf("RetrieveIn: %v", err)
	}

	if got.Len() == 0 {
		t.Fatal("no results for skirt query")
	}
	apparel := map[string]bool{"Wrap Skirt": true, "Pleated Skirt": true, "Silk Blouse": true}
	for _, name := range got.Names {
		if !apparel[name] {
			t.Errorf("result %q is not an apparel product", name)
		}
	}
	for i := 1; i < len(got.Similarities); i++ {
		if got.Similarities[i] >= got.Similarities[i-1] {
			t.Errorf("similarities not strictly descending: %v", got.Similarities)
		}
	}
	// The headphones mention a skirt and score above the threshold, but the
	// category filter must still drop them.
	if got.Len() != 2 || got.Names[0] != "Pleated Skirt" || got.Names[1] != "Wrap Skirt" {
		t.Fatalf("names = %v, want [Pleated Skirt Wrap Skirt]", got.Names)
	}
}
