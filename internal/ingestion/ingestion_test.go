package ingestion

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/shopgenie-go/internal/embedder"
	"github.com/54b3r/shopgenie-go/internal/imaging"
	"github.com/54b3r/shopgenie-go/internal/rag"
)

const sampleCSV = `id,name,description,category,subcategory,image,price
p1,Red Dress,A flowing red dress,Apparel,Dresses,data:image/jpeg;base64:AAAA,49.99
p2,Blue Boots,Waterproof ankle boots,Footwear,Boots,data:image/jpeg;base64:BBBB,89.50
p3,Broken Row,Bad price here,Apparel,Tops,data:image/jpeg;base64:CCCC,not-a-price
`

type fakeEmbedClient struct{}

func (fakeEmbedClient) EmbedTextBatch(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedClient) EmbedImageBatch(_ context.Context, payloads []string) ([][]float32, error) {
	out := make([][]float32, len(payloads))
	for i := range payloads {
		out[i] = []float32{0, 1}
	}
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	populated bool
	added     []rag.Entry
}

func (s *fakeStore) Add(_ context.Context, entries []rag.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, entries...)
	return nil
}

func (s *fakeStore) Search(context.Context, []float32, int) ([]rag.ScoredEntry, error) {
	return nil, nil
}

func (s *fakeStore) Count(context.Context) (uint64, error) {
	return uint64(len(s.added)), nil
}

func (s *fakeStore) Populated(context.Context) (bool, error) { return s.populated, nil }

func (s *fakeStore) Close() error { return nil }

func testGenerator(t *testing.T) *embedder.Generator {
	t.Helper()
	gen, err := embedder.NewGenerator(fakeEmbedClient{}, imaging.NewNormalizer(imaging.Config{}), nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return gen
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	products, err := LoadCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	// The malformed-price row is skipped, not fatal.
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}
	if products[0].ID != "p1" || products[0].Name != "Red Dress" {
		t.Fatalf("unexpected first product: %+v", products[0])
	}
	if products[1].Price != 89.50 {
		t.Fatalf("price = %v, want 89.50", products[1].Price)
	}
}

func TestLoadCSVWithoutIDColumn(t *testing.T) {
	t.Parallel()

	csv := `name,description,category,subcategory,image,price
Red Dress,A flowing red dress,Apparel,Dresses,data:image/jpeg;base64:AAAA,49.99
Blue Boots,Waterproof ankle boots,Footwear,Boots,data:image/jpeg;base64:BBBB,89.50
`
	products, err := LoadCSV(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}
	// Ids come from the row ordinal so re-running ingestion on the same
	// catalog upserts the same entries.
	if products[0].ID != "1" || products[1].ID != "2" {
		t.Fatalf("ids = %q, %q; want 1, 2", products[0].ID, products[1].ID)
	}
	if products[0].Name != "Red Dress" || products[1].Price != 89.50 {
		t.Fatalf("unexpected products: %+v", products)
	}
}

func TestLoadCSVBadHeader(t *testing.T) {
	t.Parallel()

	_, err := LoadCSV(context.Background(), strings.NewReader("id,title,description,category,subcategory,image,price\n"))
	if err == nil {
		t.Fatal("expected header error, got nil")
	}
}

func TestCombinedText(t *testing.T) {
	t.Parallel()

	p := Product{
		Name:        "Red Dress",
		Description: "A flowing red dress",
		Category:    "Apparel",
		Subcategory: "Dresses",
	}
	want := "Red Dress | A flowing red dress | Apparel,Dresses"
	if got := p.CombinedText(); got != want {
		t.Fatalf("CombinedText() = %q, want %q", got, want)
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	textStore := &fakeStore{}
	imageStore := &fakeStore{}
	pipe := NewPipeline(testGenerator(t), textStore, imageStore)

	products, err := LoadCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}

	textAdded, imagesAdded, err := pipe.Run(context.Background(), products)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if textAdded != 2 || imagesAdded != 2 {
		t.Fatalf("added = (%d, %d), want (2, 2)", textAdded, imagesAdded)
	}

	// Text entries carry the combined document and the original reference.
	if got := textStore.added[0].Text; !strings.Contains(got, "Red Dress | A flowing red dress") {
		t.Fatalf("text entry document = %q", got)
	}
	if textStore.added[0].Meta.ProductID != "p1" {
		t.Fatalf("text entry product id = %q, want p1", textStore.added[0].Meta.ProductID)
	}
	if imageStore.added[0].Meta.ProductID != "p1" {
		t.Fatalf("image entry product id = %q, want p1", imageStore.added[0].Meta.ProductID)
	}
}

func TestPipelineIdempotent(t *testing.T) {
	t.Parallel()

	textStore := &fakeStore{populated: true}
	imageStore := &fakeStore{populated: true}
	pipe := NewPipeline(testGenerator(t), textStore, imageStore)

	products := []Product{{ID: "p1", Name: "Red Dress", Description: "d", Category: "Apparel"}}
	textAdded, imagesAdded, err := pipe.Run(context.Background(), products)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if textAdded != 0 || imagesAdded != 0 {
		t.Fatalf("added = (%d, %d), want (0, 0)", textAdded, imagesAdded)
	}
	if len(textStore.added) != 0 || len(imageStore.added) != 0 {
		t.Fatal("populated collections must not receive new entries")
	}
}

func TestPipelineNoImageStore(t *testing.T) {
	t.Parallel()

	textStore := &fakeStore{}
	pipe := NewPipeline(testGenerator(t), textStore, nil)

	products := []Product{{ID: "p1", Name: "Red Dress", Description: "d", Category: "Apparel"}}
	textAdded, imagesAdded, err := pipe.Run(context.Background(), products)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if textAdded != 1 || imagesAdded != 0 {
		t.Fatalf("added = (%d, %d), want (1, 0)", textAdded, imagesAdded)
	}
}

func TestEntryIDStable(t *testing.T) {
	t.Parallel()

	a := entryID("text", "p1")
	b := entryID("text", "p1")
	c := entryID("image", "p1")
	if a != b {
		t.Fatalf("entryID not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Fatal("collections must produce distinct ids")
	}
	// UUID shape: 8-4-4-4-12 hex groups.
	parts := strings.Split(a, "-")
	if len(parts) != 5 {
		t.Fatalf("id %q is not UUID-shaped", a)
	}
}
