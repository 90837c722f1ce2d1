// Package ingestion loads the product catalog from CSV and populates the
// text and image vector collections. Ingestion is idempotent: a collection
// that already holds points is left untouched.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/shopgenie-go/internal/embedder"
	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/rag"
)

// Product is one catalog row.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Subcategory string
	Image       string
	Price       float64
}

// CombinedText is the document representation stored and embedded for a
// product: name, description, and the category pair joined so category
// language is searchable alongside the description.
func (p *Product) CombinedText() string {
	return fmt.Sprintf("%s | %s | %s,%s", p.Name, p.Description, p.Category, p.Subcategory)
}

// Meta returns the payload metadata stored with each vector.
func (p *Product) Meta(image string) rag.ProductMeta {
	return rag.ProductMeta{
		ProductID:   p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Subcategory: p.Subcategory,
		Image:       image,
		Price:       p.Price,
	}
}

// entryID derives a stable UUID string from the collection name and product
// id, so re-running ingestion upserts rather than duplicates.
func entryID(collection, productID string) string {
	sum := sha256.Sum256([]byte(collection + ":" + productID))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// expected CSV header columns, in order. A leading id column is accepted but
// optional; when absent, ids are assigned from the row ordinal.
var csvColumns = []string{"name", "description", "category", "subcategory", "image", "price"}

// LoadCSV parses the product catalog from r. The first row must be a header
// matching the expected columns, with or without a leading id column. Rows
// with a malformed price are skipped with a warning rather than failing the
// whole load.
func LoadCSV(ctx context.Context, r io.Reader) ([]Product, error) {
	log := logging.FromContext(ctx)

	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ingestion: read header: %w", err)
	}
	offset := 0
	if len(header) > 0 && strings.TrimSpace(strings.ToLower(header[0])) == "id" {
		offset = 1
	}
	if len(header) != len(csvColumns)+offset {
		return nil, fmt.Errorf("ingestion: header has %d columns, want %d", len(header), len(csvColumns)+offset)
	}
	for i, col := range csvColumns {
		if strings.TrimSpace(strings.ToLower(header[i+offset])) != col {
			return nil, fmt.Errorf("ingestion: unexpected header column %d: got %q, want %q", i+offset, header[i+offset], col)
		}
	}

	var products []Product
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: read line %d: %w", line, err)
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[5+offset]), 64)
		if err != nil {
			log.Warn("skipping row with malformed price", "line", line, "price", record[5+offset])
			continue
		}

		id := strconv.Itoa(line - 1)
		if offset == 1 {
			id = strings.TrimSpace(record[0])
		}
		products = append(products, Product{
			ID:          id,
			Name:        strings.TrimSpace(record[offset]),
			Description: strings.TrimSpace(record[offset+1]),
			Category:    strings.TrimSpace(record[offset+2]),
			Subcategory: strings.TrimSpace(record[offset+3]),
			Image:       strings.TrimSpace(record[offset+4]),
			Price:       price,
		})
	}

	return products, nil
}

// LoadCSVFile opens path and delegates to LoadCSV.
func LoadCSVFile(ctx context.Context, path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open catalog: %w", err)
	}
	defer f.Close()
	return LoadCSV(ctx, f)
}

// Pipeline wires the embedding generator to the two vector collections.
type Pipeline struct {
	generator  *embedder.Generator
	textStore  rag.VectorStore
	imageStore rag.VectorStore
}

// NewPipeline creates an ingestion pipeline. imageStore may be nil when
// image search is not configured; image embedding is then skipped entirely.
func NewPipeline(generator *embedder.Generator, textStore, imageStore rag.VectorStore) *Pipeline {
	return &Pipeline{generator: generator, textStore: textStore, imageStore: imageStore}
}

// Run ingests the catalog into both collections, skipping any collection
// that is already populated. It returns the number of text and image
// entries written.
func (p *Pipeline) Run(ctx context.Context, products []Product) (textAdded, imagesAdded int, err error) {
	log := logging.FromContext(ctx)

	textPopulated, err := p.textStore.Populated(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ingestion: check text collection: %w", err)
	}
	if textPopulated {
		log.Info("text collection already populated, skipping ingestion")
	} else {
		textAdded, err = p.ingestText(ctx, products)
		if err != nil {
			return 0, 0, err
		}
		log.Info("text ingestion complete", "products", len(products), "added", textAdded)
	}

	if p.imageStore == nil {
		return textAdded, 0, nil
	}

	imagePopulated, err := p.imageStore.Populated(ctx)
	if err != nil {
		return textAdded, 0, fmt.Errorf("ingestion: check image collection: %w", err)
	}
	if imagePopulated {
		log.Info("image collection already populated, skipping ingestion")
		return textAdded, 0, nil
	}

	imagesAdded, err = p.ingestImages(ctx, products)
	if err != nil {
		return textAdded, 0, err
	}
	log.Info("image ingestion complete", "products", len(products), "added", imagesAdded)

	return textAdded, imagesAdded, nil
}

func (p *Pipeline) ingestText(ctx context.Context, products []Product) (int, error) {
	log := logging.FromContext(ctx)

	texts := make([]string, len(products))
	for i := range products {
		texts[i] = products[i].CombinedText()
	}

	results := p.generator.EmbedTexts(ctx, texts, embedder.InputTypePassage)

	entries := make([]rag.Entry, 0, len(products))
	for i, res := range results {
		if !res.OK() {
			log.Warn("skipping product with failed text embedding",
				"product_id", products[i].ID, "error", res.Err)
			continue
		}
		entries = append(entries, rag.Entry{
			ID:     entryID("text", products[i].ID),
			Text:   texts[i],
			Vector: res.Vector,
			Meta:   products[i].Meta(products[i].Image),
		})
	}

	if err := p.textStore.Add(ctx, entries); err != nil {
		return 0, fmt.Errorf("ingestion: add text entries: %w", err)
	}
	return len(entries), nil
}

func (p *Pipeline) ingestImages(ctx context.Context, products []Product) (int, error) {
	log := logging.FromContext(ctx)

	refs := make([]string, len(products))
	for i := range products {
		refs[i] = products[i].Image
	}

	results := p.generator.EmbedImages(ctx, refs)

	entries := make([]rag.Entry, 0, len(products))
	for i, res := range results {
		if !res.OK() {
			log.Warn("skipping product with failed image embedding",
				"product_id", products[i].ID, "error", res.Err)
			continue
		}
		// The normalized data-URI replaces the original reference so search
		// results can render the image without refetching.
		entries = append(entries, rag.Entry{
			ID:     entryID("image", products[i].ID),
			Text:   products[i].CombinedText(),
			Vector: res.Vector,
			Meta:   products[i].Meta(res.Encoded),
		})
	}

	if err := p.imageStore.Add(ctx, entries); err != nil {
		return 0, fmt.Errorf("ingestion: add image entries: %w", err)
	}
	return len(entries), nil
}
