package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/shopgenie-go/internal/imaging"
	"github.com/54b3r/shopgenie-go/internal/logging"
)

// defaultBatchSize is the number of items sent per embedding call.
const defaultBatchSize = 32

// GeneratorConfig holds the pipeline parameters above the raw provider.
type GeneratorConfig struct {
	// ChunkSize is the maximum text chunk length (default: 1000).
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks (default: 200).
	ChunkOverlap int
	// BatchSize is the number of items per embedding call (default: 32).
	BatchSize int
}

// Generator implements the catalog embedding pipeline on top of a raw
// BatchClient: chunking, batching, mean pooling, and image normalization
// with per-item failure isolation. It is safe for concurrent use.
type Generator struct {
	// client is the raw provider for batch embedding calls.
	client BatchClient
	// normalizer converts image references into bounded data-URI payloads.
	normalizer *imaging.Normalizer
	// splitter chunks input text at natural boundaries.
	splitter *Splitter
	// batchSize is the number of items per embedding call.
	batchSize int
}

// NewGenerator constructs a Generator from the provided client and config.
// normalizer may be nil when the caller never embeds images.
func NewGenerator(client BatchClient, normalizer *imaging.Normalizer, cfg *GeneratorConfig) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("embedder: client must not be nil")
	}
	if cfg == nil {
		cfg = &GeneratorConfig{}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Generator{
		client:     client,
		normalizer: normalizer,
		splitter:   NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		batchSize:  batch,
	}, nil
}

// chunkRef ties a flattened chunk back to the input text it came from.
type chunkRef struct {
	// owner is the index of the source text in the input slice.
	owner int
	// text is the chunk content.
	text string
}

// EmbedTexts embeds a list of texts. Each text is chunked, all chunks across
// all texts are batched for the provider, and each text's embedding is the
// L2-normalized arithmetic mean of its successfully-embedded chunks.
//
// The returned slice always has exactly len(texts) entries in input order.
// A batch failure marks only that batch's chunks as failed; a text whose
// chunks all failed (or which chunked to nothing) gets an absent Result.
func (g *Generator) EmbedTexts(ctx context.Context, texts []string, inputType string) []Result {
	log := logging.FromContext(ctx)
	results := make([]Result, len(texts))

	// Flatten chunks across all inputs so batches fill up regardless of how
	// unevenly individual texts chunk.
	var chunks []chunkRef
	for i, text := range texts {
		split := g.splitter.Split(text)
		if len(split) == 0 {
			results[i] = Result{Err: fmt.Errorf("embedder: text %d is empty after splitting", i)}
			continue
		}
		for _, c := range split {
			chunks = append(chunks, chunkRef{owner: i, text: c})
		}
	}

	// chunkVectors[i] holds the surviving chunk embeddings for text i.
	chunkVectors := make([][][]float32, len(texts))
	chunkErrs := make([]error, len(texts))

	for start := 0; start < len(chunks); start += g.batchSize {
		end := start + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		inputs := make([]string, len(batch))
		for i, c := range batch {
			inputs[i] = c.text
		}

		vectors, err := g.client.EmbedTextBatch(ctx, inputs, inputType)
		if err != nil {
			// The whole batch is lost; other batches continue.
			log.Warn("embedder: text batch failed",
				slog.Int("batch_start", start),
				slog.Int("batch_len", len(batch)),
				slog.Any("error", err),
			)
			for _, c := range batch {
				chunkErrs[c.owner] = err
			}
			continue
		}
		if len(vectors) != len(batch) {
			err := fmt.Errorf("embedder: expected %d vectors, got %d", len(batch), len(vectors))
			for _, c := range batch {
				chunkErrs[c.owner] = err
			}
			continue
		}
		for i, c := range batch {
			chunkVectors[c.owner] = append(chunkVectors[c.owner], vectors[i])
		}
	}

	for i := range texts {
		if results[i].Err != nil {
			continue // empty input, already marked
		}
		if len(chunkVectors[i]) == 0 {
			err := chunkErrs[i]
			if err == nil {
				err = fmt.Errorf("embedder: no chunks embedded for text %d", i)
			}
			results[i] = Result{Err: err}
			continue
		}
		pooled, err := meanPool(chunkVectors[i])
		if err != nil {
			results[i] = Result{Err: err}
			continue
		}
		results[i] = Result{Vector: normalize(pooled)}
	}

	return results
}

// EmbedQuery embeds a single query string and returns its vector.
// Unlike the bulk path, a failure here is returned as an error — a query
// that cannot be embedded cannot be searched.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	results := g.EmbedTexts(ctx, []string{text}, InputTypeQuery)
	if !results[0].OK() {
		return nil, fmt.Errorf("embedder: query embedding failed: %w", results[0].Err)
	}
	return results[0].Vector, nil
}

// EmbedImages embeds a list of image references (URLs, paths, or encoded
// payloads). Within each batch, references are first normalized; oversized
// or undecodable entries are marked absent, and the provider call carries
// only the valid payloads. Results are redistributed to original positions,
// so the returned slice always has exactly len(refs) entries in input order.
func (g *Generator) EmbedImages(ctx context.Context, refs []string) []ImageResult {
	log := logging.FromContext(ctx)
	results := make([]ImageResult, len(refs))

	for start := 0; start < len(refs); start += g.batchSize {
		end := start + g.batchSize
		if end > len(refs) {
			end = len(refs)
		}

		// Compact: normalize each reference, keeping only usable payloads.
		// The provider batch is therefore usually smaller than the input batch.
		var payloads []string
		var positions []int
		for i := start; i < end; i++ {
			if g.normalizer == nil {
				results[i] = ImageResult{Result: Result{Err: fmt.Errorf("embedder: no image normalizer configured")}}
				continue
			}
			encoded, err := g.normalizer.Normalize(ctx, refs[i])
			if err != nil {
				log.Debug("embedder: skipping image",
					slog.Int("position", i),
					slog.Any("error", err),
				)
				results[i] = ImageResult{Result: Result{Err: err}}
				continue
			}
			results[i] = ImageResult{Encoded: encoded}
			payloads = append(payloads, encoded)
			positions = append(positions, i)
		}
		if len(payloads) == 0 {
			continue
		}

		vectors, err := g.client.EmbedImageBatch(ctx, payloads)
		if err != nil {
			log.Warn("embedder: image batch failed",
				slog.Int("batch_start", start),
				slog.Int("batch_len", len(payloads)),
				slog.Any("error", err),
			)
			for _, pos := range positions {
				results[pos] = ImageResult{Result: Result{Err: err}, Encoded: results[pos].Encoded}
			}
			continue
		}
		if len(vectors) != len(payloads) {
			err := fmt.Errorf("embedder: expected %d vectors, got %d", len(payloads), len(vectors))
			for _, pos := range positions {
				results[pos] = ImageResult{Result: Result{Err: err}, Encoded: results[pos].Encoded}
			}
			continue
		}

		// Redistribute to original positions.
		for i, pos := range positions {
			results[pos].Vector = normalize(vectors[i])
		}
	}

	return results
}

// EmbedImageQuery normalizes and embeds a single image payload for search.
// Failures are returned as errors — an unembeddable image cannot be searched.
func (g *Generator) EmbedImageQuery(ctx context.Context, payload string) ([]float32, error) {
	results := g.EmbedImages(ctx, []string{payload})
	if !results[0].OK() {
		return nil, fmt.Errorf("embedder: image query embedding failed: %w", results[0].Err)
	}
	return results[0].Vector, nil
}
