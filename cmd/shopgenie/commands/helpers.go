package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/shopgenie-go/internal/agent"
	"github.com/54b3r/shopgenie-go/internal/client"
	"github.com/54b3r/shopgenie-go/internal/config"
	"github.com/54b3r/shopgenie-go/internal/embedder"
	"github.com/54b3r/shopgenie-go/internal/imaging"
	"github.com/54b3r/shopgenie-go/internal/ingestion"
	"github.com/54b3r/shopgenie-go/internal/rag"
	"github.com/54b3r/shopgenie-go/internal/retrieval"
)

// Default Qdrant collection names for the two modalities.
const (
	defaultTextCollection  = "shopgenie-products"
	defaultImageCollection = "shopgenie-product-images"
)

// buildGenerator constructs the embedding pipeline from environment
// variables.
func buildGenerator() (*embedder.Generator, error) {
	client, err := embedder.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedding client: %w", err)
	}
	normalizer := imaging.NewNormalizer(imaging.Config{})
	gen, err := embedder.NewGenerator(client, normalizer, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedding generator: %w", err)
	}
	return gen, nil
}

// buildStores connects to Qdrant and opens the text and image collections
// over one shared gRPC connection. The returned close function closes that
// connection.
func buildStores(ctx context.Context, log *slog.Logger) (textStore, imageStore *rag.QdrantStore, closeFn func(), err error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	apiKey := os.Getenv("QDRANT_API_KEY")
	useTLS := os.Getenv("QDRANT_TLS") == "true"

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", "nim")
	textCollection := getEnvOrDefault("QDRANT_TEXT_COLLECTION", defaultTextCollection)
	imageCollection := getEnvOrDefault("QDRANT_IMAGE_COLLECTION", defaultImageCollection)

	textStore, err = rag.NewQdrantStoreWithClient(ctx, client, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: textCollection,
		VectorSize: uint64(embedder.TextDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     apiKey,
		UseTLS:     useTLS,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("failed to open text collection %q: %w", textCollection, err)
	}

	// Ollama embeds text only; skip the image collection there so image
	// search fails with a clear error instead of a dimension mismatch.
	if embBackend != "ollama" {
		imageStore, err = rag.NewQdrantStoreWithClient(ctx, client, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: imageCollection,
			VectorSize: uint64(embedder.ImageDimensions()), //nolint:gosec // dimensions are bounded
			APIKey:     apiKey,
			UseTLS:     useTLS,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("failed to open image collection %q: %w", imageCollection, err)
		}
	} else {
		log.Info("image search disabled", slog.String("reason", "ollama embedding backend is text-only"))
	}

	log.Info("qdrant ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("text_collection", textCollection),
		slog.String("image_collection", imageCollection),
	)

	return textStore, imageStore, func() { _ = client.Close() }, nil
}

// buildRetriever constructs the fusion retriever from environment variables.
func buildRetriever(gen *embedder.Generator, textStore, imageStore *rag.QdrantStore) *retrieval.Retriever {
	var is rag.VectorStore
	if imageStore != nil {
		is = imageStore
	}
	return retrieval.NewRetriever(gen, textStore, is, retrieval.Config{
		TopK:       getEnvInt("RETRIEVAL_TOP_K", 4),
		Threshold:  getEnvFloat32("RETRIEVAL_SIM_THRESHOLD", 0.3),
		Categories: config.Categories(os.Getenv("RETRIEVAL_CATEGORIES")),
	})
}

// buildSearcher returns the agent's search seam. By default the agent
// searches in process; SHOPGENIE_RETRIEVER_URL points it at a remote
// retrieval service instead (the client retries transient failures).
func buildSearcher(retriever *retrieval.Retriever, log *slog.Logger) agent.Searcher {
	if url := os.Getenv("SHOPGENIE_RETRIEVER_URL"); url != "" {
		log.Info("using remote retriever", slog.String("url", url))
		return client.New(url, client.WithAPIKey(os.Getenv("SHOPGENIE_RETRIEVER_API_KEY")))
	}
	return agent.NewRetrieverSearcher(retriever)
}

// runIngestion loads the catalog CSV and populates both collections.
// Already-populated collections are skipped, making it safe to run on
// every startup.
func runIngestion(ctx context.Context, log *slog.Logger, csvPath string, gen *embedder.Generator, textStore, imageStore *rag.QdrantStore) error {
	products, err := ingestion.LoadCSVFile(ctx, csvPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog %q: %w", csvPath, err)
	}

	var is rag.VectorStore
	if imageStore != nil {
		is = imageStore
	}
	pipeline := ingestion.NewPipeline(gen, textStore, is)

	textAdded, imagesAdded, err := pipeline.Run(ctx, products)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	log.Info("catalog ingestion complete",
		slog.Int("products", len(products)),
		slog.Int("text_added", textAdded),
		slog.Int("images_added", imagesAdded),
	)
	return nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
