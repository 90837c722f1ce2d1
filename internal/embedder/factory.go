package embedder

import (
	"fmt"
	"os"
	"strconv"
)

// Default embedding models and endpoints per backend.
const (
	defaultNIMBaseURL    = "https://integrate.api.nvidia.com/v1"
	defaultNIMTextModel  = "nvidia/nv-embedqa-e5-v5"
	defaultNIMImageModel = "nvidia/nvclip"
	defaultOllamaModel   = "nomic-embed-text"

	// defaultNIMTextDimensions is the output dimension of nv-embedqa-e5-v5.
	defaultNIMTextDimensions = 1024
	// defaultNIMImageDimensions is the output dimension of nvclip.
	defaultNIMImageDimensions = 1024
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with TEXT_EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
)

// TextDimensions returns the text embedding vector size for the given backend.
// Callers that pre-configure a vector store collection should use this rather
// than hardcoding a value. TEXT_EMBEDDING_DIMENSIONS always takes precedence.
func TextDimensions(backend string) int {
	if v := getEnvInt("TEXT_EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultNIMTextDimensions
	}
}

// ImageDimensions returns the image embedding vector size.
// IMAGE_EMBEDDING_DIMENSIONS always takes precedence when set.
func ImageDimensions() int {
	if v := getEnvInt("IMAGE_EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	return defaultNIMImageDimensions
}

// NewClientFromEnv constructs a BatchClient from environment variables.
//
// Resolution:
//
//	EMBEDDING_PROVIDER          = nim | ollama (default: nim)
//
//	NIM:    EMBED_API_KEY (required),
//	        TEXT_EMBEDDING_ENDPOINT / IMAGE_EMBEDDING_ENDPOINT (default: NVIDIA integrate API)
//	        TEXT_EMBEDDING_MODEL (default: nvidia/nv-embedqa-e5-v5)
//	        IMAGE_EMBEDDING_MODEL (default: nvidia/nvclip)
//	Ollama: OLLAMA_HOST (default: http://localhost:11434),
//	        TEXT_EMBEDDING_MODEL (default: nomic-embed-text). Text only.
func NewClientFromEnv() (BatchClient, error) {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "nim")

	switch backend {
	case "nim":
		apiKey := os.Getenv("EMBED_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: nim backend requires EMBED_API_KEY")
		}
		return NewNIMClient(&NIMConfig{
			TextBaseURL:  getEnvOrDefault("TEXT_EMBEDDING_ENDPOINT", defaultNIMBaseURL),
			ImageBaseURL: getEnvOrDefault("IMAGE_EMBEDDING_ENDPOINT", defaultNIMBaseURL),
			TextModel:    getEnvOrDefault("TEXT_EMBEDDING_MODEL", defaultNIMTextModel),
			ImageModel:   getEnvOrDefault("IMAGE_EMBEDDING_MODEL", defaultNIMImageModel),
			APIKey:       apiKey,
		}), nil

	case "ollama":
		return NewOllamaClient(&OllamaConfig{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("TEXT_EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: nim, ollama", backend)
	}
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
