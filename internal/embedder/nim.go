package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NIMClient implements BatchClient against NVIDIA NIM (or any
// OpenAI-compatible) embeddings endpoints. Text and image embeddings may be
// served by different endpoints and models — e.g. a retrieval QA model for
// text and a CLIP model for images. It is safe for concurrent use.
type NIMClient struct {
	// textBaseURL is the API base for text embeddings (e.g. "https://integrate.api.nvidia.com/v1").
	textBaseURL string
	// imageBaseURL is the API base for image embeddings.
	imageBaseURL string
	// textModel is the text embedding model name.
	textModel string
	// imageModel is the image embedding model name.
	imageModel string
	// apiKey is the Bearer token shared by both endpoints.
	apiKey string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// NIMConfig holds the settings for constructing a NIMClient.
type NIMConfig struct {
	// TextBaseURL is the text embeddings API base URL.
	TextBaseURL string
	// ImageBaseURL is the image embeddings API base URL.
	ImageBaseURL string
	// TextModel is the text embedding model name (e.g. "nvidia/nv-embedqa-e5-v5").
	TextModel string
	// ImageModel is the image embedding model name (e.g. "nvidia/nvclip").
	ImageModel string
	// APIKey is the authentication key.
	APIKey string
	// Timeout bounds each HTTP call (default: 60s).
	Timeout time.Duration
}

// NewNIMClient constructs a NIMClient from the given config.
func NewNIMClient(cfg *NIMConfig) *NIMClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &NIMClient{
		textBaseURL:  cfg.TextBaseURL,
		imageBaseURL: cfg.ImageBaseURL,
		textModel:    cfg.TextModel,
		imageModel:   cfg.ImageModel,
		apiKey:       cfg.APIKey,
		client:       &http.Client{Timeout: timeout},
	}
}

// nimEmbedRequest is the JSON body sent to the embeddings endpoint.
// InputType and Truncate are NIM extensions to the OpenAI schema; they are
// omitted for image models, which do not accept them.
type nimEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	InputType      string   `json:"input_type,omitempty"`
	Truncate       string   `json:"truncate,omitempty"`
}

// nimEmbedResponse is the JSON body returned from the embeddings endpoint.
type nimEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbedTextBatch embeds a batch of text chunks via the text endpoint.
func (c *NIMClient) EmbedTextBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	return c.embed(ctx, c.textBaseURL, nimEmbedRequest{
		Input:          texts,
		Model:          c.textModel,
		EncodingFormat: "float",
		InputType:      inputType,
		Truncate:       "NONE",
	})
}

// EmbedImageBatch embeds a batch of encoded images via the image endpoint.
func (c *NIMClient) EmbedImageBatch(ctx context.Context, images []string) ([][]float32, error) {
	return c.embed(ctx, c.imageBaseURL, nimEmbedRequest{
		Input:          images,
		Model:          c.imageModel,
		EncodingFormat: "float",
	})
}

// embed performs one embeddings call and reorders the response by index.
func (c *NIMClient) embed(ctx context.Context, baseURL string, body nimEmbedRequest) ([][]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("nim embedder: marshal request: %w", err)
	}

	url := baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("nim embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nim embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result nimEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("nim embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("nim embedder: %s", msg)
	}

	if len(result.Data) != len(body.Input) {
		return nil, fmt.Errorf("nim embedder: expected %d embeddings, got %d", len(body.Input), len(result.Data))
	}

	// The API may return data out of order; sort by index.
	embeddings := make([][]float32, len(body.Input))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(body.Input) {
			return nil, fmt.Errorf("nim embedder: index %d out of range [0, %d)", d.Index, len(body.Input))
		}
		embeddings[d.Index] = d.Embedding
	}

	return embeddings, nil
}
