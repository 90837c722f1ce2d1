package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger probes a Qdrant instance via its health check RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger wraps an existing Qdrant client as a readiness probe.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

func (p *QdrantPinger) Name() string { return "qdrant" }

func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// HTTPPinger probes an HTTP endpoint and treats any response below 500 as
// healthy. It is used for the embedding backend, whose base URL answers
// even unauthenticated requests.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPinger creates a probe that GETs url under the probe timeout.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: &http.Client{}}
}

func (p *HTTPPinger) Name() string { return p.name }

func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("%s probe: %w", p.name, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s probe: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s probe: status %d", p.name, resp.StatusCode)
	}
	return nil
}

// LLMPinger probes the chat model with a minimal one-token generation.
// Probes count against provider quota, so wire it only where that cost
// is acceptable.
type LLMPinger struct {
	chatModel model.ToolCallingChatModel
}

// NewLLMPinger wraps a chat model as a readiness probe.
func NewLLMPinger(chatModel model.ToolCallingChatModel) *LLMPinger {
	return &LLMPinger{chatModel: chatModel}
}

func (p *LLMPinger) Name() string { return "llm" }

func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{schema.UserMessage("ping")}
	if _, err := p.chatModel.Generate(ctx, msgs, model.WithMaxTokens(1)); err != nil {
		return fmt.Errorf("llm generate: %w", err)
	}
	return nil
}
