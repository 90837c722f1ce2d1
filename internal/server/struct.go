package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/shopgenie-go/internal/agent"
	"github.com/54b3r/shopgenie-go/internal/cart"
	"github.com/54b3r/shopgenie-go/internal/retrieval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry for server metrics. If nil a fresh
	// registry is created, keeping unit tests hermetic.
	Registry *prometheus.Registry
}

// retriever is the interface the query handlers call to run a product
// search. *retrieval.Retriever satisfies it; tests inject a fake.
type retriever interface {
	// RetrieveIn fans the queries (plus an optional image) out over the
	// catalog, restricted to the given categories, and returns up to k
	// fused results. k <= 0 selects the configured default.
	RetrieveIn(ctx context.Context, queries []string, image string, categories []string, k int) (*retrieval.Results, error)
	// Categories returns the configured allowed-category list, used when a
	// request does not narrow it.
	Categories() []string
}

// chatter is the interface handleChat calls to answer a conversational
// turn. *agent.ShoppingAgent satisfies it; tests inject a fake.
type chatter interface {
	Chat(ctx context.Context, userID, message, image string) (*agent.Response, error)
}

// Server is the HTTP server exposing retrieval, chat, and cart endpoints.
type Server struct {
	// retriever runs product searches for the query endpoints.
	retriever retriever
	// chatter answers conversational turns; nil disables /api/chat.
	chatter chatter
	// carts persists shopping carts; nil disables the cart endpoints.
	carts cart.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// registry serves GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// textQueryRequest is the JSON body for POST /query/text.
type textQueryRequest struct {
	// Queries is the list of search strings to fan out.
	Queries []string `json:"text"`
	// Categories narrows the allowed-category list for this request. An
	// omitted field means the configured list; an explicit empty list
	// admits nothing.
	Categories []string `json:"categories,omitempty"`
	// K overrides the number of results to return. Zero means the
	// configured default.
	K int `json:"k,omitempty"`
}

// imageQueryRequest is the JSON body for POST /query/image.
type imageQueryRequest struct {
	// Queries is the optional list of search strings.
	Queries []string `json:"text,omitempty"`
	// Image is the image reference: a base64 data URI or URL.
	Image string `json:"image_base64"`
	// Categories narrows the allowed-category list for this request.
	Categories []string `json:"categories,omitempty"`
	// K overrides the number of results to return.
	K int `json:"k,omitempty"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// UserID identifies the shopper for cart and context persistence.
	UserID string `json:"user_id"`
	// Message is the user's natural language request.
	Message string `json:"message"`
	// Image is an optional image reference accompanying the message.
	Image string `json:"image,omitempty"`
}

// cartMutationRequest is the JSON body for the cart add/remove endpoints.
type cartMutationRequest struct {
	// Name is the product name.
	Name string `json:"name"`
	// Quantity is how many to add or remove. Defaults to 1.
	Quantity int `json:"quantity,omitempty"`
	// Price is the unit price, used on add.
	Price float64 `json:"price,omitempty"`
}

// cartResponse is the JSON response for the cart endpoints.
type cartResponse struct {
	// UserID identifies the shopper.
	UserID string `json:"user_id"`
	// Items is the cart content, oldest-added first.
	Items []cart.Item `json:"items"`
}
