package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/shopgenie-go/internal/agent"
	"github.com/54b3r/shopgenie-go/internal/cart"
	"github.com/54b3r/shopgenie-go/internal/config"
	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/provider"
	"github.com/54b3r/shopgenie-go/internal/server"
	"github.com/54b3r/shopgenie-go/internal/tracing"
)

// NewServeCmd constructs the `shopgenie serve` command, which starts the
// HTTP server exposing the retrieval, chat, and cart APIs.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ShopGenie HTTP server",
		Long: `Start the ShopGenie HTTP server on localhost.

The server exposes text and image product search, the conversational
shopping agent, and per-user cart management. If CATALOG_CSV_PATH is set,
the product catalog is ingested on startup; collections that already hold
data are left untouched.

Examples:
  shopgenie serve
  shopgenie serve --port 9090
  MODEL_PROVIDER=openai shopgenie serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Flags win over env; env (possibly set from YAML) wins over defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SHOPGENIE_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SHOPGENIE_PORT", port)
			}

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

			gen, err := buildGenerator()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			textStore, imageStore, closeStores, err := buildStores(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStores()

			// Populate the catalog on startup when configured. Collections
			// that already hold data are skipped.
			if csvPath := os.Getenv("CATALOG_CSV_PATH"); csvPath != "" {
				if err := runIngestion(ctx, log, csvPath, gen, textStore, imageStore); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}

			retriever := buildRetriever(gen, textStore, imageStore)

			// Open the cart store. SHOPGENIE_CART_DB overrides the default
			// path (~/.shopgenie/carts.db). Set to "disabled" to disable.
			var cartStore cart.Store
			dbPath := os.Getenv("SHOPGENIE_CART_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = cart.DefaultDBPath()
					if err != nil {
						log.Warn("cart: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					cs, csErr := cart.Open(dbPath)
					if csErr != nil {
						log.Warn("cart: failed to open store, disabling", slog.Any("error", csErr))
					} else {
						cartStore = cs
						defer func() { _ = cs.Close() }()
						log.Info("cart: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("cart: disabled via SHOPGENIE_CART_DB=disabled")
			}

			shoppingAgent, err := agent.New(&agent.Config{
				ChatModel:  chatModel,
				Searcher:   buildSearcher(retriever, log),
				Cart:       cartStore,
				Categories: config.Categories(os.Getenv("RETRIEVAL_CATEGORIES")),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(textStore.Client()),
			}
			if getEnvOrDefault("EMBEDDING_PROVIDER", "nim") == "ollama" {
				pingers = append(pingers, server.NewHTTPPinger("embedding", getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")))
			}
			// LLM probes consume provider quota, so they are opt-in.
			if os.Getenv("SHOPGENIE_PROBE_LLM") == "true" {
				pingers = append(pingers, server.NewLLMPinger(chatModel))
			}

			srv, err := server.New(retriever, shoppingAgent, cartStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("SHOPGENIE_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
