package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopgenie-go/internal/agent"
	"github.com/54b3r/shopgenie-go/internal/config"
	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/provider"
)

// NewAskCmd constructs the `shopgenie ask` command, which sends a single
// message to the shopping agent and prints the reply.
func NewAskCmd() *cobra.Command {
	var user string
	var image string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask the shopping assistant a question",
		Long: `Send one message to the ShopGenie agent from the command line.

The agent searches the catalog, manages the cart, or answers directly,
exactly as it would over the HTTP API. Conversation context and cart
state persist across invocations for the same --user.

Examples:
  shopgenie ask "find me a red summer dress"
  shopgenie ask --image ./shoe.jpg "got anything like this?"
  shopgenie ask --user alice "add the first one to my cart"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			gen, err := buildGenerator()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			textStore, imageStore, closeStores, err := buildStores(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeStores()

			retriever := buildRetriever(gen, textStore, imageStore)

			shoppingAgent, err := agent.New(&agent.Config{
				ChatModel:  chatModel,
				Searcher:   buildSearcher(retriever, log),
				Categories: config.Categories(os.Getenv("RETRIEVAL_CATEGORIES")),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent: %w", err)
			}

			resp, err := shoppingAgent.Chat(ctx, user, strings.Join(args, " "), image)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Text)
			if resp.Products != nil {
				for i, name := range resp.Products.Names {
					fmt.Printf("  %d. %s (similarity %.2f)\n", i+1, name, resp.Products.Similarities[i])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "cli", "User ID for cart and conversation context")
	cmd.Flags().StringVarP(&image, "image", "i", "", "Image reference to search with (path, URL, or data URI)")

	return cmd
}
