package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopgenie-go/internal/logging"
)

// NewIngestCmd constructs the `shopgenie ingest` command, which embeds the
// product catalog CSV into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the product catalog CSV into the vector store",
		Long: `Embed the product catalog into the Qdrant vector store.

Each product's combined text (name, description, category) is embedded into
the text collection, and each product image into the image collection.
Collections that already hold data are skipped, so re-running ingestion is
safe and cheap.

Required environment variables:
  QDRANT_HOST               Qdrant server hostname (default: localhost)
  QDRANT_PORT               Qdrant gRPC port (default: 6334)
  QDRANT_TEXT_COLLECTION    Text collection name (default: shopgenie-products)
  QDRANT_IMAGE_COLLECTION   Image collection name (default: shopgenie-product-images)
  EMBEDDING_PROVIDER        Embedding backend: nim, ollama (default: nim)
  EMBED_API_KEY             API key for the NIM backend

Examples:
  shopgenie ingest --csv ./catalog.csv
  CATALOG_CSV_PATH=./catalog.csv shopgenie ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if csvPath == "" {
				csvPath = os.Getenv("CATALOG_CSV_PATH")
			}
			if csvPath == "" {
				return fmt.Errorf("ingest: --csv or CATALOG_CSV_PATH is required")
			}

			gen, err := buildGenerator()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			textStore, imageStore, closeStores, err := buildStores(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeStores()

			if err := runIngestion(ctx, log, csvPath, gen, textStore, imageStore); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&csvPath, "csv", "c", "", "Path to the product catalog CSV file")

	return cmd
}
