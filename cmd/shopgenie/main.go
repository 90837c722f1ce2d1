// Command shopgenie is the entry point for the ShopGenie shopping assistant.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// retrieval, chat, and cart APIs.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/shopgenie-go/cmd/shopgenie/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
