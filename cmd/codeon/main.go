package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codeon",
	Short: "Codeon - multi-tenant code execution backend",
	Long: `Codeon provisions an isolated sandbox per tenant and runs code
snippets inside it under resource and time limits, streaming results back
over a persistent WebSocket session.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
