package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "storerouter",
	Short: "Chat assistant that routes questions across document stores",
	Long: `storerouter answers chat questions from a catalog of hosted document stores.

Each message is classified, routed to one or several stores (or to web search),
and answered with conversation memory. Control operations such as creating,
selecting or syncing stores are available both as commands and in plain language.

Run "storerouter serve" to start the HTTP chat webhook and admin API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storesCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
