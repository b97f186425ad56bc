// Command boltd serves the chat UI shell and streams model output to it.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var configRoot string

var rootCmd = &cobra.Command{
	Use:   "boltd",
	Short: "Streaming chat UI server",
	Long: `boltd renders the chat UI shell and relays prompts to a hosted language
model, streaming generated text back to the browser as it arrives.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configRoot, "config-root", ".", "Directory holding config/setting.ini")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
