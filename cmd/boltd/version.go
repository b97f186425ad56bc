package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokligence/boltstream/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.FullInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
