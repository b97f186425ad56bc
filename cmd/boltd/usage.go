package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tokligence/boltstream/internal/config"
	"github.com/tokligence/boltstream/internal/ledger"
)

var (
	usageEndpoint string
	usageLimit    int
	usageJSON     bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarise the usage ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configRoot)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := openLedger(cfg, nil)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		if store == nil {
			return errors.New("ledger disabled (ledger_path = -)")
		}
		defer store.Close()

		summary, err := store.Summary(cmd.Context(), usageEndpoint)
		if err != nil {
			return err
		}
		var recent []ledger.Entry
		if usageLimit > 0 {
			if recent, err = store.ListRecent(cmd.Context(), usageLimit); err != nil {
				return err
			}
		}
		return printUsage(cmd.OutOrStdout(), usageEndpoint, summary, recent)
	},
}

func init() {
	usageCmd.Flags().StringVar(&usageEndpoint, "endpoint", "", "Only count one endpoint (chat, enhancer, page)")
	usageCmd.Flags().IntVar(&usageLimit, "recent", 0, "Also list the N most recent entries")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(usageCmd)
}

func printUsage(w io.Writer, endpoint string, s ledger.Summary, recent []ledger.Entry) error {
	if usageJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"endpoint": endpoint, "summary": s, "recent": recent})
	}
	scope := endpoint
	if scope == "" {
		scope = "all endpoints"
	}
	fmt.Fprintf(w, "usage for %s\n", scope)
	fmt.Fprintf(w, "  requests           %d\n", s.Requests)
	fmt.Fprintf(w, "  completed          %d\n", s.Completed)
	fmt.Fprintf(w, "  failed_precommit   %d\n", s.FailedPreCommit)
	fmt.Fprintf(w, "  failed_postcommit  %d\n", s.FailedPostCommit)
	fmt.Fprintf(w, "  cancelled          %d\n", s.Cancelled)
	fmt.Fprintf(w, "  prompt_chars       %d\n", s.PromptChars)
	fmt.Fprintf(w, "  completion_chars   %d\n", s.CompletionChars)
	for _, e := range recent {
		fmt.Fprintf(w, "%s  %-8s %-17s %6dms %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Endpoint, e.Outcome, e.DurationMS, e.RequestID)
	}
	return nil
}
