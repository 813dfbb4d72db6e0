package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/pagechat/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Search the chunks of every indexed page.

Examples:
  # Basic search
  pagechat search "how to install"

  # Limit results
  pagechat search "error handling" --limit 5

  # JSON output for scripting
  pagechat search "modules" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, GetConfig())
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	chunks, err := p.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(chunks) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(chunks))
	for i, chunk := range chunks {
		fmt.Fprintf(out, "─── Result %d ───\n", i+1)
		fmt.Fprintf(out, "Title:    %s\n", chunk.Title)
		fmt.Fprintf(out, "URL:      %s\n", chunk.URL)
		fmt.Fprintf(out, "Position: %d\n", chunk.Position)
		fmt.Fprintf(out, "Score:    %.3f\n", chunk.Score)
		fmt.Fprintf(out, "Content:\n%s\n\n", chunk.Content)
	}
	return nil
}
