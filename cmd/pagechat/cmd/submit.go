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
	submitURL    string
	submitToken  string
	submitFormat string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a URL once",
	Long: `Run one submission: index the page unless it is already indexed, then print
the session key and its recent messages.

Examples:
  pagechat submit --url https://go.dev/doc/effective_go
  pagechat submit --url https://go.dev/doc/effective_go --token abc123 --format json`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitURL, "url", "", "URL to submit (required)")
	submitCmd.Flags().StringVar(&submitToken, "token", "", "Session token")
	submitCmd.Flags().StringVar(&submitFormat, "format", "text", "Output format: text or json")
	submitCmd.MarkFlagRequired("url")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, GetConfig())
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	res, err := p.Orchestrator.Submit(ctx, submitURL, submitToken)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if submitFormat == "json" {
		output, err := json.MarshalIndent(map[string]any{
			"canonical_url": res.CanonicalURL,
			"session_id":    res.SessionKey,
			"skipped":       res.Skipped,
			"chunks":        res.ChunksIndexed,
			"messages":      res.Messages,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintf(out, "URL:      %s\n", res.CanonicalURL)
	fmt.Fprintf(out, "Session:  %s\n", res.SessionKey)
	if res.Skipped {
		fmt.Fprintln(out, "Status:   already indexed")
	} else {
		fmt.Fprintf(out, "Status:   indexed %d chunks in %v\n", res.ChunksIndexed, res.IngestDuration)
	}
	fmt.Fprintf(out, "Messages: %d\n", len(res.Messages))
	for _, m := range res.Messages {
		fmt.Fprintf(out, "  [%s] %s\n", m.Role, m.Content)
	}
	return nil
}
