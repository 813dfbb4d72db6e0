package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/pagechat/internal/mcp"
	"github.com/mfenderov/pagechat/internal/pipeline"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the MCP server on stdio.

Tools:
  - submit_url: Index a page and open its session
  - get_history: Get a session's conversation
  - search_context: Search indexed chunks by query
  - ask_page: Ask a question about a submitted page

Example:
  pagechat mcp`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	server, err := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, mcp.Deps{
		Submitter: p.Orchestrator,
		History:   p.History,
		Retriever: p.Index,
		Asker:     p.Chat,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
