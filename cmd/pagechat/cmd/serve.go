package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mfenderov/pagechat/internal/pipeline"
	"github.com/mfenderov/pagechat/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP front end",
	Long: `Start the HTTP front end: the URL form with its chat widget, the JSON API,
/healthz and /metrics.

Examples:
  pagechat serve
  pagechat serve --addr :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	metrics := server.NewMetrics()
	p.Orchestrator.OnEvent(metrics.ObserveSubmission)

	srv, err := server.New(server.Config{
		Address:           cfg.Server.Address,
		CookieName:        cfg.Server.CookieName,
		IssueCookie:       cfg.Server.IssueCookie,
		CookieSecure:      cfg.Server.CookieSecure,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}, server.Deps{
		Submitter: p.Orchestrator,
		History:   p.History,
		Chat:      p.Chat,
		Metrics:   metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", cfg.Server.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
