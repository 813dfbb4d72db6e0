package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/pagechat/internal/storage"
	"github.com/mfenderov/pagechat/internal/urlcanon"
	"github.com/spf13/cobra"
)

var snapshotsURL string

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List archived copies of a page",
	Long: `List the raw page copies archived in S3/MinIO each time a URL was ingested.

Example:
  pagechat snapshots --url https://go.dev/doc/effective_go`,
	RunE: runSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)

	snapshotsCmd.Flags().StringVar(&snapshotsURL, "url", "", "Page URL (required)")
	snapshotsCmd.MarkFlagRequired("url")
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if !cfg.SnapshotsEnabled() {
		return fmt.Errorf("storage not configured - set storage.endpoint")
	}

	canonical, err := urlcanon.Reconstruct(snapshotsURL)
	if err != nil {
		return err
	}

	client, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	prefixes, err := client.ListSnapshots(ctx, canonical)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(prefixes) == 0 {
		fmt.Fprintf(out, "No snapshots for %s\n", canonical)
		return nil
	}

	fmt.Fprintf(out, "Snapshots for %s:\n", canonical)
	for _, prefix := range prefixes {
		meta, err := client.GetMetadata(ctx, prefix)
		if err != nil {
			fmt.Fprintf(out, "  %s  (metadata unavailable: %v)\n", prefix, err)
			continue
		}
		fmt.Fprintf(out, "  %s  %s  %d  %s  %d bytes\n",
			prefix, meta.FetchedAt, meta.StatusCode, meta.ContentType, meta.Size)
	}
	return nil
}
