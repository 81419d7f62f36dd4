package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"artifactpush/internal/app"
	"artifactpush/internal/config"
	"artifactpush/internal/logger"
	"artifactpush/internal/progress"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile  string
	buildFailed bool
)

var rootCmd = &cobra.Command{
	Use:   "artifactpush",
	Short: "Upload build output to S3 compatible object storage",
	Long:  `A concurrent batch uploader that pushes a build output directory to an S3 compatible bucket, with retry, multipart transfers and progress reporting.`,
	RunE:  runUpload,
	// Failures are reported by the upload summary, not usage text.
	SilenceUsage: true,
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List files that failed in the most recent upload run",
	RunE:  runFailures,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.Flags().BoolVar(&buildFailed, "build-failed", false, "Mark the preceding build as failed; no upload is started")

	config.RegisterFlags(rootCmd.Flags())

	failuresCmd.Flags().String("history", config.Default().Upload.History, "Upload history database file")
	rootCmd.AddCommand(failuresCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	uploader, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create uploader: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, finishing in-flight uploads...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = uploader.Run(ctx, buildFailed)

	if closeErr := uploader.Close(); closeErr != nil {
		log.Error("Error closing uploader", zap.Error(closeErr))
	}

	return err
}

func runFailures(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("history")
	if err != nil {
		return err
	}

	run, records, err := app.LastFailures(path)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if run == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No upload runs recorded")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s) bucket=%s prefix=%s: %d succeeded, %d failed, %s\n",
		run.ID,
		run.FinishedAt.Format("2006-01-02 15:04:05"),
		run.Bucket,
		run.Prefix,
		run.Succeeded,
		run.Failed,
		progress.FormatBytes(run.TotalBytes),
	)
	for _, r := range records {
		fmt.Fprintf(out, "  %s -> %s (attempts %d): %s\n", r.LocalPath, r.RemoteKey, r.Attempts, r.LastError)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
