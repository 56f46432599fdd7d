package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creadable/ingestor/internal/pipeline"
	"github.com/creadable/ingestor/pkg/alert"
	"github.com/creadable/ingestor/pkg/config"
	"github.com/creadable/ingestor/pkg/loader"
	"github.com/creadable/ingestor/pkg/logger"
	"github.com/creadable/ingestor/pkg/output"
	"github.com/creadable/ingestor/pkg/retry"
	"github.com/creadable/ingestor/pkg/sftpclient"
	"github.com/creadable/ingestor/pkg/transform"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "ingestor",
		Short: "Ingestor - SFTP customer ingestion pipeline",
		Long: `Ingestor downloads customer record files from an SFTP endpoint, normalizes
heterogeneous CSV/JSON schemas into a canonical shape, and loads them
idempotently into PostgreSQL. It is a batch job: one run per invocation.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Ingestor v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var fileName, configFile string
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion pass",
		Long: `Run one ingestion pass against the configured SFTP endpoint. By default
the full remote listing is ingested; --file scopes the run to one remote file.

Configuration comes from the environment (see --help of the root command),
optionally overridden by a YAML file passed with --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestion(fileName, configFile, timeout)
		},
	}
	runCmd.Flags().StringVarP(&fileName, "file", "f", "", "Name of a single remote file to ingest instead of the full listing")
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file (optional)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Run timeout")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIngestion(fileName, configFile string, timeout time.Duration) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.ConnString())
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	defer pool.Close()

	sink := alert.NewLogSink(log.Named("alerts"))
	policy := retry.NewPolicy(cfg.Retry.Attempts, cfg.Retry.BaseDelay)
	client := sftpclient.New(cfg.SFTP, policy, log.Named("sftp"))
	transformer := transform.NewTransformer(log.Named("transform"))
	dbLoader := loader.New(pool, log.Named("loader"))
	writer := output.NewWriter(cfg.Dirs.Transformed, log.Named("output"))

	if err := dbLoader.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	run := pipeline.New(client, transformer, dbLoader, writer, sink, log.Named("pipeline"), cfg.Dirs.Download)
	result := run.Run(ctx, fileName)

	for _, fr := range result.Files {
		log.Info("file result",
			zap.String("file", fr.Name),
			zap.String("status", string(fr.Status)),
			zap.Int64("records_loaded", fr.RecordsLoaded))
	}

	// Only total failure (connection or listing never succeeded) is a hard
	// failure for the process; partial success exits cleanly.
	if result.Status == pipeline.StatusFailed {
		return fmt.Errorf("ingestion run failed: %w", result.Err)
	}
	return nil
}
