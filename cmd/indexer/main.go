package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aite550659-max/agent-trust-protocol/internal/common"
	"github.com/aite550659-max/agent-trust-protocol/internal/config"
	"github.com/aite550659-max/agent-trust-protocol/internal/db"
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/metrics"
	"github.com/aite550659-max/agent-trust-protocol/internal/migrations"
	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
	"github.com/aite550659-max/agent-trust-protocol/internal/projection"
	"github.com/aite550659-max/agent-trust-protocol/internal/store"
	"github.com/aite550659-max/agent-trust-protocol/internal/stream"
	"github.com/aite550659-max/agent-trust-protocol/internal/supervisor"
	"github.com/aite550659-max/agent-trust-protocol/pkg/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Agent Trust Protocol topic indexer",
	Long: `Indexes consensus-ordered topic messages from a mirror node: historical
backfill over REST, live tailing over the push stream, classification of
agent events, and projection into a queryable Postgres schema.`,
	Version: version,
	RunE:    runIndexer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (env-only when omitted)")
}

func runIndexer(cmd *cobra.Command, args []string) error {
	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	// Initialize logger
	log := logger.NewComponentLoggerFromConfig(common.ComponentManager, cfg.Logging)

	// Initialize database
	log.Info("Connecting to database...")
	database, err := db.NewPostgresDBFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	dbLog := logger.NewComponentLoggerFromConfig(common.ComponentDB, cfg.Logging)
	if err := migrations.RunMigrations(dbLog, database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize metrics server if enabled
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	// Assemble the ingestion engine
	mirrorClient := mirror.NewClient(
		cfg.Ingestion.MirrorBaseURL,
		logger.NewComponentLoggerFromConfig(common.ComponentMirrorClient, cfg.Logging),
		mirror.WithPageLimit(cfg.Ingestion.PageLimit),
		mirror.WithRequestTimeout(cfg.Ingestion.RequestTimeout.Duration),
	)

	subscriber := supervisor.NewStreamSubscriber(stream.NewSubscriber(
		cfg.Ingestion.StreamBaseURL,
		cfg.Ingestion.Network,
		logger.NewComponentLoggerFromConfig(common.ComponentSubscriber, cfg.Logging),
	))

	writer := projection.NewWriter(
		database,
		logger.NewComponentLoggerFromConfig(common.ComponentProjection, cfg.Logging),
	)

	manager := supervisor.NewManager(
		mirrorClient,
		subscriber,
		writer,
		cfg.Ingestion,
		logger.NewComponentLoggerFromConfig(common.ComponentSupervisor, cfg.Logging),
	)

	g, gctx := errgroup.WithContext(ctx)

	// Start the read API if enabled
	if cfg.API != nil && cfg.API.Enabled {
		readStore := store.New(
			database,
			logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging),
		)
		apiServer := api.NewServer(
			cfg.API,
			readStore,
			manager,
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging),
		)
		g.Go(func() error {
			return apiServer.Start(gctx)
		})
	}

	// Start ingesting
	log.Infow("Starting ingestion", "topics", cfg.Ingestion.Topics, "network", cfg.Ingestion.Network)
	if err := manager.Start(gctx); err != nil {
		return fmt.Errorf("failed to start ingestion manager: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		manager.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Indexer stopped")

	return nil
}
