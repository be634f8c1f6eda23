// Package main implements the entry point for the opsgraph service.
// opsgraph ingests operational events into a knowledge graph and serves
// snapshot, query, and copilot APIs over it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/opsgraph/config"
	"github.com/c360/opsgraph/copilot"
	gateway "github.com/c360/opsgraph/gateway/http"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/ingest"
	"github.com/c360/opsgraph/metric"
	"github.com/c360/opsgraph/natsclient"
	"github.com/c360/opsgraph/snapshot"
)

const (
	appName = "opsgraph"
	version = "0.1.0"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	logFormat := flag.String("log-format", "json", "log output format (json or text)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, *logFormat)
	slog.SetDefault(logger)
	logger.Info("starting opsgraph", "version", version, "config_path", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()

	// Graph store
	store, err := graphstore.NewClient(cfg.Neo4j, logger)
	if err != nil {
		return fmt.Errorf("create graph store: %w", err)
	}
	defer store.Close(context.Background())

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.VerifyConnectivity(verifyCtx); err != nil {
		return fmt.Errorf("verify graph store: %w", err)
	}
	logger.Info("graph store connected", "uri", cfg.Neo4j.URI)

	// NATS and ingestion
	natsClient := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger),
		natsclient.WithStateChangeHook(func(connected bool) {
			if connected {
				registry.Metrics.NATSConnected.Set(1)
			} else {
				registry.Metrics.NATSConnected.Set(0)
			}
		}),
	)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer natsClient.Close(context.Background())

	consumer, err := ingest.NewConsumer(cfg.Ingest, ingest.Deps{
		NATS:    natsClient,
		Store:   store,
		Logger:  logger,
		Metrics: registry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create ingestion consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	// Copilot and snapshot services
	var completer copilot.Completer
	if cfg.OpenAI.APIKey != "" {
		completer = copilot.NewOpenAICompleter(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		logger.Info("language model enabled", "model", cfg.OpenAI.Model)
	} else {
		logger.Warn("no OpenAI API key configured, copilot runs template-only")
	}

	orchestrator, err := copilot.NewOrchestrator(copilot.Deps{
		Store:      store,
		Generator:  copilot.NewGenerator(completer),
		Summarizer: copilot.NewSummarizer(completer),
		Logger:     logger,
		Metrics:    registry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create copilot: %w", err)
	}

	aggregator := snapshot.NewAggregator(snapshot.Deps{
		Store:  store,
		Logger: logger,
	})

	server, err := gateway.NewServer(cfg.Gateway, gateway.Deps{
		Snapshot: aggregator,
		Copilot:  orchestrator,
		Store:    store,
		Registry: registry,
		Metrics:  registry.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create HTTP gateway: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := consumer.Stop(); err != nil {
			logger.Warn("ingestion stop failed", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("opsgraph shutdown complete")
	return nil
}

// setupLogger builds the process logger from the configured level and format
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
