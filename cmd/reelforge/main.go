// ReelForge server: runs the discovery sentinel, the transformation
// workers, the publish schedulers and the operational HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reelforge/reelforge/pkg/api"
	"github.com/reelforge/reelforge/pkg/audit"
	"github.com/reelforge/reelforge/pkg/autopilot"
	"github.com/reelforge/reelforge/pkg/cache"
	"github.com/reelforge/reelforge/pkg/config"
	"github.com/reelforge/reelforge/pkg/database"
	"github.com/reelforge/reelforge/pkg/discovery"
	"github.com/reelforge/reelforge/pkg/events"
	"github.com/reelforge/reelforge/pkg/executors"
	"github.com/reelforge/reelforge/pkg/llm"
	"github.com/reelforge/reelforge/pkg/media"
	"github.com/reelforge/reelforge/pkg/media/ffmpeg"
	"github.com/reelforge/reelforge/pkg/media/ocr"
	"github.com/reelforge/reelforge/pkg/media/pexels"
	"github.com/reelforge/reelforge/pkg/media/whisper"
	"github.com/reelforge/reelforge/pkg/media/ytdlp"
	"github.com/reelforge/reelforge/pkg/pipeline"
	"github.com/reelforge/reelforge/pkg/publisher"
	"github.com/reelforge/reelforge/pkg/queue"
	"github.com/reelforge/reelforge/pkg/scanner"
	"github.com/reelforge/reelforge/pkg/scheduler"
	"github.com/reelforge/reelforge/pkg/services"
	"github.com/reelforge/reelforge/pkg/storage"
	"github.com/reelforge/reelforge/pkg/strategy"
	"github.com/reelforge/reelforge/pkg/token"
	"github.com/reelforge/reelforge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting ReelForge",
		"version", version.Version,
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Redis cache
	kv, err := cache.NewRedisCache(cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = kv.Close() }()

	// 4. LLM client (nil when unconfigured; ranking and planning degrade)
	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	var client llm.Client
	var ranker *discovery.Ranker
	if llmClient != nil {
		client = llmClient
		ranker = discovery.NewRanker(client)
	}

	// 5. Domain services
	eventPublisher := events.NewPublisher(dbClient.DB())
	jobService := services.NewJobService(dbClient.Pool, eventPublisher)
	candidateService := services.NewCandidateService(dbClient.Pool)
	nicheService := services.NewNicheService(dbClient.Pool)
	postService := services.NewPostService(dbClient.Pool)
	slog.Info("Services initialized")

	// 6. Token store with per-platform OAuth refresh
	endpoints := make(map[string]token.Endpoint, len(cfg.Publish.Platforms))
	for platform, pc := range cfg.Publish.Platforms {
		endpoints[platform] = token.Endpoint{
			URL:          pc.TokenURL,
			ClientID:     os.Getenv(pc.ClientIDEnv),
			ClientSecret: os.Getenv(pc.ClientSecretEnv),
		}
	}
	tokenService := token.NewService(dbClient.Pool, token.NewOAuthRefresher(endpoints))

	// 7. Discovery
	scanners := scanner.NewRegistry()
	for _, feed := range cfg.Discovery.Feeds {
		if err := scanners.Register(scanner.NewHTTPFeed(
			feed.Platform, feed.URL, os.Getenv(feed.APIKeyEnv), cfg.Discovery.AdapterTimeout)); err != nil {
			slog.Error("Failed to register scanner", "platform", feed.Platform, "error", err)
			os.Exit(1)
		}
	}
	aggregator := discovery.NewAggregator(cfg.Discovery, scanners, candidateService, kv, ranker)

	// 8. Media stack and pipeline
	engine := ffmpeg.New()
	var transcriber media.Transcriber
	if cfg.Pipeline.WhisperModel != "" {
		transcriber = whisper.New(cfg.Pipeline.WhisperModel)
	}
	var stock media.StockProvider
	if cfg.Pipeline.PexelsAPIKeyEnv != "" {
		if c := pexels.New(os.Getenv(cfg.Pipeline.PexelsAPIKeyEnv)); c != nil {
			stock = c
		}
	}
	var frames media.FrameScanner
	if cfg.Pipeline.OCRBin != "" && cfg.Pipeline.OCRBin != "off" {
		frames = ocr.New(cfg.Pipeline.OCRBin)
	}
	pipe := pipeline.New(cfg.Pipeline, engine, transcriber, frames, stock)
	planner := strategy.NewPlanner(client)

	// 9. Object store and lifecycle (optional)
	var objectStore storage.ObjectStore
	lifecycle := (*storage.Lifecycle)(nil)
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			slog.Error("Failed to initialize object store", "error", err)
			os.Exit(1)
		}
		objectStore = s3Store
		lifecycle = storage.NewLifecycle(cfg.System.OutputsDir, s3Store, s3Store.Bucket(), dbClient.Pool, cfg.Storage)
	}
	resolver := storage.NewResolver(objectStore, cfg.System.PublicBaseURL, cfg.Storage)

	// 10. Publishers
	pubs := make([]publisher.Publisher, 0, len(cfg.Publish.Platforms))
	for platform, pc := range cfg.Publish.Platforms {
		switch pc.Protocol {
		case "resumable":
			pubs = append(pubs, publisher.NewResumableUploader(
				platform, pc.InitURL, pc.PostURLBase, nil, tokenService, cfg.Publish))
		default:
			pubs = append(pubs, publisher.NewChunkedUploader(
				platform, pc.InitURL, nil, tokenService, cfg.Publish))
		}
	}
	publishers := publisher.NewRegistry(pubs...)

	// 11. Executors and worker pool
	publishExecutor := executors.NewPublishExecutor(publishers, resolver, cfg.System.OutputsDir)
	auditor := audit.New(dbClient.Pool, kv)
	executorList := []queue.Executor{
		executors.NewDiscoveryExecutor(aggregator, nicheService, ""),
		executors.NewTransformExecutor(candidateService, ytdlp.New(), transcriber, planner, pipe, cfg.System.OutputsDir),
		publishExecutor,
		executors.NewAuditExecutor(auditor),
	}
	if lifecycle != nil {
		executorList = append(executorList, executors.NewStorageExecutor(lifecycle))
	}
	registry := queue.NewExecutorRegistry(executorList...)
	workerPool := queue.NewPool(dbClient.Pool, jobService, registry, cfg.Queue)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	// 12. Event listener + autopilot chain
	listener := events.NewListener(dbClient.DSN())
	var autopilotRunner scheduler.AutopilotRunner
	if cfg.System.Autopilot {
		controller := autopilot.New(cfg.Autopilot, aggregator, jobService, candidateService)
		listener.Subscribe(controller.Subscriber(ctx))
		autopilotRunner = controller
		slog.Info("Autopilot enabled", "platform", cfg.Autopilot.Platform)
	}
	listener.Start(ctx)
	defer listener.Stop()

	// 13. Scheduler
	tasks := []scheduler.Task{
		scheduler.NicheSweep(cfg.Scheduler, nicheService, jobService, autopilotRunner),
		scheduler.PostSweep(cfg.Scheduler, postService, publishExecutor),
		scheduler.AuditSweep(cfg.Scheduler, jobService),
	}
	if lifecycle != nil {
		tasks = append(tasks, scheduler.StorageSweep(cfg.Scheduler, jobService))
	}
	sched := scheduler.New(tasks...)
	sched.Start(ctx)
	defer sched.Stop()

	// 14. HTTP API
	httpServer := api.NewServer(dbClient, kv, jobService, nicheService,
		candidateService, postService, aggregator, workerPool, auditor)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("ReelForge started",
		"pod_id", workerPool.PodID(),
		"workers", cfg.Queue.WorkerCount,
		"autopilot", cfg.System.Autopilot)

	// 15. Wait for shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("ReelForge stopped")
}
