package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vinsen2024/lead-funnel-back/internal/cache"
	"github.com/Vinsen2024/lead-funnel-back/internal/config"
	httpserver "github.com/Vinsen2024/lead-funnel-back/internal/http"
	"github.com/Vinsen2024/lead-funnel-back/internal/http/handlers"
	"github.com/Vinsen2024/lead-funnel-back/internal/llm"
	"github.com/Vinsen2024/lead-funnel-back/internal/queue"
	"github.com/Vinsen2024/lead-funnel-back/internal/report"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/Vinsen2024/lead-funnel-back/internal/service"
	"github.com/Vinsen2024/lead-funnel-back/internal/storage"
	"github.com/Vinsen2024/lead-funnel-back/internal/wechat"
	"github.com/Vinsen2024/lead-funnel-back/internal/worker"
)

type repositories struct {
	shares   repository.SharesRepository
	bindings repository.BindingsRepository
	leads    repository.LeadsRepository
	jobs     repository.ExportJobsRepository
	catalog  repository.CatalogRepository
}

func main() {
	logger := log.New(os.Stdout, "[lead-funnel] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	store := storage.NewMemoryStore(cfg.SignedURLBase)

	generator := setupGenerator(cfg, logger)
	summaryCache := cache.NewSummaryCache(cache.Config{
		TTL:        time.Duration(cfg.SummaryCacheTTLSeconds) * time.Second,
		MaxEntries: cfg.SummaryCacheMaxEntries,
	})

	var notifier service.LeadNotifier
	if cfg.WxAppID != "" && cfg.WxAppSecret != "" {
		tokens := wechat.NewTokenSource(cfg.WxAppID, cfg.WxAppSecret, cfg.WxAPIBaseURL, nil)
		notifier = wechat.NewNotifier(tokens, repos.catalog, wechat.NotifierConfig{
			BaseURL:           cfg.WxAPIBaseURL,
			NewLeadTemplateID: cfg.WxNewLeadTemplateID,
			MiniProgramState:  cfg.WxMiniProgramState,
		}, logger)
		logger.Printf("wechat notifier enabled")
	} else {
		logger.Printf("wechat credentials not configured, notifications disabled")
	}

	attributionService := service.NewAttributionService(repos.shares, repos.bindings, repos.catalog, logger)
	sharesService := service.NewSharesService(repos.shares, repos.catalog, logger)
	leadsService := service.NewLeadsService(repos.leads, repos.catalog, generator, summaryCache, notifier, logger)
	exportsService := service.NewExportsService(repos.jobs, repos.leads, producer, store, logger)
	teachersService := service.NewTeachersService(repos.catalog)

	api := handlers.NewAPI(attributionService, sharesService, leadsService, exportsService, teachersService)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		renderer := report.NewRenderer()
		processor := worker.NewProcessor(
			consumer,
			repos.jobs,
			repos.leads,
			repos.catalog,
			store,
			renderer,
			worker.Config{
				Concurrency: cfg.WorkerConcurrency,
				JobTimeout:  time.Duration(cfg.JobTimeoutSeconds) * time.Second,
			},
			logger,
		)
		go processor.Start(ctx)
		logger.Printf("export worker started concurrency=%d", cfg.WorkerConcurrency)
	} else {
		logger.Printf("export worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repositories, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		return memoryRepositories(), func() {}
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return memoryRepositories(), func() {}
	}
	logger.Printf("postgres repositories initialized")
	return postgresRepositories(pool), pool.Close
}

func memoryRepositories() repositories {
	return repositories{
		shares:   repository.NewMemorySharesRepository(),
		bindings: repository.NewMemoryBindingsRepository(),
		leads:    repository.NewMemoryLeadsRepository(),
		jobs:     repository.NewMemoryExportJobsRepository(),
		catalog:  repository.NewMemoryCatalogRepository(),
	}
}

func postgresRepositories(pool *pgxpool.Pool) repositories {
	return repositories{
		shares:   repository.NewPostgresSharesRepository(pool),
		bindings: repository.NewPostgresBindingsRepository(pool),
		leads:    repository.NewPostgresLeadsRepository(pool),
		jobs:     repository.NewPostgresExportJobsRepository(pool),
		catalog:  repository.NewPostgresCatalogRepository(pool),
	}
}

func setupGenerator(cfg config.Config, logger *log.Logger) llm.Generator {
	if cfg.LLMAPIKey == "" {
		logger.Printf("LLM_API_KEY not configured, using static summaries")
		return llm.StaticGenerator{}
	}
	return llm.NewClient(llm.ClientConfig{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		Model:      cfg.LLMModel,
		Timeout:    time.Duration(cfg.LLMTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.LLMMaxRetries,
	}, logger)
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	backoffBase := time.Duration(cfg.QueueBackoffBaseMS) * time.Millisecond

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, backoffBase, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: cfg.QueueMaxAttempts,
		BackoffBase: backoffBase,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, backoffBase, logger)
		return local, local, func() {}
	}

	logger.Printf("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}
