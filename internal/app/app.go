package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/broadcast"
	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/enrich"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/redis"
	"github.com/MrSnakeDoc/linkvault/internal/scheduler"
	"github.com/MrSnakeDoc/linkvault/internal/service"
	"github.com/MrSnakeDoc/linkvault/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/linkvault/internal/store/redis"
	"github.com/MrSnakeDoc/linkvault/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	pool        *pgxpool.Pool
	redisClient *goredis.Client
	notifier    *broadcast.Notifier
	replayer    *scheduler.OutboxReplayer
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	ctx := context.Background()

	// Postgres first: without it nothing can be saved.
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, cfg.DatabaseURL, loggerClient); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	pool, err := postgres.Open(ctx, postgres.Options{
		DSN:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(ctx, redis.ConnectOptions{
		URL:            cfg.RedisURL,
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)

	// Enrichment: an unusable provider degrades to the rule tagger alone.
	tagger := enrich.DefaultTagger()
	if cfg.TagRulesFile != "" {
		t, err := enrich.LoadRules(cfg.TagRulesFile)
		if err != nil {
			loggerClient.Warn("failed to load tag rules, using built-in rules",
				logger.String("file", cfg.TagRulesFile),
				logger.Error(err))
		} else {
			tagger = t
		}
	}
	completer, err := enrich.NewCompleter(ctx, cfg.AIProvider, cfg.AIAPIKey, cfg.AIModel, cfg.AIMaxTokens)
	if err != nil {
		loggerClient.Warn("enrichment provider unavailable, fallback tagging only",
			logger.String("provider", cfg.AIProvider),
			logger.Error(err))
		completer = nil
	}
	enricher := enrich.NewService(completer, tagger, cfg.AITimeout, loggerClient)

	// Fan-out: publisher stamps per-owner sequence numbers, the notifier
	// delivers asynchronously and dead-letters what it cannot publish.
	publisher := broadcast.NewRedisPublisher(redisClient, store)
	notifier := broadcast.NewNotifier(publisher, store, store, broadcast.NotifierOptions{
		QueueSize:      cfg.NotifierQueueSize,
		MaxAttempts:    cfg.NotifierMaxAttempts,
		RetryBackoff:   cfg.NotifierRetryBackoff,
		PublishTimeout: cfg.PublishTimeout,
	}, loggerClient)

	// Create manual replay trigger channel
	replayTrigger := make(chan struct{}, 1)
	replayer := scheduler.NewOutboxReplayer(
		store,
		publisher,
		loggerClient,
		cfg.ReplayInterval,
		cfg.ReplayBatch,
		replayTrigger,
	)

	bookmarks := service.NewBookmarkService(
		postgres.NewBookmarkRepo(pool),
		enricher,
		notifier,
		store,
		service.Options{TagCacheTTL: cfg.TagCacheTTL},
		loggerClient,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		CORSOrigins:     cfg.CORSOrigins,
		Bookmarks:       bookmarks,
		Verifier:        auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		Events:          broadcast.NewSubscriber(redisClient, loggerClient),
		Postgres:        pool,
		Redis:           store,
		Outbox:          notifier,
		DeadLetters:     store,
		Replay:          replayer,
		AIProvider:      cfg.AIProvider,
		RequestTimeout:  cfg.RequestTimeout,
		StreamHeartbeat: cfg.StreamHeartbeat,
		AddBurst:        cfg.AddBurst,
		AddRatePerMin:   cfg.AddRatePerMin,
		ReplayTrigger:   replayTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		pool:        pool,
		redisClient: redisClient,
		notifier:    notifier,
		replayer:    replayer,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting linkvault v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("linkvault %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.notifier.Start(ctx)
	a.logger.Info("outbox notifier started",
		logger.Int("queue_size", a.cfg.NotifierQueueSize),
		logger.Int("max_attempts", a.cfg.NotifierMaxAttempts))

	a.replayer.Start(ctx)
	a.logger.Info("outbox replayer started",
		logger.Duration("interval", a.cfg.ReplayInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	// Handlers are gone; flush what they queued before redis goes away.
	a.replayer.Stop()
	a.notifier.Stop()

	if err := a.redisClient.Close(); err != nil {
		a.logger.Warnf("failed to close redis: %v", err)
	} else {
		a.logger.Info("✅ Redis closed cleanly")
	}
	a.pool.Close()
	a.logger.Info("✅ Postgres pool closed")

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ linkvault stopped cleanly")
	return nil
}
