package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"cabpool/internal/app"
	"cabpool/internal/config"
	"cabpool/internal/handler"
	"cabpool/internal/logging"
	"cabpool/internal/middleware"
	"cabpool/internal/notify"
	internalRedis "cabpool/internal/redis"
	"cabpool/internal/repository"
	"cabpool/internal/repository/memory"
	"cabpool/internal/repository/postgres"
	"cabpool/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic comes first so the database and Redis clients can be
	// instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)

	repos, closeRepos, err := openRepositories(ctx, cfg, redisClient, nrApp, logger)
	if err != nil {
		return err
	}
	defer closeRepos()

	hub := notify.NewHub(logger)
	notifiers := notify.Multi{notify.NewLogNotifier(logger), hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, logger)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
		logger.Info("kafka notifications enabled", "topic", cfg.Kafka.NotifyTopic)
	}
	// Closed before the Kafka writer so queued notifications still flush.
	queue := notify.NewQueue(notifiers, cfg.Notify.QueueSize, cfg.Notify.Workers, logger)
	defer queue.Close()

	server := wireServer(cfg, repos, redisClient, hub, queue, nrApp, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

type repositories struct {
	pools  repository.PoolRequestRepository
	groups repository.GroupRepository
	users  repository.UserRepository
}

// openRepositories selects the store by STORE_DRIVER. The memory store is
// for local runs and demos; it still shares Redis for sessions and chat.
func openRepositories(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	logger *slog.Logger,
) (repositories, func(), error) {
	if cfg.Database.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore()
		return repositories{
			pools:  memory.NewPoolRequestRepository(store),
			groups: memory.NewGroupRepository(store),
			users:  memory.NewUserRepository(store),
		}, func() {}, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return repositories{}, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return repositories{}, nil, err
	}
	logger.Info("connected to postgres", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	index := internalRedis.NewLocationStore(redisClient)
	return repositories{
		pools:  postgres.NewPoolRequestRepository(db, index),
		groups: postgres.NewGroupRepository(db, index),
		users:  postgres.NewUserRepository(db),
	}, func() { closeDB(db, logger) }, nil
}

func closeDB(db *sqlx.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", "error", err)
	}
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	cfg *config.Config,
	repos repositories,
	redisClient *redis.Client,
	hub *notify.Hub,
	notifier notify.Notifier,
	nrApp *newrelic.Application,
	logger *slog.Logger,
) *http.Server {
	sessions := internalRedis.NewSessionStore(redisClient)
	chat := internalRedis.NewChatStore(redisClient)
	userCache := internalRedis.NewCacheStore(redisClient)

	matchingService := service.NewMatchingService(
		repos.pools,
		repos.groups,
		repos.users,
		userCache,
		service.MatchConfig{
			RadiusKm:      cfg.Match.RadiusKm,
			TimeWindow:    cfg.Match.TimeWindow,
			PoolMinScore:  cfg.Match.PoolMinScore,
			GroupMinScore: cfg.Match.GroupMinScore,
		},
		logger,
	)
	poolService := service.NewPoolService(repos.pools, notifier, logger)
	groupService := service.NewGroupService(repos.groups, notifier, chat, logger)

	router := app.NewRouter(app.RouterDeps{
		PoolHandler:   handler.NewPoolHandler(poolService, matchingService),
		GroupHandler:  handler.NewGroupHandler(groupService, matchingService),
		UserHandler:   handler.NewUserHandler(repos.users),
		WSHandler:     handler.NewWSHandler(hub),
		Sessions:      middleware.NewRedisSessions(sessions),
		ResponseCache: middleware.NewRedisResponseCache(redisClient),
		NewRelicApp:   nrApp,
		Logger:        logger,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
