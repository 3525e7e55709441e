package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conqueroj/internal/common/cache"
	"conqueroj/internal/common/db"
	commonmw "conqueroj/internal/common/http/middleware"
	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	"conqueroj/internal/judge/controller"
	"conqueroj/internal/judge/repository"
	"conqueroj/internal/judge/sandbox/runner"
	"conqueroj/internal/judge/sandbox/session"
	"conqueroj/internal/judge/service"
	"conqueroj/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, err := db.Open(appCfg.Database.Driver, &appCfg.Database.MySQL, &appCfg.Database.PostgreSQL)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	// Queue connectivity is mandatory. NewKafkaQueue retries with a fixed
	// delay and gives up after the configured attempts.
	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	dockerClient, err := session.NewClient()
	if err != nil {
		logger.Error(context.Background(), "init docker client failed", zap.Error(err))
		return
	}

	registry, err := buildRegistry(appCfg.Language)
	if err != nil {
		logger.Error(context.Background(), "init language registry failed", zap.Error(err))
		return
	}

	jobRunner := runner.NewDockerRunner(dockerClient, registry, appCfg.Sandbox)
	submissionRepo := repository.NewSubmissionRepository(database, appCfg.Database.Driver)
	statusCache := repository.NewStatusCacheRepository(redisCache, appCfg.Judge.StatusTTL)
	leaderboard := repository.NewLeaderboardRepository(redisCache)

	judgeSvc := service.NewJudgeService(submissionRepo, objStorage, appCfg.MinIO.Bucket, jobRunner, service.Options{
		StatusCache: statusCache,
		Leaderboard: leaderboard,
		Locker:      redisCache,
		TaskTimeout: appCfg.Judge.TaskTimeout,
	})

	err = mqClient.Subscribe(context.Background(), appCfg.Kafka.Topic, judgeSvc.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
		MaxRetries:      appCfg.Kafka.MaxRetries,
		RetryDelay:      appCfg.Kafka.RetryDelay,
		DeadLetterTopic: appCfg.Kafka.DeadLetterTopic,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe kafka failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	statusService := service.NewStatusService(submissionRepo, statusCache)
	httpServer := buildHTTPServer(appCfg.Server, statusService, leaderboard)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge worker started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("topic", appCfg.Kafka.Topic))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	_ = mqClient.Stop()
}

func buildHTTPServer(cfg ServerConfig, statusService *service.StatusService, leaderboard *repository.LeaderboardRepository) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1/judge")
	judgeController := controller.NewJudgeController(statusService, leaderboard)
	api.GET("/submissions/:id", judgeController.GetStatus)
	api.GET("/leaderboard", judgeController.GetLeaderboard)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
