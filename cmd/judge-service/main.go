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

	"algojudge/internal/common/cache"
	"algojudge/internal/common/db"
	commonmw "algojudge/internal/common/http/middleware"
	"algojudge/internal/common/mq"
	"algojudge/internal/common/storage"
	"algojudge/internal/judge/controller"
	"algojudge/internal/judge/repository"
	"algojudge/internal/judge/sandbox"
	"algojudge/internal/judge/sandbox/engine"
	"algojudge/internal/judge/sandbox/observer"
	"algojudge/internal/judge/sandbox/runner"
	"algojudge/internal/judge/sandbox/toolchain"
	"algojudge/internal/judge/service"
	"algojudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	sqlDB, err := db.Open(ctx, appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var repo repository.Repository = repository.NewSQLRepository(sqlDB)
	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		objStorage = minioStorage
		repo = repository.WithDataPacks(repo, repository.NewDataPackSource(appCfg.DataPack, minioStorage, redisCache))
	} else {
		logger.Warn(ctx, "minio endpoint not set, data packs and stored sources are disabled")
	}

	var mqClient *mq.KafkaQueue
	var publisher repository.StatusEventPublisher
	if appCfg.Kafka.Enabled {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = mqClient.Close()
		}()
		publisher = repository.NewMQStatusEventPublisher(mqClient, appCfg.Status.FinalTopic)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observer.NewPrometheusRecorder(registry)

	eng, err := engine.NewEngine(appCfg.Sandbox.Config, engine.StaticProfiles(appCfg.Sandbox.Profiles))
	if err != nil {
		return fmt.Errorf("init sandbox engine failed: %w", err)
	}
	resolver := &toolchain.Resolver{Root: appCfg.Sandbox.ToolchainRoot}
	jobRunner := runner.NewRunnerWithObserver(eng, resolver, appCfg.Runner, metrics)
	worker := sandbox.NewWorker(jobRunner, appCfg.languageRegistry())

	judgeSvc, err := service.NewService(service.Config{
		Executor:             worker,
		Repository:           repo,
		Status:               repository.NewStatusRepository(redisCache, appCfg.Status.TTL),
		Publisher:            publisher,
		Killer:               eng,
		Metrics:              metrics,
		Storage:              objStorage,
		SourceBucket:         appCfg.Source.Bucket,
		WorkRoot:             appCfg.Judge.WorkRoot,
		WorkerPoolSize:       appCfg.Worker.PoolSize,
		QueueWait:            appCfg.Worker.QueueWait,
		WorkerTimeout:        appCfg.Worker.Timeout,
		StoreTimeout:         appCfg.Status.Timeout,
		MaxSourceBytes:       appCfg.Judge.MaxSourceBytes,
		MaxInputBytes:        appCfg.Judge.MaxInputBytes,
		ExecuteTimeLimitMs:   appCfg.Judge.ExecuteTimeLimitMs,
		ExecuteMemoryLimitMB: appCfg.Judge.ExecuteMemoryLimitMB,
	})
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}
	worker.SetStatusReporter(judgeSvc)

	if mqClient != nil && len(appCfg.Kafka.Topics) > 0 {
		opts := appCfg.Kafka.subscribeOptions()
		for _, topic := range appCfg.Kafka.Topics {
			if err := mqClient.SubscribeWithOptions(ctx, topic, judgeSvc.HandleMessage, opts); err != nil {
				return fmt.Errorf("subscribe kafka topic %s failed: %w", topic, err)
			}
		}
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start kafka consumer failed: %w", err)
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	}

	judgeController := controller.NewJudgeController(judgeSvc, appCfg.Watch)
	httpServer := buildHTTPServer(appCfg.Server, judgeController, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController, registry *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	judgeController.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

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
