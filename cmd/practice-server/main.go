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

	"codepractice/internal/common/cache"
	"codepractice/internal/common/db"
	commonmw "codepractice/internal/common/http/middleware"
	"codepractice/internal/common/mq"
	"codepractice/internal/common/storage"
	evalcontroller "codepractice/internal/evaluator/controller"
	"codepractice/internal/evaluator/language"
	evalservice "codepractice/internal/evaluator/service"
	problemcontroller "codepractice/internal/problem/controller"
	problemrepo "codepractice/internal/problem/repository"
	problemservice "codepractice/internal/problem/service"
	"codepractice/internal/sandbox/engine"
	"codepractice/internal/sandbox/security"
	statscontroller "codepractice/internal/stats/controller"
	statsservice "codepractice/internal/stats/service"
	subcontroller "codepractice/internal/submission/controller"
	subrepo "codepractice/internal/submission/repository"
	subservice "codepractice/internal/submission/service"
	"codepractice/pkg/utils/logger"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConfigPath = "configs/practice-server.yaml"
	healthTimeout     = 2 * time.Second
)

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
		logger.Error(context.Background(), "practice server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.NewSQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := newMessageQueue(appCfg.MQ)
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	var archive storage.ObjectStorage
	if appCfg.Submission.ArchiveEnabled {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, appCfg.Submission.Timeouts.Storage)
		err = minioStorage.EnsureBucket(bucketCtx, appCfg.Submission.ArchiveBucket)
		cancel()
		if err != nil {
			return fmt.Errorf("ensure archive bucket: %w", err)
		}
		archive = minioStorage
	}

	resolver := security.NewStaticResolver(appCfg.Sandbox.Profiles, appCfg.Sandbox.DefaultProfile)
	sandbox, err := engine.New(appCfg.Sandbox.Config, resolver)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	adapter, err := language.NewAdapter(sandbox, language.NewRegistry(appCfg.Languages), appCfg.Runtime)
	if err != nil {
		return fmt.Errorf("init language adapter: %w", err)
	}

	problemRepo := problemrepo.NewProblemRepositoryWithTTL(database, redisCache, appCfg.Problem.CacheTTL, appCfg.Problem.CacheEmptyTTL)
	problemService := problemservice.NewProblemService(problemRepo, appCfg.Problem.DBTimeout)
	evaluator := evalservice.NewEvaluator(problemService, adapter, appCfg.Evaluator)

	submissionRepo := subrepo.NewSubmissionRepositoryWithTTL(database, redisCache, appCfg.Submission.ListCacheTTL, appCfg.Submission.ListCacheEmptyTTL)
	recorderCfg := subservice.Config{
		Repo:           submissionRepo,
		Evaluator:      evaluator,
		Cache:          redisCache,
		Storage:        archive,
		MQ:             mqClient,
		ArchiveBucket:  appCfg.Submission.ArchiveBucket,
		ArchivePrefix:  appCfg.Submission.ArchivePrefix,
		Topic:          appCfg.MQ.Topic,
		MaxCodeBytes:   appCfg.Submission.MaxCodeBytes,
		IdempotencyTTL: appCfg.Submission.IdempotencyTTL,
		RateLimit:      appCfg.Submission.RateLimit,
		Timeouts:       appCfg.Submission.Timeouts,
	}
	recorder, err := subservice.NewRecorder(recorderCfg)
	if err != nil {
		return fmt.Errorf("init submission recorder: %w", err)
	}
	defer func() {
		_ = recorder.Close()
	}()

	statsService := statsservice.NewStatsService(redisCache)
	if appCfg.Stats.Enabled {
		consumer := statsservice.NewStatsConsumer(mqClient, redisCache, appCfg.Stats.EventTTL)
		consumerOpts := appCfg.MQ.Consumer
		consumerOpts.SetDefaults()
		if err := consumer.Subscribe(ctx, appCfg.MQ.Topic, &consumerOpts); err != nil {
			return fmt.Errorf("subscribe stats consumer: %w", err)
		}
	}

	httpServer := buildHTTPServer(appCfg, handlers{
		evaluator:  evalcontroller.NewEvaluatorController(evaluator, commonmw.OriginChecker(appCfg.CORS)),
		problem:    problemcontroller.NewProblemController(problemService),
		submission: subcontroller.NewSubmissionController(recorder),
		stats:      statscontroller.NewStatsController(statsService),
		health:     healthHandler(database, redisCache, mqClient),
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		logger.Info(ctx, "practice http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("sandbox_mode", appCfg.Sandbox.Mode),
			zap.String("mq_driver", appCfg.MQ.Driver),
		)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start message queue consumers: %w", err)
		}
		<-gctx.Done()
		return mqClient.Stop()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down")
		shutdown, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdown)
	})
	return g.Wait()
}

func newMessageQueue(cfg MQConfig) (mq.MessageQueue, error) {
	switch cfg.Driver {
	case mqDriverKafka:
		return mq.NewKafkaQueue(cfg.Kafka)
	case mqDriverNATS:
		return mq.NewNATSQueue(cfg.NATS)
	default:
		return mq.NewMemoryQueue(), nil
	}
}

type handlers struct {
	evaluator  *evalcontroller.EvaluatorController
	problem    *problemcontroller.ProblemController
	submission *subcontroller.SubmissionController
	stats      *statscontroller.StatsController
	health     gin.HandlerFunc
}

func buildHTTPServer(cfg *AppConfig, h handlers) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogMiddleware())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(commonmw.IdentityMiddleware(commonmw.NewIdentityResolver(cfg.Identity)))

	router.GET("/healthz", h.health)

	router.POST("/run-tests", h.evaluator.RunTests)
	router.POST("/run/test", h.evaluator.RunTests)
	router.GET("/ws/run-tests", h.evaluator.StreamRunTests)
	router.GET("/problems/:id", h.problem.Get)

	authed := router.Group("", commonmw.RequireIdentity())
	authed.POST("/submissions", h.submission.Create)
	authed.GET("/submissions/:problemId", h.submission.List)
	authed.GET("/submissions/:problemId/:submissionId/transcript", h.submission.Transcript)
	authed.GET("/profile/stats", h.stats.Get)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(deps ...pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		for _, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn(ctx, "health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		response.Success(c, gin.H{"status": "ok"})
	}
}
