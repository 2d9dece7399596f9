package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	marginapp "github.com/wyfcoding/optionsledger/internal/margin/application"
	marginmysql "github.com/wyfcoding/optionsledger/internal/margin/infrastructure/persistence/mysql"
	marginhttp "github.com/wyfcoding/optionsledger/internal/margin/interfaces/http"
	opapp "github.com/wyfcoding/optionsledger/internal/operation/application"
	opdomain "github.com/wyfcoding/optionsledger/internal/operation/domain"
	"github.com/wyfcoding/optionsledger/internal/operation/infrastructure/messaging"
	opmysql "github.com/wyfcoding/optionsledger/internal/operation/infrastructure/persistence/mysql"
	opredis "github.com/wyfcoding/optionsledger/internal/operation/infrastructure/persistence/redis"
	ophttp "github.com/wyfcoding/optionsledger/internal/operation/interfaces/http"
	reportapp "github.com/wyfcoding/optionsledger/internal/report/application"
	reporthttp "github.com/wyfcoding/optionsledger/internal/report/interfaces/http"
	"github.com/wyfcoding/optionsledger/pkg/cache"
	"github.com/wyfcoding/optionsledger/pkg/config"
	"github.com/wyfcoding/optionsledger/pkg/db"
	"github.com/wyfcoding/optionsledger/pkg/logger"
	"github.com/wyfcoding/optionsledger/pkg/metrics"
	"github.com/wyfcoding/optionsledger/pkg/middleware"
	"github.com/wyfcoding/optionsledger/pkg/mq"
)

var configPath = flag.String("config", "configs/operations/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	ctx := context.Background()
	logger.Info(ctx, "starting service", "service", cfg.ServiceName, "environment", cfg.Environment)

	// 3. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to connect database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&opmysql.OperationModel{},
		&marginmysql.MarginAccountModel{},
		&marginmysql.MarginAdjustmentModel{},
		&messaging.OutboxMessage{},
	); err != nil {
		logger.Fatal(ctx, "failed to migrate database", "error", err)
	}

	// 4. Redis 读缓存（可选）
	var readRepo opdomain.OperationReadRepository
	if cfg.Redis.Enabled {
		redisCache, err := cache.New(cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxPoolSize: cfg.Redis.MaxPoolSize,
		})
		if err != nil {
			logger.Fatal(ctx, "failed to connect redis", "error", err)
		}
		defer redisCache.Close()
		readRepo = opredis.NewOperationRedisRepository(redisCache)
	}

	// 5. 仓储与事件发布
	operationRepo := opmysql.NewOperationRepository(database.DB)
	marginRepo := marginmysql.NewMarginRepository(database.DB)

	var eventPublisher opdomain.EventPublisher
	var relay *messaging.OutboxRelay
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "failed to create kafka producer", "error", err)
		}
		defer producer.Close()
		eventPublisher = messaging.NewOutboxEventPublisher(database.DB)
		relay = messaging.NewOutboxRelay(database.DB, producer, cfg.Kafka.Topic)
	}

	// 6. 应用服务
	marginService := marginapp.NewMarginService(marginRepo)
	lifecycleService := opapp.NewLifecycleService(operationRepo, readRepo, marginService, eventPublisher)
	queryService := opapp.NewQueryService(operationRepo, readRepo)
	reportService := reportapp.NewReportService(operationRepo)

	// 7. 指标
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("operations")
	}

	// 8. HTTP
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Logging())

	if m != nil {
		router.Use(m.Middleware())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})
	if m != nil {
		router.GET(cfg.Metrics.Path, m.Handler())
	}

	api := router.Group("/api")
	ophttp.NewOperationHandler(lifecycleService, queryService, m).RegisterRoutes(api)
	marginhttp.NewMarginHandler(marginService).RegisterRoutes(api)
	reporthttp.NewReportHandler(reportService, m).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 9. 启动与优雅退出
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info(gCtx, "http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gCtx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "service exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "service stopped")
}
