package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"smartcs/internal/adapter"
	"smartcs/internal/biz"
	"smartcs/internal/conf"
	"smartcs/internal/data"
	"smartcs/internal/server"
	"smartcs/internal/service"
	"smartcs/pkg/monitoring"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var configFile = flag.String("config", "", "配置文件路径")

func main() {
	flag.Parse()

	// 加载配置
	config, err := conf.Load(*configFile)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zlog, err := initLogger(config.Observability)
	if err != nil {
		stdlog.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting Model Gateway",
		zap.String("version", config.Observability.ServiceVersion),
		zap.String("environment", config.Observability.Environment),
	)

	logger := log.With(log.NewStdLogger(os.Stdout),
		"service", config.Observability.ServiceName,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
	)

	// 数据层
	db, err := data.NewDB(&config.Database)
	if err != nil {
		zlog.Fatal("Failed to connect database", zap.Error(err))
	}
	rdb, err := data.NewRedis(&config.Redis)
	if err != nil {
		zlog.Fatal("Failed to connect redis", zap.Error(err))
	}
	d, cleanup, err := data.NewData(db, rdb, logger)
	if err != nil {
		zlog.Fatal("Failed to init data layer", zap.Error(err))
	}
	defer cleanup()

	providerRepo := data.NewProviderRepo(d, logger)
	modelRepo := data.NewModelRepo(d, logger)
	groupRepo := data.NewGroupRepo(d, logger)
	recordRepo := data.NewCallRecordRepo(d, logger)
	quotaConfigRepo := data.NewQuotaConfigRepo(d, logger)
	quotaUsageStore := data.NewQuotaUsageStore(d, logger)
	healthSnapshotRepo := data.NewHealthSnapshotRepo(d, logger)
	perfRepo := data.NewPerformanceRepo(d, logger)

	// 业务层
	metrics := monitoring.NewGatewayMetrics()
	client := adapter.NewHTTPProviderClient(logger)
	healthMonitor := biz.NewHealthMonitor(config.Health, healthSnapshotRepo, logger)
	quotaGuard := biz.NewQuotaGuard(quotaConfigRepo, quotaUsageStore, config.Quota, logger)
	invoker := biz.NewInvoker(client, recordRepo, healthMonitor, quotaGuard, metrics, logger)
	balancer := biz.NewBalancer(modelRepo, providerRepo, healthMonitor, invoker, quotaGuard, metrics, logger)
	catalog := biz.NewCatalogUsecase(providerRepo, modelRepo, groupRepo, logger)

	// 服务层
	gateway := service.NewGatewayService(catalog, balancer, invoker, healthMonitor, quotaGuard, recordRepo, metrics, logger)
	admin := service.NewAdminService(catalog, logger)
	scheduler := service.NewScheduler(catalog, invoker, healthMonitor, quotaGuard, recordRepo, perfRepo, metrics, config.Scheduler, logger)

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	scheduler.Start(schedulerCtx)
	defer scheduler.Stop()

	// HTTP 服务器
	httpAddr := fmt.Sprintf(":%d", config.Server.HTTPPort)
	httpServer := server.NewHTTPServer(gateway, admin, config.Server, httpAddr, logger)

	// Prometheus metrics 服务器
	metricsAddr := fmt.Sprintf(":%d", config.Server.MetricsPort)
	metricsSrv := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		zlog.Info("Metrics server starting", zap.String("addr", metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		zlog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		zlog.Error("Metrics server shutdown failed", zap.Error(err))
	}

	zlog.Info("Servers exited")
}

// initLogger 初始化日志
func initLogger(cfg conf.ObservabilityConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.LogFormat == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	zapConfig.InitialFields = map[string]interface{}{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
	}

	return zapConfig.Build()
}
