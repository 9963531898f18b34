package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"festcache/pkg/backend"
	"festcache/pkg/cache"
	"festcache/pkg/config"
	"festcache/pkg/logger"
	"festcache/pkg/metrics"
	"festcache/pkg/scheduler"
	"festcache/pkg/server"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (例如 ./config/festcache.yaml)")
	logLevel   = flag.String("log-level", "", "覆盖配置中的日志级别 (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}

	logger.Init(cfg.Logger)
	log := logger.WithComponent("festcache")

	b, err := backend.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("创建缓存后端失败")
	}

	ctx := context.Background()
	if len(cfg.Cache.Warmup) > 0 {
		var opts []cache.Option
		if cfg.Cache.WarmupNS != "" {
			opts = append(opts, cache.WithNamespace(cfg.Cache.WarmupNS))
		}
		if _, err := backend.Warmup(ctx, b, cfg.Cache.Warmup, opts...); err != nil {
			log.WithError(err).Warn("缓存预热失败，继续启动")
		}
	}

	var exporter metrics.Exporter
	if cfg.InfluxDB.Enabled {
		exporter = metrics.NewInfluxExporter(metrics.InfluxConfig{
			URL:         cfg.InfluxDB.URL,
			Token:       cfg.InfluxDB.Token,
			Org:         cfg.InfluxDB.Org,
			Bucket:      cfg.InfluxDB.Bucket,
			Measurement: cfg.InfluxDB.Measurement,
		})
	}

	jobs := scheduler.NewMaintenanceScheduler()
	jobs.SetExecutor(scheduler.NewMaintenanceExecutor(b, cfg.Cache.Backend, exporter))
	if err := jobs.LoadJobs(cfg.Jobs); err != nil {
		log.WithError(err).Fatal("加载维护任务失败")
	}
	if err := jobs.Start(); err != nil {
		log.WithError(err).Fatal("启动任务调度器失败")
	}

	var admin *server.Server
	if cfg.Server.Enabled {
		gin.SetMode(cfg.Server.Mode)
		admin = server.New(b, jobs)
		admin.Start(cfg.Server.Addr)
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.Cache.Backend,
		"jobs":    len(cfg.EnabledJobs()),
	}).Info("festcache started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if admin != nil {
		if err := admin.Stop(shutdownCtx); err != nil {
			log.WithError(err).Error("管理接口关闭失败")
		}
	}
	if err := jobs.Stop(); err != nil {
		log.WithError(err).Error("任务调度器关闭失败")
	}
	if exporter != nil {
		exporter.Close()
	}
	if err := backend.Shutdown(shutdownCtx, b); err != nil {
		log.WithError(err).Error("缓存后端关闭失败")
	}

	log.Info("festcache stopped")
}
