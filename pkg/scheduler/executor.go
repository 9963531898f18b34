package scheduler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"festcache/pkg/cache"
	"festcache/pkg/config"
	"festcache/pkg/logger"
	"festcache/pkg/metrics"
)

// sweeper 支持手动过期清理的后端，Redis 自己处理过期，不实现该接口
type sweeper interface {
	Sweep(ctx context.Context) int
}

// MaintenanceExecutor 针对缓存后端执行维护任务
type MaintenanceExecutor struct {
	backend     cache.Backend
	backendName string
	exporter    metrics.Exporter
	log         *logrus.Entry
}

// NewMaintenanceExecutor 创建维护任务执行器；exporter 可以为 nil，此时 metrics_export 任务会失败
func NewMaintenanceExecutor(backend cache.Backend, backendName string, exporter metrics.Exporter) *MaintenanceExecutor {
	return &MaintenanceExecutor{
		backend:     backend,
		backendName: backendName,
		exporter:    exporter,
		log:         logger.WithComponent("maintenance"),
	}
}

// Execute 按任务类型分发
func (e *MaintenanceExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Config.Type {
	case config.JobStatsReport:
		return e.reportStats(job)
	case config.JobMetricsExport:
		return e.exportMetrics(ctx)
	case config.JobSweep:
		return e.sweep(ctx, job)
	}
	return fmt.Errorf("未知的任务类型: %q", job.Config.Type)
}

func (e *MaintenanceExecutor) reportStats(job *Job) error {
	stats := e.backend.Stats()
	e.log.WithFields(logrus.Fields{
		"job":          job.Config.Name,
		"hits":         stats.Hits,
		"misses":       stats.Misses,
		"hit_ratio":    stats.HitRatio,
		"evictions":    stats.Evictions,
		"expirations":  stats.Expirations,
		"current_size": stats.CurrentSize,
		"memory_bytes": stats.CurrentMemoryBytes,
	}).Info("cache stats")
	return nil
}

func (e *MaintenanceExecutor) exportMetrics(ctx context.Context) error {
	if e.exporter == nil {
		return fmt.Errorf("指标导出未启用")
	}
	return e.exporter.Export(ctx, e.backendName, e.backend.Stats())
}

func (e *MaintenanceExecutor) sweep(ctx context.Context, job *Job) error {
	s, ok := e.backend.(sweeper)
	if !ok {
		e.log.WithField("job", job.Config.Name).Debug("backend expires entries on its own, nothing to sweep")
		return nil
	}

	removed := s.Sweep(ctx)
	e.log.WithFields(logrus.Fields{
		"job":     job.Config.Name,
		"removed": removed,
	}).Debug("manual sweep finished")
	return nil
}
