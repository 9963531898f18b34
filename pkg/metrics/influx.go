// Package metrics 把缓存统计导出到 InfluxDB。
package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"festcache/pkg/cache"
	"festcache/pkg/logger"
)

// DefaultMeasurement 默认 measurement 名称
const DefaultMeasurement = "cache_stats"

// PointWriter 写入数据点的最小接口，influxdb2 的 WriteAPIBlocking 满足该接口
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Exporter 统计导出接口
type Exporter interface {
	Export(ctx context.Context, backend string, stats cache.Stats) error
	Close()
}

// StatsPoint 把一次统计快照转换为 InfluxDB 数据点
func StatsPoint(measurement, backend string, stats cache.Stats, ts time.Time) *write.Point {
	if measurement == "" {
		measurement = DefaultMeasurement
	}

	point := influxdb2.NewPointWithMeasurement(measurement).AddTag("backend", backend)
	if host, err := os.Hostname(); err == nil && host != "" {
		point.AddTag("host", host)
	}

	return point.
		AddField("hits", stats.Hits).
		AddField("misses", stats.Misses).
		AddField("sets", stats.Sets).
		AddField("deletes", stats.Deletes).
		AddField("evictions", stats.Evictions).
		AddField("expirations", stats.Expirations).
		AddField("current_size", stats.CurrentSize).
		AddField("current_memory_bytes", stats.CurrentMemoryBytes).
		AddField("hit_ratio", hitRatio(stats)).
		SetTime(ts)
}

// hitRatio 数值形式的命中率(0-100)，无访问时为 0
func hitRatio(stats cache.Stats) float64 {
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0
	}
	return float64(stats.Hits) / float64(total) * 100
}

// InfluxConfig InfluxDB 连接配置
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// InfluxExporter 通过阻塞写 API 导出统计
type InfluxExporter struct {
	client      influxdb2.Client
	writer      PointWriter
	measurement string
	log         *logrus.Entry
	now         func() time.Time
}

// NewInfluxExporter 创建 InfluxDB 导出器。不在这里检查连通性，写入失败由调用方记录
func NewInfluxExporter(config InfluxConfig) *InfluxExporter {
	client := influxdb2.NewClient(config.URL, config.Token)
	e := NewExporterWithWriter(client.WriteAPIBlocking(config.Org, config.Bucket), config.Measurement)
	e.client = client
	return e
}

// NewExporterWithWriter 使用自定义 writer 创建导出器
func NewExporterWithWriter(writer PointWriter, measurement string) *InfluxExporter {
	return &InfluxExporter{
		writer:      writer,
		measurement: measurement,
		log:         logger.WithComponent("metrics"),
		now:         time.Now,
	}
}

// Export 写入一个统计数据点
func (e *InfluxExporter) Export(ctx context.Context, backend string, stats cache.Stats) error {
	point := StatsPoint(e.measurement, backend, stats, e.now())
	if err := e.writer.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("写入 InfluxDB 失败: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"backend":   backend,
		"hit_ratio": stats.HitRatio,
	}).Debug("cache stats exported")
	return nil
}

// Close 关闭底层客户端
func (e *InfluxExporter) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
