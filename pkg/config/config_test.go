package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festcache/pkg/cache"
)

// TestDefault 测试默认配置是否正确
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 10000, cfg.Cache.MaxSize)
	assert.Equal(t, float64(64), cfg.Cache.MaxMemoryMB)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.CheckInterval)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "festcache:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Redis.Breaker.Enabled)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.InfluxDB.Enabled)

	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, JobStatsReport, cfg.Jobs[0].Type)
}

// TestValidate 测试配置验证功能
func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate(), "默认配置应该是有效的")

	cfg = Default()
	cfg.Cache.MaxSize = 0
	assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid, "max_size 为 0 时应该返回错误")

	cfg = Default()
	cfg.Cache.MaxMemoryMB = -1
	assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid)

	cfg = Default()
	cfg.Cache.DefaultTTL = 0
	assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid)

	cfg = Default()
	cfg.Cache.CheckInterval = -time.Second
	assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid)

	cfg = Default()
	cfg.Cache.Backend = "memcached"
	assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid, "未知后端应该返回错误")

	cfg = Default()
	cfg.Cache.Backend = BackendRedis
	cfg.Redis.Addr = ""
	assert.ErrorIs(t, cfg.Validate(), cache.ErrConfigInvalid)

	// redis 后端不检查内存上限
	cfg = Default()
	cfg.Cache.Backend = BackendRedis
	cfg.Cache.MaxSize = 0
	assert.NoError(t, cfg.Validate())
}

// TestValidate_Jobs 测试维护任务配置验证
func TestValidate_Jobs(t *testing.T) {
	cfg := Default()
	cfg.Jobs = append(cfg.Jobs, JobConfig{Name: "stats-report", Schedule: "* * * * * *", Type: JobSweep, Enabled: true})
	assert.Error(t, cfg.Validate(), "任务名称重复时应该返回错误")

	cfg = Default()
	cfg.Jobs = []JobConfig{{Name: "x", Schedule: "* * * * * *", Type: "backup", Enabled: true}}
	assert.Error(t, cfg.Validate(), "未知任务类型应该返回错误")

	cfg = Default()
	cfg.Jobs = []JobConfig{{Name: "x", Type: JobSweep, Enabled: true}}
	assert.Error(t, cfg.Validate(), "启用的任务必须有调度表达式")

	cfg = Default()
	cfg.Jobs = []JobConfig{{Name: "x", Type: JobSweep}}
	assert.NoError(t, cfg.Validate(), "禁用的任务可以没有调度表达式")

	cfg = Default()
	cfg.Jobs = []JobConfig{{Name: "export", Schedule: "*/10 * * * * *", Type: JobMetricsExport, Enabled: true}}
	assert.Error(t, cfg.Validate(), "指标导出需要启用 influxdb")

	cfg.InfluxDB.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestEnabledJobs(t *testing.T) {
	cfg := Default()
	cfg.Jobs = []JobConfig{
		{Name: "a", Schedule: "* * * * * *", Type: JobSweep, Enabled: true},
		{Name: "b", Type: JobStatsReport},
	}

	jobs := cfg.EnabledJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Cache.DefaultTTL = time.Minute
	cfg.Redis.DB = 2

	mem := cfg.MemoryCacheConfig()
	assert.Equal(t, cfg.Cache.MaxSize, mem.MaxSize)
	assert.Equal(t, time.Minute, mem.DefaultTTL)

	rc := cfg.RedisCacheConfig()
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, time.Minute, rc.DefaultTTL)
	assert.Equal(t, "festcache:", rc.KeyPrefix)
}

const sampleYAML = `
cache:
  backend: memory
  max_size: 500
  max_memory_mb: 0.5
  default_ttl: 2m
  check_interval: 5s
  warmup:
    lineup: headliners
    capacity: 1200
server:
  addr: ":9090"
logger:
  level: debug
  format: json
jobs:
  - name: sweep-fast
    schedule: "*/5 * * * * *"
    type: sweep
    enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "festcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad 测试从 YAML 文件加载配置
func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Cache.MaxSize)
	assert.Equal(t, 0.5, cfg.Cache.MaxMemoryMB)
	assert.Equal(t, 2*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 5*time.Second, cfg.Cache.CheckInterval)
	assert.Equal(t, "headliners", cfg.Cache.Warmup["lineup"])
	assert.EqualValues(t, 1200, cfg.Cache.Warmup["capacity"])

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "release", cfg.Server.Mode, "未设置的字段使用默认值")
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)

	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, "sweep-fast", cfg.Jobs[0].Name)
	assert.Equal(t, JobSweep, cfg.Jobs[0].Type)
	assert.True(t, cfg.Jobs[0].Enabled)

	assert.Equal(t, "festcache:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 15*time.Second, cfg.Redis.Breaker.Timeout)
}

// TestLoad_EnvOverride 测试环境变量覆盖
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FESTCACHE_CACHE_MAX_SIZE", "42")
	t.Setenv("FESTCACHE_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Cache.MaxSize)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}

// TestLoad_NumericDurations 纯数字时长按秒解析，允许小数
func TestLoad_NumericDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, "cache:\n  default_ttl: 300\n  check_interval: 0.5\nredis:\n  dial_timeout: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.CheckInterval)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, Default().Redis.Breaker.Timeout, cfg.Redis.Breaker.Timeout, "默认值不受影响")

	t.Setenv("FESTCACHE_CACHE_DEFAULT_TTL", "90")
	t.Setenv("FESTCACHE_CACHE_CHECK_INTERVAL", "1m")
	cfg, err = Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Cache.CheckInterval)
}

func TestNumberToSecondsHook(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want interface{}
	}{
		{name: "整数", data: 30, want: 30 * time.Second},
		{name: "小数", data: 0.25, want: 250 * time.Millisecond},
		{name: "数字字符串", data: "1.5", want: 1500 * time.Millisecond},
		{name: "带单位字符串", data: "5m", want: "5m"},
		{name: "已是时长", data: time.Minute, want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := numberToSecondsHook(reflect.TypeOf(tt.data), durationType, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := numberToSecondsHook(reflect.TypeOf(0), reflect.TypeOf(0), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got, "非时长字段不转换")

	_, err = numberToSecondsHook(reflect.TypeOf(0.0), durationType, 1e300)
	assert.ErrorIs(t, err, cache.ErrConfigInvalid)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "cache:\n  max_size: -1\n"))
	assert.ErrorIs(t, err, cache.ErrConfigInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "显式指定的文件不存在时应该返回错误")
}

func TestLoad_NoFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Cache.MaxSize, cfg.Cache.MaxSize)
	assert.Equal(t, Default().Cache.DefaultTTL, cfg.Cache.DefaultTTL)
	assert.Empty(t, cfg.Cache.Warmup)
}
