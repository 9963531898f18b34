package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"festcache/pkg/cache"
	"festcache/pkg/logger"
)

// EnvPrefix 环境变量前缀，例如 FESTCACHE_CACHE_MAX_SIZE
const EnvPrefix = "FESTCACHE"

// 后端类型
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// 维护任务类型
const (
	JobStatsReport   = "stats_report"
	JobMetricsExport = "metrics_export"
	JobSweep         = "sweep"
)

// Config 主配置结构
type Config struct {
	// 缓存配置
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`

	// Redis 后端配置，仅在 cache.backend=redis 时使用
	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`

	// 管理接口配置
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// 日志配置
	Logger logger.Config `mapstructure:"logger" yaml:"logger" json:"logger"`

	// 定时维护任务
	Jobs []JobConfig `mapstructure:"jobs" yaml:"jobs" json:"jobs"`

	// InfluxDB 指标导出
	InfluxDB InfluxDBConfig `mapstructure:"influxdb" yaml:"influxdb" json:"influxdb"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Backend       string         `mapstructure:"backend" yaml:"backend" json:"backend"`                      // memory 或 redis
	MaxSize       int            `mapstructure:"max_size" yaml:"max_size" json:"max_size"`                   // 最大条目数
	MaxMemoryMB   float64        `mapstructure:"max_memory_mb" yaml:"max_memory_mb" json:"max_memory_mb"`    // 内存上限(MB)
	DefaultTTL    time.Duration  `mapstructure:"default_ttl" yaml:"default_ttl" json:"default_ttl"`          // 默认生存时间
	CheckInterval time.Duration  `mapstructure:"check_interval" yaml:"check_interval" json:"check_interval"` // 过期清理周期
	Warmup        map[string]any `mapstructure:"warmup" yaml:"warmup" json:"warmup"`                         // 启动时预热的键值，键名会被转为小写
	WarmupNS      string         `mapstructure:"warmup_namespace" yaml:"warmup_namespace" json:"warmup_namespace"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr        string              `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password    string              `mapstructure:"password" yaml:"password" json:"-"`
	DB          int                 `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix   string              `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	DialTimeout time.Duration       `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	MaxRetries  int                 `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Breaker     cache.BreakerConfig `mapstructure:"breaker" yaml:"breaker" json:"breaker"`
}

// ServerConfig 管理接口配置
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" json:"addr"` // 监听地址
	Mode    string `mapstructure:"mode" yaml:"mode" json:"mode"` // gin 模式 (debug, release, test)
}

// JobConfig 维护任务配置
type JobConfig struct {
	Name     string `mapstructure:"name" yaml:"name" json:"name"`
	Schedule string `mapstructure:"schedule" yaml:"schedule" json:"schedule"` // 带秒字段的 cron 表达式
	Type     string `mapstructure:"type" yaml:"type" json:"type"`
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// InfluxDBConfig 指标导出配置
type InfluxDBConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	URL         string `mapstructure:"url" yaml:"url" json:"url"`
	Token       string `mapstructure:"token" yaml:"token" json:"-"`
	Org         string `mapstructure:"org" yaml:"org" json:"org"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Measurement string `mapstructure:"measurement" yaml:"measurement" json:"measurement"`
}

// Default 返回默认配置
func Default() *Config {
	mem := cache.DefaultMemoryCacheConfig()
	return &Config{
		Cache: CacheConfig{
			Backend:       BackendMemory,
			MaxSize:       mem.MaxSize,
			MaxMemoryMB:   mem.MaxMemoryMB,
			DefaultTTL:    mem.DefaultTTL,
			CheckInterval: mem.CheckInterval,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			KeyPrefix:   "festcache:",
			DialTimeout: 5 * time.Second,
			MaxRetries:  3,
			Breaker:     cache.DefaultBreakerConfig(),
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
			Mode:    "release",
		},
		Logger: logger.Config{
			Level:  "info",
			Format: "text",
		},
		Jobs: []JobConfig{
			{Name: "stats-report", Schedule: "0 * * * * *", Type: JobStatsReport, Enabled: true},
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Org:         "festival",
			Bucket:      "cache_metrics",
			Measurement: "cache_stats",
		},
	}
}

// setDefaults 把默认值注册到 viper，环境变量覆盖只对已知键生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("cache.max_memory_mb", d.Cache.MaxMemoryMB)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.check_interval", d.Cache.CheckInterval)
	v.SetDefault("cache.warmup_namespace", "")

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	v.SetDefault("redis.breaker.enabled", d.Redis.Breaker.Enabled)
	v.SetDefault("redis.breaker.name", d.Redis.Breaker.Name)
	v.SetDefault("redis.breaker.max_requests", d.Redis.Breaker.MaxRequests)
	v.SetDefault("redis.breaker.interval", d.Redis.Breaker.Interval)
	v.SetDefault("redis.breaker.timeout", d.Redis.Breaker.Timeout)
	v.SetDefault("redis.breaker.ready_to_trip", d.Redis.Breaker.ReadyToTrip)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.output", "")

	v.SetDefault("jobs", d.Jobs)

	v.SetDefault("influxdb.enabled", d.InfluxDB.Enabled)
	v.SetDefault("influxdb.url", d.InfluxDB.URL)
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", d.InfluxDB.Org)
	v.SetDefault("influxdb.bucket", d.InfluxDB.Bucket)
	v.SetDefault("influxdb.measurement", d.InfluxDB.Measurement)
}

// Load 读取配置。path 为空时在 ./config 和当前目录查找 festcache.yaml，找不到则只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("festcache")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendMemory:
		if err := c.MemoryCacheConfig().Validate(); err != nil {
			return err
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return invalid("redis addr cannot be empty")
		}
		if c.Cache.DefaultTTL <= 0 {
			return invalid("default_ttl must be positive")
		}
	default:
		return invalid(fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}

	names := make(map[string]bool, len(c.Jobs))
	for _, job := range c.Jobs {
		if job.Name == "" {
			return invalid("job name cannot be empty")
		}
		if names[job.Name] {
			return invalid(fmt.Sprintf("duplicate job name %q", job.Name))
		}
		names[job.Name] = true

		switch job.Type {
		case JobStatsReport, JobMetricsExport, JobSweep:
		default:
			return invalid(fmt.Sprintf("job %s has unknown type %q", job.Name, job.Type))
		}
		if job.Enabled && job.Schedule == "" {
			return invalid(fmt.Sprintf("job %s has empty schedule", job.Name))
		}
		if job.Type == JobMetricsExport && job.Enabled && !c.InfluxDB.Enabled {
			return invalid(fmt.Sprintf("job %s requires influxdb.enabled", job.Name))
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return invalid("influxdb url and bucket cannot be empty")
	}

	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", cache.ErrConfigInvalid, msg)
}

// MemoryCacheConfig 转换为内存缓存的构造参数
func (c *Config) MemoryCacheConfig() cache.MemoryCacheConfig {
	return cache.MemoryCacheConfig{
		MaxSize:       c.Cache.MaxSize,
		MaxMemoryMB:   c.Cache.MaxMemoryMB,
		DefaultTTL:    c.Cache.DefaultTTL,
		CheckInterval: c.Cache.CheckInterval,
	}
}

// RedisCacheConfig 转换为 Redis 缓存的构造参数
func (c *Config) RedisCacheConfig() cache.RedisCacheConfig {
	return cache.RedisCacheConfig{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		KeyPrefix:   c.Redis.KeyPrefix,
		DefaultTTL:  c.Cache.DefaultTTL,
		DialTimeout: c.Redis.DialTimeout,
		MaxRetries:  c.Redis.MaxRetries,
		Breaker:     c.Redis.Breaker,
	}
}

// EnabledJobs 返回启用的维护任务
func (c *Config) EnabledJobs() []JobConfig {
	var jobs []JobConfig
	for _, job := range c.Jobs {
		if job.Enabled {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
