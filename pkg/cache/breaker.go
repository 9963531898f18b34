package cache

import (
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`             // 是否启用熔断器
	Name        string        `mapstructure:"name" yaml:"name"`                   // 熔断器名称
	MaxRequests uint32        `mapstructure:"max_requests" yaml:"max_requests"`   // 半开状态下的最大请求数
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`           // 统计窗口时间
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`             // 熔断器打开后的超时时间
	ReadyToTrip uint32        `mapstructure:"ready_to_trip" yaml:"ready_to_trip"` // 触发熔断的连续失败次数
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:     true,
		Name:        "redis-cache",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: 5,
	}
}

// newBreaker 创建熔断器；redis.Nil 和服务端返回的命令错误都不算连接失败
func newBreaker(config BreakerConfig, log *logrus.Entry) *gobreaker.CircuitBreaker {
	if !config.Enabled {
		return nil
	}

	threshold := config.ReadyToTrip
	if threshold == 0 {
		threshold = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var replyErr redis.Error
			return err == nil || errors.As(err, &replyErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("cache circuit breaker state changed")
		},
	})
}
