package cache

import "time"

// Option 修改单次调用的参数。与本次调用无关的选项会被忽略，
// 例如对 Get 传入 WithNX 不产生任何效果。
type Option func(*callOptions)

type callOptions struct {
	ttl       time.Duration
	category  Category
	namespace string
	nx        bool
	fallback  any
	amount    int64
}

func applyOptions(opts []Option) callOptions {
	o := callOptions{amount: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithTTL 显式指定生存时间，优先于分类默认值和全局默认值。
// 非正数等同于未指定。
func WithTTL(ttl time.Duration) Option {
	return func(o *callOptions) {
		o.ttl = ttl
	}
}

// WithCategory 指定分类，未显式给出 TTL 时用分类的默认 TTL。
func WithCategory(c Category) Option {
	return func(o *callOptions) {
		o.category = c
	}
}

// WithNamespace 为键加上命名空间前缀。
func WithNamespace(ns string) Option {
	return func(o *callOptions) {
		o.namespace = ns
	}
}

// WithNX 仅当键不存在时写入。
func WithNX() Option {
	return func(o *callOptions) {
		o.nx = true
	}
}

// WithFallback 指定 Get 未命中时的返回值。
func WithFallback(v any) Option {
	return func(o *callOptions) {
		o.fallback = v
	}
}

// WithAmount 指定 Incr 的增量，可以为负数。
func WithAmount(n int64) Option {
	return func(o *callOptions) {
		o.amount = n
	}
}
