package cache

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Category 缓存分类，只用于在写入时选择默认 TTL，之后不再重新计算。
type Category string

const (
	CategoryNone      Category = ""
	CategoryStatic    Category = "STATIC"
	CategoryDynamic   Category = "DYNAMIC"
	CategorySession   Category = "SESSION"
	CategoryAnalytics Category = "ANALYTICS"
	CategoryAPI       Category = "API"
	CategoryGallery   Category = "GALLERY"
	CategoryPayments  Category = "PAYMENTS"
	CategoryUser      Category = "USER"
)

// categoryTTL 分类默认 TTL，固定表，不可配置
var categoryTTL = map[Category]time.Duration{
	CategoryStatic:    6 * time.Hour,
	CategoryUser:      time.Hour,
	CategorySession:   time.Hour,
	CategoryPayments:  30 * time.Minute,
	CategoryAnalytics: 15 * time.Minute,
	CategoryDynamic:   5 * time.Minute,
	CategoryAPI:       2 * time.Minute,
	CategoryGallery:   24 * time.Hour,
}

// Categories 返回全部已知分类
func Categories() []Category {
	return []Category{
		CategoryStatic, CategoryDynamic, CategorySession, CategoryAnalytics,
		CategoryAPI, CategoryGallery, CategoryPayments, CategoryUser,
	}
}

// DefaultTTL 返回分类的默认 TTL，未知分类或未分类返回 false
func (c Category) DefaultTTL() (time.Duration, bool) {
	ttl, ok := categoryTTL[c]
	return ttl, ok
}

func (c Category) String() string {
	if c == CategoryNone {
		return "uncategorized"
	}
	return string(c)
}

// ParseCategory 不区分大小写地解析分类名，空串和 "uncategorized" 解析为 CategoryNone
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryNone, nil
	}

	folded := cases.Fold().String(s)
	if folded == cases.Fold().String(CategoryNone.String()) {
		return CategoryNone, nil
	}
	for _, c := range Categories() {
		if folded == cases.Fold().String(string(c)) {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("unknown cache category %q", s)
}

// effectiveTTL ttl ?? categoryDefault(category) ?? defaultTTL
func effectiveTTL(ttl time.Duration, c Category, defaultTTL time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if d, ok := c.DefaultTTL(); ok {
		return d
	}
	return defaultTTL
}
