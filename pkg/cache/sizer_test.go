package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 测试estimateSize函数的所有分支
func TestEstimateSize(t *testing.T) {
	size, err := estimateSize("hello")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), size)

	size, _ = estimateSize([]byte("0123456789"))
	assert.Equal(t, int64(10), size)

	size, _ = estimateSize(12345)
	assert.Equal(t, int64(8), size)

	size, _ = estimateSize(nil)
	assert.Equal(t, int64(0), size)

	size, _ = estimateSize(map[string]int{"a": 1})
	assert.Equal(t, int64(len(`{"a":1}`)), size)

	size, _ = estimateSize(struct {
		Stage string `json:"stage"`
	}{"Main"})
	assert.Equal(t, int64(len(`{"stage":"Main"}`)), size)

	_, err = estimateSize(func() {})
	assert.Error(t, err)
	assert.ErrorIs(t, err, NewCacheError(ErrCodeSerializeFailed, ""))
}
