package error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseError_Message(t *testing.T) {
	err := NewError("CACHE_CLOSED", "cache is closed")
	assert.Equal(t, "CACHE_CLOSED: cache is closed", err.Error())

	wrapped := WrapError("SERIALIZE_FAILED", "size estimate failed", errors.New("unsupported type"))
	assert.Equal(t, "SERIALIZE_FAILED: size estimate failed: unsupported type", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "unsupported type")
}

func TestBaseError_IsByCode(t *testing.T) {
	sentinel := NewError("CACHE_CLOSED", "cache is closed")
	other := NewError("CACHE_CLOSED", "closed during sweep").WithContext("key", "k1")

	assert.True(t, errors.Is(other, sentinel))
	assert.False(t, errors.Is(other, NewError("CONFIG_INVALID", "bad config")))
	assert.Equal(t, "k1", other.Context["key"])
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("set failed: %w", NewError("CACHE_NOT_INTEGER", "value is not an integer"))

	assert.Equal(t, ErrorCode("CACHE_NOT_INTEGER"), CodeOf(err))
	assert.True(t, HasCode(err, "CACHE_NOT_INTEGER"))
	assert.False(t, HasCode(nil, "CACHE_NOT_INTEGER"))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
