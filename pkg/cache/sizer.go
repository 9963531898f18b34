package cache

import (
	"encoding/json"
)

// estimateSize 估算值序列化后的字节数，只用于内存上限的记账。
// 字符串和字节切片直接取长度，其余类型按 JSON 编码长度计算。
func estimateSize(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		return int64(len(v)), nil
	case []byte:
		return int64(len(v)), nil
	case bool:
		return 1, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return 8, nil
	case float32, float64:
		return 8, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, wrapCacheError(ErrCodeSerializeFailed, "value size estimate failed", err)
	}
	return int64(len(data)), nil
}
