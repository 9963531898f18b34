package config

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

var durationType = reflect.TypeOf(time.Duration(0))

// decodeHook 时长字段里的纯数字按秒解析，带单位的字符串（如 "5m"）按 time.ParseDuration 解析
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		numberToSecondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// numberToSecondsHook 把 int、float 以及数字字符串转换为以秒计的 time.Duration。
// 已经是 time.Duration 的值（默认值）原样通过。
func numberToSecondsHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType || from == durationType {
		return data, nil
	}

	var seconds float64
	switch v := data.(type) {
	case int:
		seconds = float64(v)
	case int32:
		seconds = float64(v)
	case int64:
		seconds = float64(v)
	case uint:
		seconds = float64(v)
	case uint64:
		seconds = float64(v)
	case float32:
		seconds = float64(v)
	case float64:
		seconds = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return data, nil
		}
		seconds = f
	default:
		return data, nil
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || math.Abs(seconds) > math.MaxInt64/float64(time.Second) {
		return nil, invalid("duration out of range: " + strconv.FormatFloat(seconds, 'g', -1, 64))
	}
	return time.Duration(math.Round(seconds * float64(time.Second))), nil
}
