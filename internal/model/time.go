package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp 是毫秒精度的时间点。
// 服务端可能以 epoch 秒（数字或数字字符串）或日期字符串编码时间，两者统一解码为 Timestamp；
// 编码时输出带毫秒小数的 epoch 秒，与服务端存储格式一致。
type Timestamp struct {
	time.Time
}

const localTimeFormat = "2006-01-02 15:04:05"

var stringLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	localTimeFormat,
	"2006-01-02",
}

// NewTimestamp 截断到毫秒。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Millisecond)}
}

// FromEpochSeconds 将 epoch 秒乘以 1000 转为毫秒精度。
func FromEpochSeconds(sec float64) Timestamp {
	return Timestamp{Time: time.UnixMilli(int64(math.Round(sec * 1000)))}
}

// EpochSeconds 返回带毫秒小数的 epoch 秒。
func (t Timestamp) EpochSeconds() float64 {
	return float64(t.UnixMilli()) / 1000
}

// After 比较毫秒精度的时间点。
func (t Timestamp) After(o Timestamp) bool {
	return t.UnixMilli() > o.UnixMilli()
}

// Equal 比较毫秒精度的时间点。
func (t Timestamp) Equal(o Timestamp) bool {
	return t.UnixMilli() == o.UnixMilli()
}

// MarshalJSON implements the json.Marshaler interface.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(t.EpochSeconds(), 'f', -1, 64)), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	sec, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", string(data), err)
	}
	*t = FromEpochSeconds(sec)
	return nil
}

// ParseTimestamp 解析字符串形式的时间：数字按 epoch 秒处理，其余按常见日期格式尝试。
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpochSeconds(sec), nil
	}
	for _, layout := range stringLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(parsed), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(localTimeFormat))
	return []byte(formatted), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := time.ParseInLocation(localTimeFormat, s, time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
