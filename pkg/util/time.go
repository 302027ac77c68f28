package util

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout day layout used on the wire
// DateLayout 传输中使用的日期格式
const DateLayout = "2006-01-02"

// GetZeroTime gets 0:00 time of a certain day
// GetZeroTime 获取某一天的0点时间
func GetZeroTime(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// NormalizeDay returns UTC midnight of the calendar day d falls on in its own location
// NormalizeDay 返回 d 所在日历日（按其自身时区）的 UTC 零点
func NormalizeDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a "2006-01-02" day or an RFC3339 timestamp into a normalized day
// ParseDay 解析 "2006-01-02" 日期或 RFC3339 时间并归一化到天
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDay(t), nil
}

// FormatDay formats a day as "2006-01-02"
// FormatDay 以 "2006-01-02" 格式输出日期
func FormatDay(d time.Time) string {
	return NormalizeDay(d).Format(DateLayout)
}

// ParseDuration parses duration string, supports 'd' (day) suffix
// ParseDuration 解析时间字符串，支持 'd' (天) 后缀
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	// 纯数字默认为秒
	if _, err := strconv.Atoi(s); err == nil {
		s += "s"
	}
	return time.ParseDuration(s)
}
