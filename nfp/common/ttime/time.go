package ttime

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	LayoutDateTime = "2006-01-02 15:04:05"
	LayoutDate     = "2006-01-02"
)

// TimeFormat 统一时间字段：JSON 按本地时区输出，不带偏移；
// 入库/出库走 Scan/Value，零值映射 NULL。
type TimeFormat struct {
	time.Time
	Layout string
}

func Now() TimeFormat {
	return TimeFormat{Time: time.Now(), Layout: LayoutDateTime}
}

/************** JSON **************/

func (m TimeFormat) MarshalJSON() ([]byte, error) {
	if m.Time.IsZero() {
		return json.Marshal("")
	}
	layout := m.Layout
	if layout == "" {
		layout = LayoutDateTime
	}
	return json.Marshal(m.Time.In(time.Local).Format(layout))
}

func (m *TimeFormat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), "\"")
	if s == "" || s == "null" {
		*m = TimeFormat{}
		return nil
	}
	return m.setFromString(s)
}

/************** SQL Scanner / Valuer **************/

func (m *TimeFormat) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = TimeFormat{}
		return nil
	case time.Time:
		*m = TimeFormat{Time: v.In(time.Local), Layout: LayoutDateTime}
		return nil
	case string:
		return m.setFromString(v)
	case []byte:
		return m.setFromString(string(v))
	default:
		return fmt.Errorf("TimeFormat Scan: unsupported src type %T", value)
	}
}

// 写库统一用本地时区字符串，避免驱动编成 RFC3339 带偏移
func (m TimeFormat) Value() (driver.Value, error) {
	if m.Time.IsZero() {
		return nil, nil
	}
	layout := m.Layout
	if layout == "" {
		layout = LayoutDateTime
	}
	return m.Time.In(time.Local).Format(layout), nil
}

func (m *TimeFormat) setFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "0000-00-00 00:00:00" {
		*m = TimeFormat{}
		return nil
	}

	// 仅日期
	if len(s) == len(LayoutDate) && !strings.Contains(s, ":") {
		if t, err := time.ParseInLocation(LayoutDate, s, time.Local); err == nil {
			*m = TimeFormat{Time: t, Layout: LayoutDate}
			return nil
		}
	}

	t, err := parseAny(s)
	if err != nil {
		return fmt.Errorf("TimeFormat: cannot parse %q", s)
	}
	*m = TimeFormat{Time: t.In(time.Local), Layout: LayoutDateTime}
	return nil
}

// 多格式兜底：空格/T 分隔、可选小数秒、可选偏移
func parseAny(s string) (time.Time, error) {
	// 带时区信息的用 Parse 保留偏移
	zoned := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05 -0700",
		"2006-01-02 15:04:05 MST",
	}
	for _, layout := range zoned {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// 无时区信息：按本地时区解释
	local := []string{
		"2006-01-02 15:04:05.999999999",
		LayoutDateTime,
		LayoutDate,
	}
	var lastErr error
	for _, layout := range local {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
