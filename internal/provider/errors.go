package provider

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码（404/410 除外，见 NotFoundError）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// NotFoundError 表示请求的榜单（或该榜单在该年份/日期的页面）不存在。
type NotFoundError struct {
	Chart string
	Year  int
	Date  string
	URL   string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "chart not found"
	}
	if e.Date != "" {
		return fmt.Sprintf("chart %q not found for date %s (%s)", e.Chart, e.Date, e.URL)
	}
	return fmt.Sprintf("chart %q not found for year %d (%s)", e.Chart, e.Year, e.URL)
}

// ParseError 表示页面已取回，但无法解释为榜单（结构变化、被拦截、字段缺失等）。
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	if e.URL == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.URL)
}

// UnsupportedYearError 表示该年份没有年终榜聚合数据。
// Min/Max 为站点列出的可用年份范围；站点未列出任何年份时均为 0。
type UnsupportedYearError struct {
	Chart string
	Year  int
	Min   int
	Max   int
}

func (e *UnsupportedYearError) Error() string {
	if e == nil {
		return "year not supported"
	}
	if e.Min == 0 && e.Max == 0 {
		return fmt.Sprintf("no year-end data for chart %q in %d", e.Chart, e.Year)
	}
	return fmt.Sprintf("year-end chart %q is available for %d-%d, not %d", e.Chart, e.Min, e.Max, e.Year)
}

// ValueError 表示查询参数本身不合法（与站点无关）。
type ValueError struct {
	Field  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
