package domain

import (
	"bytes"
	"encoding/json"
)

// Result 是对外稳定输出（stdout JSON）的结构：一次调用只产生一个 Result。
//
// 输出形态分两种：
// - 成功：success/chart_name/year/[date]/title/entries/entry_count
// - 失败：success/error/error_kind/year/chart_name
//
// 两种形态共用同一个结构体，反序列化时未出现的字段保持零值。
type Result struct {
	Success    bool      `json:"success"`
	ChartName  string    `json:"chart_name"`
	Year       int       `json:"year"`
	Date       string    `json:"date,omitempty"`
	Title      string    `json:"title,omitempty"`
	Entries    []Entry   `json:"entries,omitempty"`
	EntryCount int       `json:"entry_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	Kind       ErrorKind `json:"error_kind,omitempty"`
}

// YearEndSuccess 构造年终榜的成功结果。
func YearEndSuccess(year int, c Chart) Result {
	return success(year, "", c)
}

// WeeklySuccess 构造周榜的成功结果；date 是用于查询的日期（YYYY-01-01）。
func WeeklySuccess(year int, date string, c Chart) Result {
	return success(year, date, c)
}

func success(year int, date string, c Chart) Result {
	entries := c.Entries
	if entries == nil {
		entries = []Entry{}
	}
	return Result{
		Success:    true,
		ChartName:  c.Name,
		Year:       year,
		Date:       date,
		Title:      c.Title,
		Entries:    entries,
		EntryCount: len(entries),
	}
}

// Failure 构造失败结果。kind 不允许为 KindNone（调用方保证）。
func Failure(year int, chartName string, kind ErrorKind, msg string) Result {
	return Result{
		Success:   false,
		ChartName: chartName,
		Year:      year,
		Error:     msg,
		Kind:      kind,
	}
}

type successView struct {
	Success    bool    `json:"success"`
	ChartName  string  `json:"chart_name"`
	Year       int     `json:"year"`
	Date       string  `json:"date,omitempty"`
	Title      string  `json:"title"`
	Entries    []Entry `json:"entries"`
	EntryCount int     `json:"entry_count"`
}

type failureView struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	Year      int       `json:"year"`
	ChartName string    `json:"chart_name"`
}

// MarshalJSON 按 success 选择输出形态，保证字段集合与顺序稳定：
// 成功时 entries 总是数组（即使为空），entry_count 总是输出。
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		entries := r.Entries
		if entries == nil {
			entries = []Entry{}
		}
		return marshalRaw(successView{
			Success:    true,
			ChartName:  r.ChartName,
			Year:       r.Year,
			Date:       r.Date,
			Title:      r.Title,
			Entries:    entries,
			EntryCount: r.EntryCount,
		})
	}
	return marshalRaw(failureView{
		Success:   false,
		Error:     r.Error,
		Kind:      r.Kind,
		Year:      r.Year,
		ChartName: r.ChartName,
	})
}

// marshalRaw 与 json.Marshal 相同，但不把 & < > 转义为 \u00XX。
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FatalError 是参数/环境错误时的唯一输出：{"error": "..."}。
type FatalError struct {
	Error string `json:"error"`
}
