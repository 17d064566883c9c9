package dump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/chartfetch/internal/domain"
	"github.com/John-Robertt/chartfetch/internal/infra/fsx"
	"github.com/John-Robertt/chartfetch/internal/provider"
)

// Store 把一次调用的请求、响应与抓取到的原始页面写到 <root> 下，便于事后排查。
//
// 目录结构：
// - <root>/requests/chart_request_<year>_<chart>_<ts>.json
// - <root>/responses/chart_response_<year>_<chart>_<ts>.json
// - <root>/pages/<provider>/<mode>_<chart>_<year|date>.html
//
// 只写不读：这里不是缓存，同一 query 的页面每次都会被覆盖。
type Store struct {
	Root string
	// Now 用于生成时间戳；为空时使用 time.Now。
	Now func() time.Time
}

func New(root string) *Store {
	return &Store{Root: filepath.Clean(strings.TrimSpace(root))}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Request 是请求记录（调用开始时写入）。
type Request struct {
	Timestamp time.Time `json:"timestamp"`
	Year      int       `json:"year"`
	ChartName string    `json:"chart_name"`
	Provider  string    `json:"provider"`
	BaseURL   string    `json:"base_url"`
}

// Response 是响应记录（结果确定后写入）。
type Response struct {
	Timestamp time.Time       `json:"timestamp"`
	Year      int             `json:"year"`
	ChartName string          `json:"chart_name"`
	Success   bool            `json:"success"`
	Result    domain.Result   `json:"result"`
	Attempts  []AttemptRecord `json:"attempts"`
}

// AttemptRecord 是单次 provider 尝试的可序列化形态。
type AttemptRecord struct {
	Mode     string `json:"mode"`
	Provider string `json:"provider"`
	Stage    string `json:"stage"`
	PageURL  string `json:"page_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WriteRequest 写入请求记录，返回文件路径。
func (s *Store) WriteRequest(r Request) (string, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	r.Timestamp = r.Timestamp.UTC()
	name := fmt.Sprintf("chart_request_%d_%s_%s.json", r.Year, safeName(r.ChartName), stamp(r.Timestamp))
	return s.writeJSON(filepath.Join(s.Root, "requests"), name, r)
}

// WriteResponse 写入响应记录，返回文件路径。
func (s *Store) WriteResponse(r Response) (string, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	r.Timestamp = r.Timestamp.UTC()
	if r.Attempts == nil {
		r.Attempts = []AttemptRecord{}
	}
	name := fmt.Sprintf("chart_response_%d_%s_%s.json", r.Year, safeName(r.ChartName), stamp(r.Timestamp))
	return s.writeJSON(filepath.Join(s.Root, "responses"), name, r)
}

// PagePath 返回 provider 页面 dump 的绝对路径。
func (s *Store) PagePath(providerName string, q provider.Query) (string, error) {
	p, err := cleanProvider(providerName)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "pages", p, pageName(q)), nil
}

// RecordPage 写入抓取到的原始 HTML（实现 fetch.Recorder）。
func (s *Store) RecordPage(providerName string, q provider.Query, pageURL string, html []byte) error {
	path, err := s.PagePath(providerName, q)
	if err != nil {
		return err
	}
	if len(html) == 0 {
		return nil
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), html)
}

func (s *Store) writeJSON(dir, name string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := fsx.WriteFileAtomicReplace(dir, name, buf.Bytes()); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func pageName(q provider.Query) string {
	key := strconv.Itoa(q.Year)
	if !q.YearEnd() {
		key = q.Date
	}
	return fmt.Sprintf("%s_%s_%s.html", q.Mode(), safeName(q.Chart), safeName(key))
}

func stamp(t time.Time) string { return t.Format("20060102_150405") }

var unsafeRE = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// safeName 把任意用户输入压成可用作文件名的片段（避免路径穿越）。
func safeName(s string) string {
	s = unsafeRE.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" || strings.Trim(s, "_") == "" {
		return "_"
	}
	return s
}

var providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("provider must not be empty")
	}
	if !providerNameRE.MatchString(p) {
		return "", fmt.Errorf("invalid provider name %q", p)
	}
	return p, nil
}
