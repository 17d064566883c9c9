package billboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/John-Robertt/chartfetch/internal/domain"
	providerx "github.com/John-Robertt/chartfetch/internal/provider"
)

// fixture 文件名约定：<mode>__<chart>__<year|date>.html
func queryFromFixture(t *testing.T, name string) providerx.Query {
	t.Helper()
	parts := strings.Split(strings.TrimSuffix(name, ".html"), "__")
	if len(parts) != 3 {
		t.Fatalf("fixture 文件名不符合约定：%s", name)
	}
	switch parts[0] {
	case "year-end":
		y, err := strconv.Atoi(parts[2])
		if err != nil {
			t.Fatalf("fixture 年份非法：%s", name)
		}
		return providerx.Query{Chart: parts[1], Year: y}
	case "weekly":
		y, err := strconv.Atoi(parts[2][:4])
		if err != nil {
			t.Fatalf("fixture 日期非法：%s", name)
		}
		return providerx.Query{Chart: parts[1], Year: y, Date: parts[2]}
	default:
		t.Fatalf("未知 mode：%s", name)
	}
	return providerx.Query{}
}

func TestParse_Golden(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	if err != nil {
		t.Fatalf("读取 testdata 失败：%v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") || !strings.Contains(e.Name(), "__") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		t.Fatalf("未找到任何 fixture（testdata/<mode>__<chart>__<key>.html）")
	}

	update := os.Getenv("UPDATE_GOLDEN") == "1"

	for _, name := range names {
		q := queryFromFixture(t, name)
		html, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("读取 fixture 失败：%v", err)
		}

		chart, err := Provider{}.Parse(q, html, Provider{}.PageURL(q))
		if err != nil {
			t.Fatalf("Parse 失败：fixture=%s err=%v", name, err)
		}

		goldenPath := filepath.Join("golden", strings.TrimSuffix(name, ".html")+".json")
		if update {
			got, err := json.MarshalIndent(chart, "", "  ")
			if err != nil {
				t.Fatalf("json.Marshal 失败：%v", err)
			}
			if err := os.WriteFile(goldenPath, append(got, '\n'), 0o644); err != nil {
				t.Fatalf("写入 golden 失败：%v", err)
			}
			continue
		}

		b, err := os.ReadFile(goldenPath)
		if err != nil {
			t.Fatalf("读取 golden 失败：%s err=%v（可用 UPDATE_GOLDEN=1 生成）", goldenPath, err)
		}
		var want domain.Chart
		if err := json.Unmarshal(b, &want); err != nil {
			t.Fatalf("golden 不是合法 JSON：%s err=%v", goldenPath, err)
		}
		if !reflect.DeepEqual(want, chart) {
			t.Fatalf("golden 不匹配：%s\n got=%+v\nwant=%+v（重新生成：UPDATE_GOLDEN=1 go test ./internal/provider/billboard）", goldenPath, chart, want)
		}
	}
}

func TestParse_YearEndWithoutData_Unsupported(t *testing.T) {
	html := readFixture(t, "year-end-empty.html")
	_, err := Provider{}.Parse(providerx.Query{Chart: "hot-100", Year: 1930}, html, "u")

	var uy *providerx.UnsupportedYearError
	if !errors.As(err, &uy) {
		t.Fatalf("期望 UnsupportedYearError，实际：%T %v", err, err)
	}
	if uy.Min != 0 || uy.Max != 0 {
		t.Fatalf("站点未列出年份时 Min/Max 应为 0：%+v", uy)
	}
}

func TestParse_YearEndOutOfListedRange_Unsupported(t *testing.T) {
	html := readFixture(t, "year-end__hot-100__2020.html")
	_, err := Provider{}.Parse(providerx.Query{Chart: "hot-100", Year: 1950}, html, "u")

	var uy *providerx.UnsupportedYearError
	if !errors.As(err, &uy) {
		t.Fatalf("期望 UnsupportedYearError，实际：%T %v", err, err)
	}
	if uy.Min != 2006 || uy.Max != 2023 {
		t.Fatalf("期望可用范围 2006-2023，实际 %d-%d", uy.Min, uy.Max)
	}
}

func TestParse_WeeklyWithoutEntries_ParseError(t *testing.T) {
	html := readFixture(t, "year-end-empty.html")
	_, err := Provider{}.Parse(providerx.Query{Chart: "hot-100", Year: 1930, Date: "1930-01-01"}, html, "u")

	var pe *providerx.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("周榜页无条目应为 ParseError，实际：%T %v", err, err)
	}
}

func TestParse_BrokenRank_ParseError(t *testing.T) {
	html := readFixture(t, "year-end-broken-rank.html")
	_, err := Provider{}.Parse(providerx.Query{Chart: "hot-100", Year: 2020}, html, "u")

	var pe *providerx.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("期望 ParseError，实际：%T %v", err, err)
	}
	if !strings.Contains(pe.Reason, "rank") {
		t.Fatalf("错误信息应指出 rank：%q", pe.Reason)
	}
}

func TestPageURL(t *testing.T) {
	p := Provider{BaseURL: "https://mirror.test/"}
	if got := p.PageURL(providerx.Query{Chart: "hot-100", Year: 2020}); got != "https://mirror.test/charts/year-end/2020/hot-100/" {
		t.Fatalf("年终榜 URL 不符合预期：%q", got)
	}
	if got := p.PageURL(providerx.Query{Chart: "billboard-200", Year: 1990, Date: "1990-01-01"}); got != "https://mirror.test/charts/billboard-200/1990-01-01/" {
		t.Fatalf("周榜 URL 不符合预期：%q", got)
	}
	if got := (Provider{}).PageURL(providerx.Query{Chart: "hot-100", Year: 2020}); !strings.HasPrefix(got, DefaultBaseURL+"/") {
		t.Fatalf("默认域名不符合预期：%q", got)
	}
}

func TestFetch_StatusMapping(t *testing.T) {
	page := readFixture(t, "year-end__hot-100__2020.html")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/charts/year-end/2020/hot-100/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write(page)
		case "/charts/year-end/2020/broken/":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := Provider{BaseURL: srv.URL}
	ctx := context.Background()

	b, pageURL, err := p.Fetch(ctx, providerx.Query{Chart: "hot-100", Year: 2020}, srv.Client())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if pageURL != srv.URL+"/charts/year-end/2020/hot-100/" {
		t.Fatalf("pageURL 不符合预期：%q", pageURL)
	}
	if len(b) != len(page) {
		t.Fatalf("body 长度不一致：%d != %d", len(b), len(page))
	}

	_, _, err = p.Fetch(ctx, providerx.Query{Chart: "no-such-chart", Year: 2020}, srv.Client())
	var nf *providerx.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("404 应映射为 NotFoundError，实际：%T %v", err, err)
	}
	if nf.Chart != "no-such-chart" || nf.Year != 2020 {
		t.Fatalf("NotFoundError 字段不符合预期：%+v", nf)
	}

	_, _, err = p.Fetch(ctx, providerx.Query{Chart: "broken", Year: 2020}, srv.Client())
	var se *providerx.HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("503 应映射为 HTTPStatusError，实际：%T %v", err, err)
	}

	if _, _, err := p.Fetch(ctx, providerx.Query{Chart: "hot-100", Year: 2020}, nil); err == nil {
		t.Fatalf("nil client 应当报错")
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return b
}
