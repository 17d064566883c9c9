package billboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/chartfetch/internal/domain"
	providerx "github.com/John-Robertt/chartfetch/internal/provider"
)

// DefaultBaseURL 是 billboard.com 的默认域名。
const DefaultBaseURL = "https://www.billboard.com"

// Provider 实现 billboard.com 榜单页的抓取与 HTML 解析。
//
// 约束：
// - 年终榜：<base>/charts/year-end/<year>/<chart>/
// - 周榜：<base>/charts/<chart>/<date>/（站点会自动对齐到该日期所在的发布周）
// - Fetch/Parse 不做缓存/重试（由上层统一控制）
// - Parse 必须是纯函数（依赖输入 query + html + pageURL）
type Provider struct {
	// BaseURL 允许替换站点域名（测试或镜像）；为空时使用 DefaultBaseURL。
	BaseURL string
}

func (Provider) Name() string { return "billboard" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// PageURL 返回 q 对应的榜单页 URL。
func (p Provider) PageURL(q providerx.Query) string {
	chart := url.PathEscape(q.Chart)
	if q.YearEnd() {
		return fmt.Sprintf("%s/charts/year-end/%d/%s/", p.baseURL(), q.Year, chart)
	}
	return fmt.Sprintf("%s/charts/%s/%s/", p.baseURL(), chart, url.PathEscape(q.Date))
}

func (p Provider) Fetch(ctx context.Context, q providerx.Query, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client must not be nil")
	}
	pageURL := p.PageURL(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, pageURL, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.Do(req)
	if err != nil {
		return nil, pageURL, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, pageURL, &providerx.NotFoundError{Chart: q.Chart, Year: q.Year, Date: q.Date, URL: pageURL}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, pageURL, &providerx.HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pageURL, err
	}
	return b, pageURL, nil
}

// Parse 把榜单页 HTML 解析为 domain.Chart。
func (Provider) Parse(q providerx.Query, html []byte, pageURL string) (domain.Chart, error) {
	if len(html) == 0 {
		return domain.Chart{}, &providerx.ParseError{URL: pageURL, Reason: "empty page"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.Chart{}, &providerx.ParseError{URL: pageURL, Reason: err.Error()}
	}

	entries, err := parseEntries(doc)
	if err != nil {
		return domain.Chart{}, &providerx.ParseError{URL: pageURL, Reason: err.Error()}
	}

	if q.YearEnd() {
		// 年终榜页会列出“可用年份”。既没有年份也没有条目，说明该年份没有聚合数据。
		years := parseYearEndYears(doc)
		if len(years) == 0 && len(entries) == 0 {
			return domain.Chart{}, &providerx.UnsupportedYearError{Chart: q.Chart, Year: q.Year}
		}
		if len(years) > 0 {
			lo, hi := minMax(years)
			if q.Year < lo || q.Year > hi {
				return domain.Chart{}, &providerx.UnsupportedYearError{Chart: q.Chart, Year: q.Year, Min: lo, Max: hi}
			}
		}
	}

	if len(entries) == 0 {
		return domain.Chart{}, &providerx.ParseError{URL: pageURL, Reason: "no chart entries found (page layout may have changed)"}
	}

	return domain.Chart{
		Name:    q.Chart,
		Title:   parseTitle(doc),
		Date:    q.Date,
		Entries: entries,
	}, nil
}

func parseTitle(doc *goquery.Document) string {
	if v, ok := doc.Find("meta[name='title']").First().Attr("content"); ok && normSpace(v) != "" {
		return normSpace(v)
	}
	if v, ok := doc.Find("meta[property='og:title']").First().Attr("content"); ok && normSpace(v) != "" {
		return normSpace(v)
	}
	if v := normSpace(doc.Find("h1").First().Text()); v != "" {
		return v
	}
	return normSpace(doc.Find("title").First().Text())
}

func parseEntries(doc *goquery.Document) ([]domain.Entry, error) {
	rows := doc.Find(".o-chart-results-list-row-container")
	if rows.Length() == 0 {
		rows = doc.Find("ul.o-chart-results-list-row")
	}

	entries := make([]domain.Entry, 0, rows.Length())
	var perr error
	rows.EachWithBreak(func(i int, s *goquery.Selection) bool {
		e, err := parseEntry(s)
		if err != nil {
			perr = fmt.Errorf("row %d: %w", i+1, err)
			return false
		}
		entries = append(entries, e)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return entries, nil
}

func parseEntry(s *goquery.Selection) (domain.Entry, error) {
	rankText := normSpace(s.Find("span.c-label").First().Text())
	rank, err := strconv.Atoi(rankText)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("rank is not an integer: %q", rankText)
	}

	h3 := s.Find("h3#title-of-a-story").First()
	title := normSpace(h3.Text())
	if title == "" {
		return domain.Entry{}, errors.New("empty title")
	}
	artist := normSpace(h3.NextFiltered("span.c-label").First().Text())

	image := ""
	img := s.Find("img.c-lazy-image__img").First()
	if v, ok := img.Attr("data-lazy-src"); ok && strings.TrimSpace(v) != "" {
		image = strings.TrimSpace(v)
	} else if v, ok := img.Attr("src"); ok {
		image = strings.TrimSpace(v)
	}

	return domain.Entry{
		Title:  title,
		Artist: artist,
		Rank:   rank,
		Image:  image,
	}, nil
}

func parseYearEndYears(doc *goquery.Document) []int {
	var years []int
	doc.Find(".a-chart-year-end-select option, .dropdown__year-select-option, [data-year-end-year]").Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr("data-year-end-year")
		if !ok {
			v = s.Text()
		}
		if y, err := strconv.Atoi(normSpace(v)); err == nil && y > 0 {
			years = append(years, y)
		}
	})
	return years
}

func minMax(xs []int) (int, int) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
