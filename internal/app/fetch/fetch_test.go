package fetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/John-Robertt/chartfetch/internal/domain"
	"github.com/John-Robertt/chartfetch/internal/provider"
)

// stubProvider 按 query 模式返回预设结果。
type stubProvider struct {
	yearEndErr error
	weeklyErr  error
	// parseErr 非空时 Fetch 成功、Parse 失败（只作用于年终榜）。
	parseErr error

	entries []domain.Entry
	queries []provider.Query
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(ctx context.Context, q provider.Query, c *http.Client) ([]byte, string, error) {
	p.queries = append(p.queries, q)
	u := "https://example.test/" + q.Mode() + "/" + q.Chart
	if q.YearEnd() && p.yearEndErr != nil {
		return nil, u, p.yearEndErr
	}
	if !q.YearEnd() && p.weeklyErr != nil {
		return nil, u, p.weeklyErr
	}
	return []byte("<html>" + q.Mode() + "</html>"), u, nil
}

func (p *stubProvider) Parse(q provider.Query, html []byte, pageURL string) (domain.Chart, error) {
	if q.YearEnd() && p.parseErr != nil {
		return domain.Chart{}, p.parseErr
	}
	return domain.Chart{Name: q.Chart, Title: "Title " + q.Mode(), Date: q.Date, Entries: p.entries}, nil
}

type memRecorder struct {
	pages map[string]string
	err   error
}

func (r *memRecorder) RecordPage(providerName string, q provider.Query, pageURL string, html []byte) error {
	if r.pages == nil {
		r.pages = map[string]string{}
	}
	r.pages[providerName+"/"+q.Mode()] = string(html)
	return r.err
}

var sampleEntries = []domain.Entry{
	{Title: "Blinding Lights", Artist: "The Weeknd", Rank: 1, Image: "a"},
	{Title: "Circles", Artist: "Post Malone", Rank: 2, Image: "b"},
}

func TestFetchYearEnd_Success(t *testing.T) {
	p := &stubProvider{entries: sampleEntries}
	out := FetchYearEnd(context.Background(), Deps{Provider: p}, 2020, "hot-100")

	r := out.Result
	if !r.Success {
		t.Fatalf("期望成功，实际：%+v", r)
	}
	if r.EntryCount != len(r.Entries) || r.EntryCount != 2 {
		t.Fatalf("entry_count 与 entries 不一致：%+v", r)
	}
	for _, e := range r.Entries {
		if e.Title == "" || e.Artist == "" {
			t.Fatalf("条目缺少 title/artist：%+v", e)
		}
	}
	if r.Date != "" {
		t.Fatalf("年终榜不应带 date，实际=%q", r.Date)
	}
	if len(out.Attempts) != 1 || out.Attempts[0].Stage != provider.StageOK || out.Attempts[0].Mode != ModeYearEnd {
		t.Fatalf("attempts 不符合预期：%+v", out.Attempts)
	}
}

func TestFetchYearEnd_ErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		p        *stubProvider
		chart    string
		wantKind domain.ErrorKind
		wantMsg  string
	}{
		{
			name:     "not found",
			p:        &stubProvider{yearEndErr: &provider.NotFoundError{Chart: "nope", Year: 2020, URL: "u"}},
			chart:    "nope",
			wantKind: domain.KindNotFound,
			wantMsg:  "Chart not found: ",
		},
		{
			name:     "parse",
			p:        &stubProvider{parseErr: &provider.ParseError{Reason: "no rows"}},
			chart:    "hot-100",
			wantKind: domain.KindParseFailure,
			wantMsg:  "Failed to parse chart data: no rows",
		},
		{
			name:     "unsupported year",
			p:        &stubProvider{parseErr: &provider.UnsupportedYearError{Chart: "hot-100", Year: 1950}},
			chart:    "hot-100",
			wantKind: domain.KindUnsupportedYear,
			wantMsg:  "Year 1950 not supported for year-end charts",
		},
		{
			name:     "value",
			p:        &stubProvider{},
			chart:    "Not A Slug",
			wantKind: domain.KindValue,
			wantMsg:  "Value error: chart_name",
		},
		{
			name:     "unexpected",
			p:        &stubProvider{yearEndErr: errors.New("dial tcp: connection refused")},
			chart:    "hot-100",
			wantKind: domain.KindUnexpected,
			wantMsg:  "Unexpected error: dial tcp: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FetchYearEnd(context.Background(), Deps{Provider: tt.p}, 1950, tt.chart)
			r := out.Result
			if r.Success {
				t.Fatalf("期望失败，实际成功：%+v", r)
			}
			if r.Kind != tt.wantKind {
				t.Fatalf("期望 kind=%q，实际=%q", tt.wantKind, r.Kind)
			}
			if !strings.HasPrefix(r.Error, tt.wantMsg) {
				t.Fatalf("期望消息以 %q 开头，实际=%q", tt.wantMsg, r.Error)
			}
			if r.Year != 1950 || r.ChartName != tt.chart {
				t.Fatalf("失败结果应回显 year/chart_name：%+v", r)
			}
			if strings.Contains(r.Error, "stage=") {
				t.Fatalf("对外消息不应包含内部 stage 细节：%q", r.Error)
			}
		})
	}
}

func TestFetchWeekly_SuccessHasDate(t *testing.T) {
	p := &stubProvider{entries: sampleEntries}
	out := FetchWeekly(context.Background(), Deps{Provider: p}, 1960, "hot-100")

	if !out.Result.Success || out.Result.Date != "1960-01-01" {
		t.Fatalf("周榜结果不符合预期：%+v", out.Result)
	}
	if len(p.queries) != 1 || p.queries[0].Date != "1960-01-01" {
		t.Fatalf("周榜应以 <year>-01-01 查询：%+v", p.queries)
	}
}

func TestFetchWeekly_AnyFailureIsWeeklyFailed(t *testing.T) {
	p := &stubProvider{weeklyErr: &provider.NotFoundError{Chart: "x", Date: "1900-01-01", URL: "u"}}
	out := FetchWeekly(context.Background(), Deps{Provider: p}, 1900, "x")

	if out.Result.Success || out.Result.Kind != domain.KindWeeklyFailed {
		t.Fatalf("期望 weekly_failed，实际：%+v", out.Result)
	}
	if !strings.HasPrefix(out.Result.Error, "Failed to get weekly chart: ") {
		t.Fatalf("消息不符合预期：%q", out.Result.Error)
	}
}

func TestRun_NoFallbackOnSuccess(t *testing.T) {
	p := &stubProvider{entries: sampleEntries}
	out := Run(context.Background(), Deps{Provider: p}, 2020, "hot-100")

	if !out.Result.Success || out.Result.Date != "" {
		t.Fatalf("应直接采用年终榜：%+v", out.Result)
	}
	if len(p.queries) != 1 {
		t.Fatalf("年终榜成功时不应请求周榜，实际请求 %d 次", len(p.queries))
	}
}

func TestRun_UnsupportedYearFallsBackToWeekly(t *testing.T) {
	p := &stubProvider{
		parseErr: &provider.UnsupportedYearError{Chart: "hot-100", Year: 1960},
		entries:  sampleEntries,
	}
	rec := &memRecorder{}
	out := Run(context.Background(), Deps{Provider: p, Recorder: rec}, 1960, "hot-100")

	if !out.Result.Success {
		t.Fatalf("期望周榜成功：%+v", out.Result)
	}
	if out.Result.Date != "1960-01-01" {
		t.Fatalf("期望 date=1960-01-01，实际=%q", out.Result.Date)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("期望 2 条 attempts，实际 %d: %+v", len(out.Attempts), out.Attempts)
	}
	if out.Attempts[0].Mode != ModeYearEnd || out.Attempts[0].Stage != provider.StageParse || out.Attempts[0].Err == nil {
		t.Fatalf("attempt[0] 不符合预期：%+v", out.Attempts[0])
	}
	if out.Attempts[1].Mode != ModeWeekly || out.Attempts[1].Stage != provider.StageOK {
		t.Fatalf("attempt[1] 不符合预期：%+v", out.Attempts[1])
	}
	// parse 失败的年终榜页面也应被记录，便于排查。
	if rec.pages["stub/year-end"] == "" || rec.pages["stub/weekly"] == "" {
		t.Fatalf("recorder 应收到两次页面：%v", rec.pages)
	}
}

func TestRun_BothFailReturnsWeeklyFailure(t *testing.T) {
	nf := &provider.NotFoundError{Chart: "no-such-chart", Year: 2020, URL: "u"}
	p := &stubProvider{yearEndErr: nf, weeklyErr: nf}
	out := Run(context.Background(), Deps{Provider: p}, 2020, "no-such-chart")

	if out.Result.Success || out.Result.Kind != domain.KindWeeklyFailed {
		t.Fatalf("期望周榜失败结果，实际：%+v", out.Result)
	}
	if len(p.queries) != 2 {
		t.Fatalf("期望请求 2 次，实际 %d", len(p.queries))
	}
}

func TestRun_RecorderErrorDoesNotChangeResult(t *testing.T) {
	p := &stubProvider{entries: sampleEntries}
	rec := &memRecorder{err: errors.New("disk full")}
	out := Run(context.Background(), Deps{Provider: p, Recorder: rec}, 2020, "hot-100")
	if !out.Result.Success {
		t.Fatalf("dump 失败不应影响结果：%+v", out.Result)
	}
}

func TestRun_NilProvider(t *testing.T) {
	out := Run(context.Background(), Deps{}, 2020, "hot-100")
	if out.Result.Success || out.Result.Kind != domain.KindWeeklyFailed {
		t.Fatalf("未配置 provider 应得到失败结果：%+v", out.Result)
	}
}
