package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/John-Robertt/chartfetch/internal/domain"
	"github.com/John-Robertt/chartfetch/internal/logging"
	"github.com/John-Robertt/chartfetch/internal/provider"
)

const (
	ModeYearEnd = "year-end"
	ModeWeekly  = "weekly"
)

// Recorder 接收每一次抓取到的原始页面（dump 用）。写入失败只记日志，不影响结果。
type Recorder interface {
	RecordPage(providerName string, q provider.Query, pageURL string, html []byte) error
}

// Deps 是一次抓取需要的外部依赖。
type Deps struct {
	Provider provider.Provider
	Client   *http.Client
	Logger   *slog.Logger
	Recorder Recorder // 可选
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.Discard()
	}
	return d.Logger
}

// Attempt 记录一次 provider 尝试（用于解释回退原因）。
type Attempt struct {
	Mode     string // "year-end" / "weekly"
	Provider string
	Stage    string // "fetch" / "parse" / "ok"
	PageURL  string
	Err      error // nil when Stage=="ok"
}

// Outcome 是一次操作的结果：对外的 Result + 内部尝试轨迹。
type Outcome struct {
	Result   domain.Result
	Attempts []Attempt
}

// FetchYearEnd 抓取 year 年的年终榜。
// 失败时按错误类别生成不同的消息，Result.Kind 携带类别供上层决定是否回退。
func FetchYearEnd(ctx context.Context, d Deps, year int, chartName string) Outcome {
	q := provider.Query{Chart: chartName, Year: year}
	chart, a, err := d.attempt(ctx, q)
	out := Outcome{Attempts: []Attempt{a}}
	if err == nil {
		out.Result = domain.YearEndSuccess(year, withName(chart, chartName))
		return out
	}

	kind := provider.Classify(err)
	cause := provider.Cause(err)
	var msg string
	switch kind {
	case domain.KindNotFound:
		msg = fmt.Sprintf("Chart not found: %v", cause)
	case domain.KindParseFailure:
		msg = fmt.Sprintf("Failed to parse chart data: %v", cause)
	case domain.KindUnsupportedYear:
		msg = fmt.Sprintf("Year %d not supported for year-end charts", year)
	case domain.KindValue:
		msg = fmt.Sprintf("Value error: %v", cause)
	default:
		kind = domain.KindUnexpected
		msg = fmt.Sprintf("Unexpected error: %v", cause)
	}
	out.Result = domain.Failure(year, chartName, kind, msg)
	return out
}

// FetchWeekly 抓取 year 年 1 月 1 日所在周的周榜。任何失败都归为 weekly_failed。
func FetchWeekly(ctx context.Context, d Deps, year int, chartName string) Outcome {
	date := provider.WeeklyDate(year)
	q := provider.Query{Chart: chartName, Year: year, Date: date}
	chart, a, err := d.attempt(ctx, q)
	out := Outcome{Attempts: []Attempt{a}}
	if err != nil {
		out.Result = domain.Failure(year, chartName, domain.KindWeeklyFailed,
			fmt.Sprintf("Failed to get weekly chart: %v", provider.Cause(err)))
		return out
	}
	out.Result = domain.WeeklySuccess(year, date, withName(chart, chartName))
	return out
}

// Run 先尝试年终榜；仅当其失败时回退到周榜。返回最终采用的结果与完整尝试轨迹。
func Run(ctx context.Context, d Deps, year int, chartName string) Outcome {
	log := d.logger()

	ye := FetchYearEnd(ctx, d, year, chartName)
	if ye.Result.Success {
		return ye
	}

	switch ye.Result.Kind {
	case domain.KindNotFound, domain.KindParseFailure, domain.KindUnsupportedYear, domain.KindValue, domain.KindUnexpected:
		log.Info("year-end chart unavailable, falling back to weekly chart",
			"year", year, "chart", chartName, "kind", string(ye.Result.Kind), "reason", ye.Result.Error)
	default:
		log.Warn("year-end chart failed with unknown kind, falling back to weekly chart",
			"year", year, "chart", chartName, "kind", string(ye.Result.Kind))
	}

	wk := FetchWeekly(ctx, d, year, chartName)
	wk.Attempts = append(ye.Attempts, wk.Attempts...)
	return wk
}

func (d Deps) attempt(ctx context.Context, q provider.Query) (domain.Chart, Attempt, error) {
	log := d.logger()
	a := Attempt{Mode: q.Mode()}
	if d.Provider == nil {
		a.Stage = provider.StageFetch
		a.Err = errors.New("no chart provider configured")
		return domain.Chart{}, a, a.Err
	}
	a.Provider = d.Provider.Name()

	started := time.Now()
	chart, pageURL, html, err := provider.FetchParse(ctx, d.Provider, q, d.Client)
	a.PageURL = pageURL

	if d.Recorder != nil && len(html) > 0 {
		if rerr := d.Recorder.RecordPage(a.Provider, q, pageURL, html); rerr != nil {
			log.Warn("failed to dump page", "url", pageURL, "err", rerr)
		}
	}

	if err != nil {
		a.Stage = provider.StageFetch
		var se *provider.Error
		if errors.As(err, &se) {
			a.Stage = se.Stage
		}
		a.Err = err
		log.Debug("chart attempt failed", "mode", a.Mode, "provider", a.Provider, "stage", a.Stage,
			"url", pageURL, "kind", string(provider.Classify(err)), "err", err, "took", time.Since(started))
		return domain.Chart{}, a, err
	}

	a.Stage = provider.StageOK
	log.Debug("chart attempt ok", "mode", a.Mode, "provider", a.Provider, "url", pageURL,
		"entries", len(chart.Entries), "took", time.Since(started))
	return chart, a, nil
}

func withName(c domain.Chart, requested string) domain.Chart {
	if c.Name == "" {
		c.Name = requested
	}
	return c
}
