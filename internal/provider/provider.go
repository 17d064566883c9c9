package provider

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/chartfetch/internal/domain"
)

// Provider 把“站点变化”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 domain.Chart。
//
// 约束：
// - Fetch 不做缓存、不做重试（网络策略由 httpx 统一实现）
// - Parse 必须是纯函数：相同输入 => 相同输出
// - 可区分的失败必须用本包的类型化错误表达（NotFoundError / ParseError / UnsupportedYearError）
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query, c *http.Client) (html []byte, pageURL string, err error)
	Parse(q Query, html []byte, pageURL string) (domain.Chart, error)
}

// Query 描述一次榜单查询：Date 为空表示年终榜，否则表示该日期所在的周榜。
type Query struct {
	Chart string
	Year  int
	Date  string // YYYY-MM-DD
}

// YearEnd 报告该查询是否为年终榜查询。
func (q Query) YearEnd() bool { return q.Date == "" }

// Mode 返回 "year-end" 或 "weekly"（用于日志、trace 与 dump 文件名）。
func (q Query) Mode() string {
	if q.YearEnd() {
		return "year-end"
	}
	return "weekly"
}

var chartSlugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate 校验查询参数；失败返回 *ValueError。
func (q Query) Validate() error {
	if strings.TrimSpace(q.Chart) == "" {
		return &ValueError{Field: "chart_name", Reason: "must not be empty"}
	}
	if !chartSlugRE.MatchString(q.Chart) {
		return &ValueError{Field: "chart_name", Reason: fmt.Sprintf("is not a valid chart slug: %q", q.Chart)}
	}
	if q.Year <= 0 {
		return &ValueError{Field: "year", Reason: fmt.Sprintf("must be a positive integer, got %d", q.Year)}
	}
	if q.Date != "" {
		if _, err := time.Parse("2006-01-02", q.Date); err != nil {
			return &ValueError{Field: "date", Reason: fmt.Sprintf("is not YYYY-MM-DD: %q", q.Date)}
		}
	}
	return nil
}

// WeeklyDate 返回周榜回退使用的日期：当年 1 月 1 日。
func WeeklyDate(year int) string {
	return fmt.Sprintf("%04d-01-01", year)
}
