package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/chartfetch/internal/domain"
)

// FetchParse 校验查询后依次执行 p.Fetch 与 p.Parse。
//
// 返回值：
// - chart：成功解析的榜单
// - pageURL：实际抓取的页面 URL（也是来源标记）
// - html：抓取到的原始 HTML（fetch 成功即返回，便于 dump 排查 parse 失败）
//
// 失败统一包装为 *Error（带 Stage），原始类型化错误可用 errors.As 取出。
func FetchParse(ctx context.Context, p Provider, q Query, c *http.Client) (chart domain.Chart, pageURL string, html []byte, err error) {
	if p == nil {
		return domain.Chart{}, "", nil, errors.New("provider must not be nil")
	}
	name := p.Name()
	if err := q.Validate(); err != nil {
		return domain.Chart{}, "", nil, &Error{Provider: name, Stage: StageFetch, Err: err}
	}

	h, u, err := p.Fetch(ctx, q, c)
	if err != nil {
		return domain.Chart{}, u, nil, &Error{Provider: name, Stage: StageFetch, Err: err}
	}

	chart, err = p.Parse(q, h, u)
	if err != nil {
		return domain.Chart{}, u, h, &Error{Provider: name, Stage: StageParse, Err: err}
	}
	return chart, u, h, nil
}

const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageOK    = "ok"
)

// Error 是 provider 阶段的可追溯错误。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify 把 provider 返回的错误映射为 domain.ErrorKind。
//
// 分类是 best-effort：优先匹配类型化错误；parse 阶段的其它错误一律视为解析失败；
// 剩余的都归为 unexpected。nil 返回 KindNone。
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindNone
	}
	var (
		uy *UnsupportedYearError
		nf *NotFoundError
		ve *ValueError
		pe *ParseError
		se *Error
	)
	switch {
	case errors.As(err, &uy):
		return domain.KindUnsupportedYear
	case errors.As(err, &nf):
		return domain.KindNotFound
	case errors.As(err, &ve):
		return domain.KindValue
	case errors.As(err, &pe):
		return domain.KindParseFailure
	case errors.As(err, &se) && se.Stage == StageParse:
		return domain.KindParseFailure
	default:
		return domain.KindUnexpected
	}
}

// Cause 去掉 *Error 外壳，返回最贴近站点的错误（用于拼接对外消息，避免泄露内部 stage 细节）。
func Cause(err error) error {
	var se *Error
	if errors.As(err, &se) && se.Err != nil {
		return se.Err
	}
	return err
}
