package httpx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout 是 Options.Timeout 未设置时的总超时。
const DefaultTimeout = 20 * time.Second

// Transport 给每个榜单请求补 UA，并对失败的 GET/HEAD 做有界重试。
type Transport struct {
	Base *http.Transport

	ua uaPool

	// RetryMax 不含首次尝试；<=0 表示只尝试一次。
	RetryMax int

	// DisableKeepAlives 为 true 时每个请求都带 Connection: close。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case req == nil:
		return nil, errors.New("nil request")
	case t.Base == nil:
		return nil, errors.New("nil base transport")
	}

	tries := 1 + t.retries(req)
	var err error
	for i := 0; i < tries; i++ {
		var resp *http.Response
		if resp, err = t.Base.RoundTrip(t.prepare(req)); err == nil {
			return resp, nil
		}
		if req.Context().Err() != nil {
			break
		}
	}
	return nil, err
}

// retries 返回 req 允许的重试次数；带 body 或非幂等方法的请求不重试。
func (t *Transport) retries(req *http.Request) int {
	if t.RetryMax <= 0 || req.Body != nil {
		return 0
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return 0
	}
	return t.RetryMax
}

// prepare 返回 req 的副本，调用方的 Header 不会被改动。
func (t *Transport) prepare(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.ua.pick())
	}
	r.Close = t.DisableKeepAlives
	return r
}

// Options 是构造榜单抓取 client 的网络策略。
type Options struct {
	// ProxyURL 非空时所有请求走代理，且禁用 keep-alive（每请求新连接）。
	ProxyURL string
	// Timeout 是单次请求（含重试）的总超时；<=0 时使用默认值。
	Timeout time.Duration
	// RetryMax 是最大重试次数（不含首次尝试）；默认 0，即不重试。
	RetryMax int
}

// NewClient 构造用于 provider 页面抓取的 HTTP client。
//
// 规则：
// - 内置 UA 池：每个请求随机 UA（调用方显式设置的 UA 优先）
// - 只对可重放请求做有界重试；默认不重试
// - 总超时由 http.Client.Timeout 统一约束
func NewClient(opts Options) (*http.Client, error) {
	proxyURL := strings.TrimSpace(opts.ProxyURL)
	disableKeepAlives := false

	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy url needs scheme and host: %q", proxyURL)
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	retryMax := opts.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		RetryMax:          retryMax,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// uaPool 是只读的桌面浏览器 UA 列表。
type uaPool []string

func (p uaPool) pick() string { return p[rand.IntN(len(p))] }

var globalUA = uaPool{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:132.0) Gecko/20100101 Firefox/132.0",
}
