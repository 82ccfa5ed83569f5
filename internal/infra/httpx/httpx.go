package httpx

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 20 * time.Second
)

// Transport 把“UA 池 + 代理 + 全局限速”固化为统一策略。
//
// 不做重试：同一 URL 失败即视为该次尝试失败，由上层策略链决定下一步。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// Limiter 非空时，每个请求发出前必须先拿到令牌（等待可被 ctx 取消）。
	Limiter *rate.Limiter

	// Timeout 从拿到令牌后开始计时，覆盖发请求与读 body；排队时间不计入。<=0 不设上限。
	Timeout time.Duration
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	ctx := req.Context()
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	cancel := context.CancelFunc(func() {})
	if t.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
	}

	r := req.Clone(ctx)
	if r.Header.Get("User-Agent") == "" && t.ua != nil {
		r.Header.Set("User-Agent", t.ua.random())
	}
	resp, err := t.Base.RoundTrip(r)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose 在 body 关闭时释放单次请求的超时 ctx。
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Options 是图片下载 client 的可配置项。
type Options struct {
	ProxyURL string
	// Timeout 是单次请求（含读 body）的上限；<=0 使用 DefaultTimeout。
	Timeout time.Duration
	// RateLimit 是全局每秒请求数上限；<=0 表示不限速。
	RateLimit float64
	// Burst 是限速器的突发容量；<=0 时取 1。
	Burst int
}

// NewImageClient 构造用于卡图下载的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理
// - 内置 UA 池：每个请求随机 UA
// - 单请求超时（不含限速排队）；超时由上层视为该次尝试失败
func NewImageClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   64,
	}

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 缺少 scheme 或 host")
		}
		base.Proxy = http.ProxyURL(u)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := &Transport{
		Base:    base,
		ua:      globalUA,
		Timeout: timeout,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		tr.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	// 超时由 Transport 负责；http.Client.Timeout 会把限速排队也算进去。
	return &http.Client{Transport: tr}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
