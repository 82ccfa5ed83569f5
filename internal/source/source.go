package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// maxBodyBytes 是单张卡图的读取上限；超过即按传输错误处理。
const maxBodyBytes = 32 << 20

// Source 是一个远端卡图源。
//
// 约束：
// - Fetch 不做缓存、不做重试（由上层策略链统一控制）
// - 成功 = 2xx 且 body 非空；其余一律返回 error
// - 返回的 url 即使失败也应是实际（或本应）请求的地址，用于报告追溯
type Source interface {
	Name() string
	Fetch(ctx context.Context, id domain.CardID) (body []byte, url string, err error)
}

// HTTP 按 {BaseURL}/{id}.jpg 拼接地址抓取卡图。
type HTTP struct {
	SourceName string
	BaseURL    string
	Client     *http.Client

	// Listing 可选：命中目录索引缺失时直接失败，不发请求。
	Listing *Listing
}

func (s *HTTP) Name() string { return s.SourceName }

// URL 返回 id 在该源上的图片地址。
func (s *HTTP) URL(id domain.CardID) string {
	return strings.TrimRight(strings.TrimSpace(s.BaseURL), "/") + "/" + id.FileName()
}

func (s *HTTP) Fetch(ctx context.Context, id domain.CardID) ([]byte, string, error) {
	u := s.URL(id)
	if s.Client == nil {
		return nil, u, errors.New("http client 不能为空")
	}
	if id == 0 {
		return nil, u, errors.New("id 不能为 0")
	}

	if s.Listing != nil {
		if known, present := s.Listing.Lookup(ctx, id); known && !present {
			return nil, u, ErrNotListed
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, u, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, u, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, u, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, u, err
	}
	if len(b) > maxBodyBytes {
		return nil, u, errors.New("响应 body 超过上限")
	}
	if len(b) == 0 {
		return nil, u, ErrEmptyBody
	}
	return b, u, nil
}
