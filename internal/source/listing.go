package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// Listing 是某个源的 HTML 目录索引（例如 nginx autoindex / 镜像站文件列表）。
//
// 首次 Lookup 时加载一次；加载失败则永久视为“未知”，调用方照常发请求。
type Listing struct {
	URL    string
	Client *http.Client

	once sync.Once
	ids  map[domain.CardID]struct{}
	err  error
}

// Lookup 返回 (known, present)：known=false 表示索引不可用。
func (l *Listing) Lookup(ctx context.Context, id domain.CardID) (known bool, present bool) {
	l.once.Do(func() {
		l.ids, l.err = l.load(ctx)
	})
	if l.err != nil {
		return false, false
	}
	_, ok := l.ids[id]
	return true, ok
}

// Err 返回索引加载错误（未加载或成功时为 nil）。
func (l *Listing) Err() error { return l.err }

func (l *Listing) load(ctx context.Context) (map[domain.CardID]struct{}, error) {
	if l.Client == nil {
		return nil, fmt.Errorf("listing client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: l.URL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	ids := ParseListing(doc)
	if len(ids) == 0 {
		// 空索引更可能是页面结构变化而不是源真的为空：不信任它。
		return nil, fmt.Errorf("目录索引中未找到任何 <id>.jpg 链接")
	}
	return ids, nil
}

// ParseListing 从目录页提取所有指向 <id>.jpg 的链接。
func ParseListing(doc *goquery.Document) map[domain.CardID]struct{} {
	ids := make(map[domain.CardID]struct{}, 1024)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			href = u.Path
		}
		base := path.Base(href)
		if !strings.HasSuffix(strings.ToLower(base), ".jpg") {
			return
		}
		if id, ok := domain.ParseCardID(base[:len(base)-len(".jpg")]); ok {
			ids[id] = struct{}{}
		}
	})
	return ids
}
