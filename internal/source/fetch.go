package source

import (
	"context"
	"fmt"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// Result 是一次成功抓取。
type Result struct {
	Body   []byte
	URL    string
	Source string
}

// FetchFirst 按声明顺序在 sources 上抓取 id，返回第一个成功结果。
//
// 每个源只请求一次；所有尝试（含失败原因）都记录在 attempts 中。
// ctx 已取消时立即停止，不再尝试后续源。
func FetchFirst(ctx context.Context, sources []Source, id domain.CardID, strategy string) (Result, []domain.Attempt, error) {
	attempts := make([]domain.Attempt, 0, len(sources))

	var lastErr error
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			return Result{}, attempts, err
		}

		b, u, err := s.Fetch(ctx, id)
		a := domain.Attempt{
			Strategy: strategy,
			Source:   s.Name(),
			URL:      u,
			Status:   Classify(err),
		}
		if err != nil {
			a.Error = err.Error()
			attempts = append(attempts, a)
			lastErr = err
			continue
		}
		attempts = append(attempts, a)
		return Result{Body: b, URL: u, Source: s.Name()}, attempts, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("无可用 source")
	}
	return Result{}, attempts, lastErr
}
