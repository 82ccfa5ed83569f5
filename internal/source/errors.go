package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

var (
	// ErrEmptyBody 表示远端返回 2xx 但 body 为空（按契约视为失败）。
	ErrEmptyBody = errors.New("响应 body 为空")
	// ErrNotListed 表示该源的目录索引中没有此 id，未发出请求。
	ErrNotListed = errors.New("目录索引中不存在")
)

// HTTPStatusError 表示远端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Classify 把一次尝试的错误归类为 attempt.status。
func Classify(err error) string {
	if err == nil {
		return domain.AttemptOK
	}
	var hs *HTTPStatusError
	switch {
	case errors.As(err, &hs):
		return domain.AttemptHTTPStatus
	case errors.Is(err, ErrEmptyBody):
		return domain.AttemptEmptyBody
	case errors.Is(err, ErrNotListed):
		return domain.AttemptNotListed
	case errors.Is(err, context.Canceled):
		return domain.AttemptCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.AttemptTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.AttemptTimeout
	}
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return domain.AttemptTimeout
	}
	return domain.AttemptTransport
}
