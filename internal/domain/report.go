package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusPlanned   = "planned"
)

const (
	ErrCodeNotFound      = "not_found"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeCanceled      = "canceled"
	ErrCodeConfigInvalid = "config_invalid"
)

// 单次远端尝试的结果分类（attempt.status）。
const (
	AttemptOK         = "ok"
	AttemptHTTPStatus = "http_status"
	AttemptEmptyBody  = "empty_body"
	AttemptNotListed  = "not_listed"
	AttemptTimeout    = "timeout"
	AttemptTransport  = "transport"
	AttemptCanceled   = "canceled"
)

// 策略链中的步骤名（attempt.strategy / item.strategy）。
const (
	StrategyManual   = "manual"
	StrategyName     = "name"
	StrategyFallback = "fallback"
)

// RunReport 是对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary `json:"summary"`
	Items    []ItemResult  `json:"items"`
	Warnings []Warning     `json:"warnings"`
}

type ReportSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Planned   int `json:"planned"`
}

// ItemResult 是单个 id 的结果记录（每个 id 恰好一条）。
//
// 约束：
// - Source/Strategy/URL 仅在 processed（或 dry-run 的 planned）时非空
// - Canonical 为实际用于抓取的远端 id；回退到本地 id 时等于 ID
type ItemResult struct {
	ID         CardID     `json:"id"`
	Name       string     `json:"name"`
	Resolution Resolution `json:"resolution"`

	Status    string `json:"status"`
	Strategy  string `json:"strategy,omitempty"`
	Source    string `json:"source,omitempty"`
	URL       string `json:"url,omitempty"`
	Canonical CardID `json:"canonical,omitempty"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Attempts []Attempt `json:"attempts"`
}

// Attempt 记录一次远端请求（或被 listing 短路的请求）。
type Attempt struct {
	Strategy string `json:"strategy"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按 id 升序；id==0 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].ID
		b := r.Items[j].ID
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})

	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	if r.Warnings == nil {
		r.Warnings = []Warning{}
	}

	s := ReportSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusPlanned:
			s.Planned++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
