package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/EDOSync/internal/app/run"
	"github.com/John-Robertt/EDOSync/internal/config"
	"github.com/John-Robertt/EDOSync/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int

	// quietSkips 为 true 时不逐条打印缓存命中。
	quietSkips bool

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		quietSkips:         true,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "sync"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不请求/不写入)"
	}

	fmt.Fprintf(p.w, "[%s] EDOSync run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  primary: %s\n", sourceChain(eff.Primary))
	fmt.Fprintf(p.w, "  backup: %s\n", sourceChain(eff.Backup))
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  timeout: %s\n", eff.Timeout)
	if eff.RateLimit > 0 {
		fmt.Fprintf(p.w, "  rate_limit: %g/s\n", eff.RateLimit)
	}
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if len(eff.ExtraDatabases) > 0 {
		fmt.Fprintf(p.w, "  extra_databases: %s\n", formatStringListJSON(eff.ExtraDatabases))
	}
	fmt.Fprintf(p.w, "  overrides: %s\n", eff.OverridesPath)

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  pics: %s\n", eff.PicsDir)
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "index":
		fmt.Fprintf(p.w, "索引: sources=%d records=%d canonical=%d warnings=%d (%s)\n",
			intField(fields, "sources"),
			intField(fields, "records"),
			intField(fields, "canonical"),
			intField(fields, "warnings"),
			formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: cached=%d missing=%d skipped=%d manual=%d name=%d none=%d (%s)\n",
			intField(fields, "cached"),
			intField(fields, "missing"),
			intField(fields, "skipped"),
			intField(fields, "manual"),
			intField(fields, "name"),
			intField(fields, "none"),
			formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnWarning(w domain.Warning) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "警告: %s: %s\n", w.Source, truncate(w.Msg, 200))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	if line := formatItemLine(idx, total, res, dur); line != "" && !(p.quietSkips && res.Status == domain.StatusSkipped) {
		fmt.Fprintln(p.w, line)
		p.lastPrinted = time.Now()
	}

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

// printProgressLocked 输出一行 keepalive；调用方必须持有 p.mu。
func (p *progressUI) printProgressLocked() {
	active := p.workers
	if remain := p.total - p.done; remain < active {
		active = remain
	}
	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d active=%d elapsed=%s\n",
		p.done, p.total, p.ok, p.fail, p.skip, active, formatElapsed(time.Since(p.startedAt)),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					p.printProgressLocked()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// formatItemLine 渲染单个 id 的结果行。
func formatItemLine(idx, total int, res domain.ItemResult, dur time.Duration) string {
	label := res.ID.String()
	if name := strings.TrimSpace(res.Name); name != "" {
		label += " " + truncate(name, 48)
	}

	switch res.Status {
	case domain.StatusProcessed:
		return fmt.Sprintf("[%d/%d] %s OK %s%s (%s)",
			idx, total, label, formatVia(res), formatFallbackNote(res), formatShortDuration(dur),
		)
	case domain.StatusPlanned:
		if res.URL == "" {
			return fmt.Sprintf("[%d/%d] %s PLAN (无可用源)", idx, total, label)
		}
		return fmt.Sprintf("[%d/%d] %s PLAN %s %s", idx, total, label, res.Strategy, res.URL)
	case domain.StatusSkipped:
		return fmt.Sprintf("[%d/%d] %s SKIP (已存在)", idx, total, label)
	case domain.StatusFailed:
		chain := formatAttemptChain(res.Attempts, 3)
		if chain != "" {
			chain = " attempts=" + chain
		}
		return fmt.Sprintf("[%d/%d] %s FAIL %s: %s%s (%s)",
			idx, total, label, res.ErrorCode, truncate(res.ErrorMsg, 160), chain, formatShortDuration(dur),
		)
	default:
		return fmt.Sprintf("[%d/%d] %s %s", idx, total, label, strings.ToUpper(res.Status))
	}
}

// formatVia 形如 "name:ygoprodeck<-89631139"；本地 id 直接命中时省略 canonical。
func formatVia(res domain.ItemResult) string {
	s := res.Strategy + ":" + res.Source
	if res.Canonical != 0 && res.Canonical != res.ID {
		s += "<-" + res.Canonical.String()
	}
	return s
}

// formatFallbackNote 只在走到回退策略时说明前面的策略为何失败。
func formatFallbackNote(res domain.ItemResult) string {
	if res.Strategy != domain.StrategyFallback {
		return ""
	}
	for _, a := range res.Attempts {
		if a.Strategy == domain.StrategyFallback {
			break
		}
		msg := strings.TrimSpace(a.Error)
		if msg == "" {
			msg = a.Status
		}
		return " fallback(" + a.Strategy + " " + a.Source + " " + truncate(msg, 90) + ")"
	}
	return ""
}

func formatAttemptChain(attempts []domain.Attempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := a.Strategy + ":" + a.Source + ":" + a.Status
		if em := strings.TrimSpace(a.Error); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func sourceChain(specs []config.SourceSpec) string {
	if len(specs) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		n := s.Name
		if s.ListingURL != "" {
			n += "[listing]"
		}
		names = append(names, n)
	}
	return strings.Join(names, " -> ")
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
