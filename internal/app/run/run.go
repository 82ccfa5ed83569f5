package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/John-Robertt/EDOSync/internal/app/planner"
	"github.com/John-Robertt/EDOSync/internal/cardindex"
	"github.com/John-Robertt/EDOSync/internal/cdb"
	"github.com/John-Robertt/EDOSync/internal/config"
	"github.com/John-Robertt/EDOSync/internal/domain"
	"github.com/John-Robertt/EDOSync/internal/infra/cache"
	"github.com/John-Robertt/EDOSync/internal/override"
	"github.com/John-Robertt/EDOSync/internal/resolve"
	"github.com/John-Robertt/EDOSync/internal/source"
)

// Store 是执行阶段需要的缓存能力（cache.Store 的最小子集）。
type Store interface {
	Has(id domain.CardID) bool
	Write(id domain.CardID, b []byte) error
}

// Deps 是一次运行的外部协作者。除 Registry 外都可以为空，为空时按 eff 构造默认实现。
type Deps struct {
	Registry source.Registry

	// Records 为 nil 时使用 cdb.Discover(eff.Path, eff.ExtraDatabases)。
	Records []cardindex.RecordSource
	// Overrides 为 nil 时从 eff.OverridesPath 加载（文件不存在视为空映射）。
	Overrides resolve.Overrides
	// Store 为 nil 时使用 <path>/pics。
	Store Store
}

// Options 是执行阶段的参数。
type Options struct {
	Concurrency int
	DryRun      bool
}

// ExecuteWithObserver 执行一次完整的同步：建索引 -> 规划 -> 抓取，并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。obs 可以为 nil。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	obs.OnStart(eff)

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Path:      eff.Path,
		DryRun:    eff.DryRun,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 1024),
	}
	fatal := func(code, msg string) domain.RunReport {
		rr.Items = append(rr.Items, syntheticFailed(code, msg))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	store := deps.Store
	if store == nil {
		cs := cache.New(eff.PicsDir, eff.DryRun)
		// 目录不可用时任何 id 都不可能成功：整次运行中止。
		if err := cs.EnsureDir(); err != nil {
			return fatal(domain.ErrCodeIOFailed, fmt.Sprintf("创建卡图目录失败：%v", err))
		}
		store = cs
	}
	cached := -1
	if c, ok := store.(interface{ Count() (int, error) }); ok {
		if n, err := c.Count(); err == nil {
			cached = n
		}
	}

	overrides := deps.Overrides
	if overrides == nil {
		m, err := override.Load(eff.OverridesPath)
		if err != nil {
			return fatal(domain.ErrCodeConfigInvalid, err.Error())
		}
		overrides = m
	}

	records := deps.Records
	if records == nil {
		for _, s := range cdb.Discover(eff.Path, eff.ExtraDatabases) {
			records = append(records, s)
		}
	}

	indexStarted := time.Now()
	idx, warnings, err := cardindex.Build(ctx, records, domain.CardID(eff.CanonicalThreshold))
	for _, w := range warnings {
		obs.OnWarning(w)
	}
	rr.Warnings = warnings
	if err != nil {
		return fatal(domain.ErrCodeCanceled, fmt.Sprintf("构建索引被中断：%v", err))
	}
	obs.OnPhaseDone("index", map[string]any{
		"sources":   len(records),
		"records":   len(idx.Names),
		"canonical": len(idx.Canonical),
		"warnings":  len(warnings),
	}, time.Since(indexStarted))

	suffixes := eff.VariantSuffixes
	if len(suffixes) == 0 {
		suffixes = resolve.DefaultSuffixes
	}
	resolver := resolve.Resolver{
		Canonical: idx,
		Suffixes:  resolve.NewSuffixSet(suffixes...),
		Overrides: overrides,
	}

	planStarted := time.Now()
	plans, skipped := planner.Plan(idx, store, resolver)
	var manual, byName, none int
	for _, p := range plans {
		switch p.Resolution.Kind {
		case domain.ResolveManual:
			manual++
		case domain.ResolveName:
			byName++
		default:
			none++
		}
	}
	planFields := map[string]any{
		"missing": len(plans),
		"skipped": len(skipped),
		"manual":  manual,
		"name":    byName,
		"none":    none,
	}
	if cached >= 0 {
		planFields["cached"] = cached
	}
	obs.OnPhaseDone("plan", planFields, time.Since(planStarted))

	opts := Options{Concurrency: eff.Concurrency, DryRun: eff.DryRun}
	total := len(skipped) + len(plans)
	obs.OnPhaseDone("exec", map[string]any{
		"workers":     workerCount(opts.Concurrency, len(plans)),
		"total_items": total,
	}, 0)

	// 缓存命中的 id 同样产出一条结果事件，保证“每个 id 恰好一次”。
	for i, it := range skipped {
		rr.Items = append(rr.Items, it)
		obs.OnItemDone(i+1, total, it, 0)
	}

	exec := Deps{Registry: deps.Registry, Store: store}
	rr.Items = append(rr.Items, execute(ctx, exec, opts, plans, obs, len(skipped), total)...)

	for _, w := range listingWarnings(deps.Registry) {
		obs.OnWarning(w)
		rr.Warnings = append(rr.Warnings, w)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// Execute 对计划中的每个 id 执行策略链，返回每个 id 恰好一条结果（顺序为完成顺序）。
// deps.Store 不能为空；obs 可以为 nil。
func Execute(ctx context.Context, deps Deps, opts Options, plans []domain.ItemPlan, obs Observer) []domain.ItemResult {
	if obs == nil {
		obs = nopObserver{}
	}
	return execute(ctx, deps, opts, plans, obs, 0, len(plans))
}

func execute(ctx context.Context, deps Deps, opts Options, plans []domain.ItemPlan, obs Observer, base, total int) []domain.ItemResult {
	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	results := make(chan execResult, len(plans))
	gate := semaphore.NewWeighted(int64(workerCount(opts.Concurrency, 0)))

	var wg sync.WaitGroup
	go func() {
		for i, p := range plans {
			// 准入：拿到槽位后才允许发起任何网络请求。
			if err := gate.Acquire(ctx, 1); err != nil {
				for _, rest := range plans[i:] {
					results <- execResult{res: canceledItem(rest)}
				}
				break
			}
			wg.Add(1)
			go func(p domain.ItemPlan) {
				defer wg.Done()
				defer gate.Release(1)

				started := time.Now()
				res := execOne(ctx, deps, opts.DryRun, p)
				results <- execResult{res: res, dur: time.Since(started)}
			}(p)
		}
		wg.Wait()
		close(results)
	}()

	out := make([]domain.ItemResult, 0, len(plans))
	done := base
	for r := range results {
		done++
		out = append(out, r.res)
		obs.OnItemDone(done, total, r.res, r.dur)
	}
	return out
}

// workerCount 规范化并发上限；n>0 时不超过 n（仅用于展示）。
func workerCount(concurrency, n int) int {
	w := concurrency
	if w < 1 {
		w = 1
	}
	if w > config.MaxConcurrency {
		w = config.MaxConcurrency
	}
	if n > 0 && n < w {
		w = n
	}
	return w
}

// step 是策略链中的一步：用 id 依次尝试 sources。
type step struct {
	strategy string
	id       domain.CardID
	sources  []source.Source
}

// strategyChain 为一个 id 生成有序策略链：manual|name（主源，canonical id）-> fallback（备用源，本地 id）。
func strategyChain(reg source.Registry, p domain.ItemPlan) []step {
	steps := make([]step, 0, 2)
	if p.Resolution.Matched() {
		strategy := domain.StrategyName
		if p.Resolution.Kind == domain.ResolveManual {
			strategy = domain.StrategyManual
		}
		steps = append(steps, step{strategy: strategy, id: p.Resolution.Canonical, sources: reg.Primary()})
	}
	steps = append(steps, step{strategy: domain.StrategyFallback, id: p.ID, sources: reg.Backup()})
	return steps
}

type urlSource interface {
	URL(id domain.CardID) string
}

func execOne(ctx context.Context, deps Deps, dryRun bool, p domain.ItemPlan) domain.ItemResult {
	item := domain.ItemResult{
		ID:         p.ID,
		Name:       p.Name,
		Resolution: p.Resolution,
		Attempts:   []domain.Attempt{},
	}
	steps := strategyChain(deps.Registry, p)

	// dry-run：不发请求、不写入，只报告第一个会被尝试的地址。
	if dryRun {
		item.Status = domain.StatusPlanned
		for _, st := range steps {
			if len(st.sources) == 0 {
				continue
			}
			s := st.sources[0]
			item.Strategy = st.strategy
			item.Source = s.Name()
			item.Canonical = st.id
			if us, ok := s.(urlSource); ok {
				item.URL = us.URL(st.id)
			}
			break
		}
		return item
	}

	for _, st := range steps {
		if ctx.Err() != nil {
			return markCanceled(item)
		}
		res, attempts, err := source.FetchFirst(ctx, st.sources, st.id, st.strategy)
		item.Attempts = append(item.Attempts, attempts...)
		if err != nil {
			if ctx.Err() != nil {
				return markCanceled(item)
			}
			continue
		}

		// 图片按本地 id 命名：同一张卡图可被多个 id 共享。
		if err := deps.Store.Write(p.ID, res.Body); err != nil {
			item.Status = domain.StatusFailed
			item.ErrorCode = domain.ErrCodeIOFailed
			item.ErrorMsg = fmt.Sprintf("写入 %s 失败：%v", p.ID.FileName(), err)
			return item
		}
		item.Status = domain.StatusProcessed
		item.Strategy = st.strategy
		item.Source = res.Source
		item.URL = res.URL
		item.Canonical = st.id
		return item
	}

	item.Status = domain.StatusFailed
	item.ErrorCode = domain.ErrCodeNotFound
	item.ErrorMsg = fmt.Sprintf("所有策略均未找到卡图（共 %d 次尝试）", len(item.Attempts))
	return item
}

func markCanceled(item domain.ItemResult) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = domain.ErrCodeCanceled
	item.ErrorMsg = "运行已取消"
	return item
}

func canceledItem(p domain.ItemPlan) domain.ItemResult {
	return markCanceled(domain.ItemResult{
		ID:         p.ID,
		Name:       p.Name,
		Resolution: p.Resolution,
		Attempts:   []domain.Attempt{},
	})
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Resolution: domain.NoMatch(),
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Attempts:   []domain.Attempt{},
	}
}

// listingWarnings 报告本次运行中加载失败的目录索引（对应源已退化为直接请求）。
func listingWarnings(reg source.Registry) []domain.Warning {
	var out []domain.Warning
	for _, layer := range [][]source.Source{reg.Primary(), reg.Backup()} {
		for _, s := range layer {
			h, ok := s.(*source.HTTP)
			if !ok || h.Listing == nil {
				continue
			}
			if err := h.Listing.Err(); err != nil {
				out = append(out, domain.Warning{
					Source: h.Name(),
					Msg:    fmt.Sprintf("目录索引不可用，已改为直接请求：%v", err),
				})
			}
		}
	}
	return out
}
