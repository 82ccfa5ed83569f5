package planner

import (
	"github.com/John-Robertt/EDOSync/internal/domain"
)

// Index 是计划阶段需要的只读索引视图。
type Index interface {
	IDs() []domain.CardID
	Name(id domain.CardID) string
}

// Cache 只需要回答“图片是否已存在”。
type Cache interface {
	Has(id domain.CardID) bool
}

// Resolver 对单个 (id, name) 给出确定性的解析结果。
type Resolver interface {
	Resolve(id domain.CardID, name string) domain.Resolution
}

// Plan 基于索引 + 缓存现状生成执行计划（不做任何网络请求与写入）。
//
// 约束：
// - 已有 <id>.jpg 的 id 直接产出 skipped 结果，不做名称解析
// - 其余 id 按 IDs() 的顺序（升序）产出 ItemPlan
func Plan(idx Index, cache Cache, r Resolver) (plans []domain.ItemPlan, skipped []domain.ItemResult) {
	ids := idx.IDs()
	plans = make([]domain.ItemPlan, 0, len(ids))
	for _, id := range ids {
		name := idx.Name(id)
		if cache.Has(id) {
			skipped = append(skipped, SkippedResult(id, name))
			continue
		}
		plans = append(plans, PlanItem(id, name, r))
	}
	return plans, skipped
}

// PlanItem 为单个缺图 id 生成计划。
func PlanItem(id domain.CardID, name string, r Resolver) domain.ItemPlan {
	return domain.ItemPlan{
		ID:         id,
		Name:       name,
		Resolution: r.Resolve(id, name),
	}
}

// SkippedResult 是缓存命中时的结果条目。
func SkippedResult(id domain.CardID, name string) domain.ItemResult {
	return domain.ItemResult{
		ID:         id,
		Name:       name,
		Resolution: domain.NoMatch(),
		Status:     domain.StatusSkipped,
		Attempts:   []domain.Attempt{},
	}
}
