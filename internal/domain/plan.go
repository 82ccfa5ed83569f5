package domain

// ItemPlan 是对某个缺图 id 的最小执行计划。
//
// 计划阶段已完成缓存检查与名称解析；执行阶段只负责按策略链抓取。
type ItemPlan struct {
	ID         CardID
	Name       string
	Resolution Resolution
}
