package cardindex

import (
	"context"
	"sort"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// DefaultThreshold 划分官方 id 与扩展/变体 id：官方卡密最多 8 位，
// 动画/自定义/变体 id（如 511000818）不小于 9 位。
const DefaultThreshold domain.CardID = 100000000

// RecordSource 是一个可列出 (id, name) 的记录源（例如一个 .cdb 文件）。
type RecordSource interface {
	Name() string
	ListRecords(ctx context.Context) ([]domain.CardRecord, error)
}

// Index 是每次运行重建的内存索引，从不落盘。
//
// 不变量：
// - Names：每个 id 只记录第一次出现的名称（先读的源优先）
// - Canonical：只收录 id < Threshold 的记录；同名只保留第一次出现的 id
type Index struct {
	Names     map[domain.CardID]string
	Canonical map[string]domain.CardID
	Threshold domain.CardID
}

// Build 按顺序读取 sources 并构建索引。
//
// 单个源读取失败只产生 warning 并跳过；ctx 取消时立即返回已取消错误。
// sources 的顺序就是优先级：主卡库应排在扩展库之前。
func Build(ctx context.Context, sources []RecordSource, threshold domain.CardID) (Index, []domain.Warning, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	idx := Index{
		Names:     make(map[domain.CardID]string, 16384),
		Canonical: make(map[string]domain.CardID, 16384),
		Threshold: threshold,
	}
	warnings := make([]domain.Warning, 0, 4)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return Index{}, warnings, err
		}
		records, err := src.ListRecords(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Index{}, warnings, ctx.Err()
			}
			warnings = append(warnings, domain.Warning{Source: src.Name(), Msg: err.Error()})
			continue
		}
		for _, r := range records {
			idx.add(r)
		}
	}
	return idx, warnings, nil
}

func (idx *Index) add(r domain.CardRecord) {
	if r.ID == 0 {
		return
	}
	if _, ok := idx.Names[r.ID]; !ok {
		idx.Names[r.ID] = r.Name
	}
	if r.ID >= idx.Threshold || r.Name == "" {
		return
	}
	if _, ok := idx.Canonical[r.Name]; !ok {
		idx.Canonical[r.Name] = r.ID
	}
}

// Name 返回 id 的名称（未知 id 返回空串）。
func (idx Index) Name(id domain.CardID) string { return idx.Names[id] }

// Lookup 按精确名称查 canonical id。
func (idx Index) Lookup(name string) (domain.CardID, bool) {
	id, ok := idx.Canonical[name]
	return id, ok
}

// IDs 返回全部已知 id（升序，保证下游处理顺序稳定）。
func (idx Index) IDs() []domain.CardID {
	ids := make([]domain.CardID, 0, len(idx.Names))
	for id := range idx.Names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
