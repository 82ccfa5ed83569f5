package resolve

import (
	"strings"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// DefaultSuffixes 是已知的变体后缀（顺序即尝试顺序）。
// 带括号的写法排在裸写法之前：" (GOAT)" 必须先于 " GOAT" 尝试。
var DefaultSuffixes = []string{
	" (Pre-Errata)",
	" (GOAT)",
	" GOAT",
	" (Anime)",
	" (Manga)",
}

// SuffixSet 是有序、去重的变体后缀集合。
type SuffixSet struct {
	list []string
}

// NewSuffixSet 保留声明顺序；空串与重复项被丢弃（后缀本身的空白是有意义的，不做 trim）。
func NewSuffixSet(suffixes ...string) SuffixSet {
	seen := make(map[string]struct{}, len(suffixes))
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return SuffixSet{list: out}
}

// Canonical 是 name -> canonical id 的只读查询。
type Canonical interface {
	Lookup(name string) (domain.CardID, bool)
}

// Overrides 是本地 id（字符串形态）-> canonical id 的只读查询。
type Overrides interface {
	Get(id string) (domain.CardID, bool)
}

// Resolve 决定 id 的图片应向哪个 canonical id 借用。
//
// 严格按顺序，首个成功即返回：
// 1) 人工映射
// 2) 名称精确匹配
// 3) 按声明顺序剥离一个结尾后缀后匹配（只剥一次，只剥结尾）
// 4) none
func Resolve(id domain.CardID, name string, canonical Canonical, suffixes SuffixSet, overrides Overrides) domain.Resolution {
	if overrides != nil {
		if to, ok := overrides.Get(id.String()); ok {
			return domain.ManualMatch(to)
		}
	}
	if canonical == nil || name == "" {
		return domain.NoMatch()
	}
	if to, ok := canonical.Lookup(name); ok {
		return domain.NameMatch(to)
	}
	for _, suf := range suffixes.list {
		if !strings.HasSuffix(name, suf) {
			continue
		}
		stripped := strings.TrimSuffix(name, suf)
		if stripped == "" {
			continue
		}
		if to, ok := canonical.Lookup(stripped); ok {
			r := domain.NameMatch(to)
			r.Suffix = suf
			return r
		}
	}
	return domain.NoMatch()
}

// Resolver 把一次运行中不变的输入捆在一起，供规划阶段逐 id 调用。
type Resolver struct {
	Canonical Canonical
	Suffixes  SuffixSet
	Overrides Overrides
}

func (r Resolver) Resolve(id domain.CardID, name string) domain.Resolution {
	return Resolve(id, name, r.Canonical, r.Suffixes, r.Overrides)
}
