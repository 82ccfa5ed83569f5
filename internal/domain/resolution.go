package domain

// ResolutionKind 描述某个 id 的图片应向哪个远端 id 借用。
type ResolutionKind string

const (
	ResolveManual ResolutionKind = "manual"
	ResolveName   ResolutionKind = "name"
	ResolveNone   ResolutionKind = "none"
)

// Resolution 是 Name Resolver 的结果。
//
// - manual/name：Canonical 为要在主源上抓取的 id
// - none：Canonical 为 0，只走备用源的直接 id 回退
// Suffix 仅在 name 匹配经过后缀剥离时非空，用于报告追溯。
type Resolution struct {
	Kind      ResolutionKind `json:"kind"`
	Canonical CardID         `json:"canonical,omitempty"`
	Suffix    string         `json:"suffix,omitempty"`
}

func ManualMatch(id CardID) Resolution { return Resolution{Kind: ResolveManual, Canonical: id} }

func NameMatch(id CardID) Resolution { return Resolution{Kind: ResolveName, Canonical: id} }

func NoMatch() Resolution { return Resolution{Kind: ResolveNone} }

// Matched 报告是否得到了可在主源上使用的 canonical id。
func (r Resolution) Matched() bool {
	return (r.Kind == ResolveManual || r.Kind == ResolveName) && r.Canonical != 0
}
