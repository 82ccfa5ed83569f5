package source

import (
	"fmt"
	"strings"
)

// Registry 是远端源的只读有序表。
//
// - Primary：高质量源，只用于 manual/name 匹配得到的 canonical id
// - Backup：备用源，只用于本地 id 的直接回退
// 同一层内按声明顺序尝试。
type Registry struct {
	primary []Source
	backup  []Source
}

func NewRegistry(primary, backup []Source) (Registry, error) {
	seen := make(map[string]struct{}, len(primary)+len(backup))
	check := func(layer string, xs []Source) error {
		for _, s := range xs {
			if s == nil {
				return fmt.Errorf("%s source 不能为空", layer)
			}
			name := strings.ToLower(strings.TrimSpace(s.Name()))
			if name == "" {
				return fmt.Errorf("%s source.Name 不能为空", layer)
			}
			if _, ok := seen[name]; ok {
				return fmt.Errorf("重复的 source：%q", name)
			}
			seen[name] = struct{}{}
		}
		return nil
	}
	if err := check("primary", primary); err != nil {
		return Registry{}, err
	}
	if err := check("backup", backup); err != nil {
		return Registry{}, err
	}
	if len(primary)+len(backup) == 0 {
		return Registry{}, fmt.Errorf("至少需要一个 source")
	}
	return Registry{
		primary: append([]Source(nil), primary...),
		backup:  append([]Source(nil), backup...),
	}, nil
}

func (r Registry) Primary() []Source { return r.primary }

func (r Registry) Backup() []Source { return r.backup }
