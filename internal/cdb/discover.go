package cdb

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CoreName 是 EDOPro 根目录下的主卡库文件名。
const CoreName = "cards.cdb"

// Discover 返回 root 下应读取的数据库列表（顺序即优先级）。
//
// 规则（固定）：
// 1) <root>/cards.cdb 永远排第一（即使不存在：由读取阶段记录 warning）
// 2) <root>/expansions/*.cdb 按文件名字典序
// 3) extra：来自配置文件，相对路径按 root 解析；重复路径只保留第一次出现
func Discover(root string, extra []string) []Source {
	root = filepath.Clean(root)

	paths := []string{filepath.Join(root, CoreName)}

	entries, err := os.ReadDir(filepath.Join(root, "expansions"))
	if err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(e.Name()), ".cdb") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			paths = append(paths, filepath.Join(root, "expansions", n))
		}
	}

	for _, x := range extra {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if !filepath.IsAbs(x) {
			x = filepath.Join(root, x)
		}
		paths = append(paths, filepath.Clean(x))
	}

	seen := make(map[string]struct{}, len(paths))
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, Source{Path: p})
	}
	return out
}
