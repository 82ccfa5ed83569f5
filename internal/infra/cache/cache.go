package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/EDOSync/internal/domain"
	"github.com/John-Robertt/EDOSync/internal/infra/fsx"
)

// Store 是 <path>/pics/ 下的图片缓存（Asset Cache）。
//
// 约束：
// - 唯一的持久化状态就是 <id>.jpg 是否存在；不读内容、不校验
// - 一旦存在即永久满足该 id（后续运行不会再抓取）
// - dry-run：只允许读（ReadOnly=true）
type Store struct {
	Dir      string
	ReadOnly bool
}

var (
	ErrReadOnly = errors.New("cache: read-only")
	ErrEmpty    = errors.New("cache: 内容为空")
)

func New(dir string, readOnly bool) Store {
	return Store{
		Dir:      filepath.Clean(strings.TrimSpace(dir)),
		ReadOnly: readOnly,
	}
}

// Path 返回 id 对应图片的绝对路径。
func (s Store) Path(id domain.CardID) string {
	return filepath.Join(s.Dir, id.FileName())
}

// Has 只做 stat：存在且是普通文件即视为命中。
// 写入中的临时文件以 '.' 开头，永远不会被误判为命中。
func (s Store) Has(id domain.CardID) bool {
	if id == 0 {
		return false
	}
	fi, err := os.Stat(s.Path(id))
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// Write 原子写入 <id>.jpg。
//
// 目标已存在视为成功（idempotent）；失败时不会留下目标文件。
func (s Store) Write(id domain.CardID, b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if id == 0 {
		return fmt.Errorf("id 不能为 0")
	}
	if len(b) == 0 {
		return ErrEmpty
	}
	err := fsx.WriteFileAtomicNoOverwrite(s.Dir, id.FileName(), b)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

// EnsureDir 创建缓存目录。失败意味着任何 id 都不可能成功，调用方应中止整次运行。
func (s Store) EnsureDir() error {
	if s.ReadOnly {
		// dry-run 不创建目录；目录不存在时 Has 全部为 false，行为仍然正确。
		return nil
	}
	return fsx.EnsureDir(s.Dir)
}

// Count 统计目录中已缓存的 <id>.jpg 数量（用于启动时的概览输出）。
func (s Store) Count() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jpg") {
			continue
		}
		if _, ok := domain.ParseCardID(strings.TrimSuffix(name, ".jpg")); ok {
			n++
		}
	}
	return n, nil
}
