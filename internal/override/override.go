package override

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/EDOSync/internal/domain"
)

// Map 是人工映射：本地 id（字符串形态）-> 用于抓图的 canonical id。
// 每次运行只加载一次，之后只读。
type Map map[string]domain.CardID

func (m Map) Get(id string) (domain.CardID, bool) {
	to, ok := m[id]
	return to, ok
}

// Error 是映射文件的解析错误（带文件路径，便于用户定位）。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("人工映射文件 %q 无效：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load 按扩展名读取映射文件：.json / .toml / .yaml / .yml。
//
// path 为空或文件不存在时返回空映射，不算错误。
// 文档形态固定为扁平对象：{"<本地 id>": <canonical id>}，值可为数字或数字字符串。
func Load(path string) (Map, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Map{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return nil, &Error{Path: path, Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Map{}, nil
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		err = dec.Decode(&raw)
	case ".toml":
		err = toml.Unmarshal(b, &raw)
	case ".yaml", ".yml":
		// YAML 的数字键会被解析为 int，先收进 map[any]any 再统一转成字符串键。
		y := map[any]any{}
		if err = yaml.Unmarshal(b, &y); err == nil {
			for k, v := range y {
				raw[fmt.Sprint(k)] = v
			}
		}
	default:
		err = fmt.Errorf("不支持的扩展名 %q（仅支持 .json/.toml/.yaml/.yml）", filepath.Ext(path))
	}
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	m, err := fromRaw(raw)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return m, nil
}

func fromRaw(raw map[string]any) (Map, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	// 排序只为让错误信息稳定（总是报告字典序最小的坏条目）。
	sort.Strings(keys)

	m := make(Map, len(raw))
	for _, k := range keys {
		from, ok := domain.ParseCardID(k)
		if !ok {
			return nil, fmt.Errorf("键 %q 不是合法的卡片 id", k)
		}
		to, ok := toCardID(raw[k])
		if !ok {
			return nil, fmt.Errorf("%q 的值 %v 不是合法的卡片 id", k, raw[k])
		}
		m[from.String()] = to
	}
	return m, nil
}

func toCardID(v any) (domain.CardID, bool) {
	switch x := v.(type) {
	case json.Number:
		return domain.ParseCardID(x.String())
	case string:
		return domain.ParseCardID(x)
	case int:
		if x > 0 {
			return domain.CardID(x), true
		}
	case int64:
		if x > 0 {
			return domain.CardID(x), true
		}
	case uint64:
		if x > 0 {
			return domain.CardID(x), true
		}
	case float64:
		if x > 0 && x == float64(uint64(x)) {
			return domain.CardID(x), true
		}
	}
	return 0, false
}
