package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 edosync 配置文件。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// DefaultConcurrency 是同时在途的网络请求上限的内置默认值。
	DefaultConcurrency = 50
	// MaxConcurrency 是并发上限的截断值。
	MaxConcurrency = 256
	// DefaultTimeout 是单次请求的超时。
	DefaultTimeout = 20 * time.Second

	// PicsDirName 是 EDOPro 根目录下的卡图目录。
	PicsDirName = "pics"
	// DefaultOverridesName 是未配置 overrides 时尝试读取的人工映射文件（不存在不报错）。
	DefaultOverridesName = "overrides.json"

	envPrefix = "EDOSYNC"
)

// 配置文件候选名（按顺序取第一个存在的）。
var fileNames = []string{"edosync.json", "edosync.yaml", "edosync.yml", "edosync.toml"}

// DefaultPrimarySources 是官方高清卡图源。
var DefaultPrimarySources = []SourceSpec{
	{Name: "ygoprodeck", BaseURL: "https://images.ygoprodeck.com/images/cards"},
}

// DefaultBackupSources 用于本地 id 的直接回退（勘误前、GOAT、动画卡等）。
var DefaultBackupSources = []SourceSpec{
	{Name: "projectignis", BaseURL: "https://raw.githubusercontent.com/ProjectIgnis/Images/master/pics"},
}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --dry-run=false 必须能覆盖 config.dry_run=true。
type CLIArgs struct {
	Path string

	Concurrency    int
	ConcurrencySet bool

	DryRun    bool
	DryRunSet bool

	Overrides string
}

// FileConfig 对应 edosync.{json,yaml,toml} 的解析结构。
type FileConfig struct {
	Path               string         `mapstructure:"path"`
	Concurrency        int            `mapstructure:"concurrency"`
	Timeout            string         `mapstructure:"timeout"`
	RateLimit          float64        `mapstructure:"rate_limit"`
	Proxy              ProxyConfig    `mapstructure:"proxy"`
	PrimarySources     []SourceConfig `mapstructure:"primary_sources"`
	BackupSources      []SourceConfig `mapstructure:"backup_sources"`
	ExtraDatabases     []string       `mapstructure:"extra_databases"`
	Overrides          string         `mapstructure:"overrides"`
	VariantSuffixes    []string       `mapstructure:"variant_suffixes"`
	CanonicalThreshold uint64         `mapstructure:"canonical_threshold"`
	DryRun             *bool          `mapstructure:"dry_run"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url"`
}

type SourceConfig struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	ListingURL string `mapstructure:"listing_url"`
}

// SourceSpec 是校验后的远端源定义。
type SourceSpec struct {
	Name       string
	BaseURL    string
	ListingURL string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path    string
	PicsDir string
	DryRun  bool

	Concurrency int
	Timeout     time.Duration
	RateLimit   float64
	ProxyURL    string

	Primary []SourceSpec
	Backup  []SourceSpec

	ExtraDatabases []string
	OverridesPath  string

	// VariantSuffixes 为空表示使用内置默认后缀。
	VariantSuffixes []string
	// CanonicalThreshold 为 0 表示使用内置默认阈值。
	CanonicalThreshold uint64
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/edosync.*（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/edosync.*（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：CLI > 环境变量 EDOSYNC_* > 配置文件 > 默认值
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath, exists := findConfigFile(absPath)
		fc, err := readFileConfig(cfgPath, exists)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, absPath, cli, fc, cfgPath)
	}

	cfgPath, exists := findConfigFile(cwdAbs)
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	fc, err := readFileConfig(cfgPath, true)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	// 配置文件中的相对 path 以配置文件所在目录为基准。
	absPath := absCleanFrom(filepath.Dir(cfgPath), fc.Path)
	return merge(cwdAbs, absPath, cli, fc, cfgPath)
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	dryRun := false
	if cli.DryRunSet {
		dryRun = cli.DryRun
	} else if fc.DryRun != nil {
		dryRun = *fc.DryRun
	}

	timeout := DefaultTimeout
	if s := strings.TrimSpace(fc.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return invalid(fmt.Errorf("timeout 无效：%q", s))
		}
		timeout = d
	}

	if fc.RateLimit < 0 {
		return invalid(fmt.Errorf("rate_limit 不能为负数：%v", fc.RateLimit))
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}

	primary, err := buildSources("primary_sources", fc.PrimarySources, DefaultPrimarySources)
	if err != nil {
		return invalid(err)
	}
	backup, err := buildSources("backup_sources", fc.BackupSources, DefaultBackupSources)
	if err != nil {
		return invalid(err)
	}
	if err := checkUniqueNames(primary, backup); err != nil {
		return invalid(err)
	}

	// overrides：CLI（相对 cwd）> 配置（相对 path）> <path>/overrides.json
	overrides := filepath.Join(absPath, DefaultOverridesName)
	if s := strings.TrimSpace(cli.Overrides); s != "" {
		overrides = absCleanFrom(cwdAbs, s)
	} else if s := strings.TrimSpace(fc.Overrides); s != "" {
		overrides = absCleanFrom(absPath, s)
	}

	return EffectiveConfig{
		Path:               absPath,
		PicsDir:            filepath.Join(absPath, PicsDirName),
		DryRun:             dryRun,
		Concurrency:        concurrency,
		Timeout:            timeout,
		RateLimit:          fc.RateLimit,
		ProxyURL:           proxyURL,
		Primary:            primary,
		Backup:             backup,
		ExtraDatabases:     append([]string(nil), fc.ExtraDatabases...),
		OverridesPath:      overrides,
		VariantSuffixes:    append([]string(nil), fc.VariantSuffixes...),
		CanonicalThreshold: fc.CanonicalThreshold,
	}, nil
}

func buildSources(field string, in []SourceConfig, def []SourceSpec) ([]SourceSpec, error) {
	if len(in) == 0 {
		return append([]SourceSpec(nil), def...), nil
	}
	out := make([]SourceSpec, 0, len(in))
	for i, sc := range in {
		base := strings.TrimSpace(sc.BaseURL)
		u, err := parseHTTPURL(base)
		if err != nil {
			return nil, fmt.Errorf("%s[%d].base_url 无效：%w", field, i, err)
		}
		listing := strings.TrimSpace(sc.ListingURL)
		if listing != "" {
			if _, err := parseHTTPURL(listing); err != nil {
				return nil, fmt.Errorf("%s[%d].listing_url 无效：%w", field, i, err)
			}
		}
		name := strings.ToLower(strings.TrimSpace(sc.Name))
		if name == "" {
			name = strings.ToLower(u.Host)
		}
		out = append(out, SourceSpec{Name: name, BaseURL: strings.TrimRight(base, "/"), ListingURL: listing})
	}
	return out, nil
}

func checkUniqueNames(layers ...[]SourceSpec) error {
	seen := map[string]struct{}{}
	for _, l := range layers {
		for _, s := range l {
			if _, ok := seen[s.Name]; ok {
				return fmt.Errorf("重复的 source 名称：%q（同一 host 的多个源需显式指定 name）", s.Name)
			}
			seen[s.Name] = struct{}{}
		}
	}
	return nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("缺少 host：%q", raw)
	}
	return u, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// findConfigFile 返回 dir 下第一个存在的配置文件；都不存在时返回首选文件名与 false。
func findConfigFile(dir string) (string, bool) {
	for _, n := range fileNames {
		p := filepath.Join(dir, n)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return filepath.Join(dir, fileNames[0]), false
}

// readFileConfig 通过 viper 读取配置文件（格式由扩展名决定），并叠加 EDOSYNC_* 环境变量。
// exists=false 时只读取环境变量。
func readFileConfig(path string, exists bool) (FileConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range []string{"path", "concurrency", "timeout", "rate_limit", "proxy.url", "overrides", "dry_run", "canonical_threshold"} {
		if err := v.BindEnv(k); err != nil {
			return FileConfig{}, err
		}
	}

	if exists {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return FileConfig{}, err
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}
