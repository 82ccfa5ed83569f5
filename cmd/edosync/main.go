package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/EDOSync/internal/app/run"
	"github.com/John-Robertt/EDOSync/internal/config"
	"github.com/John-Robertt/EDOSync/internal/domain"
	"github.com/John-Robertt/EDOSync/internal/infra/fsx"
	"github.com/John-Robertt/EDOSync/internal/infra/httpx"
	"github.com/John-Robertt/EDOSync/internal/source"
)

// reportFileName 是非 dry-run 时写入 <path>/ 的报告文件。
const reportFileName = "edosync-report.json"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:           ra.Path,
		Concurrency:    ra.Concurrency,
		ConcurrencySet: ra.ConcurrencySet,
		DryRun:         ra.DryRun,
		DryRunSet:      ra.DryRunSet,
		Overrides:      ra.Overrides,
	})
	if err != nil {
		rr := reportForFatal(cwdAbs, ra.DryRunSet && ra.DryRun, config.Code(err), err)
		emitReport(rr)
		return 1
	}

	reg, err := buildRegistry(eff)
	if err != nil {
		rr := reportForFatal(eff.Path, eff.DryRun, domain.ErrCodeConfigInvalid, err)
		emitReport(rr)
		return 1
	}

	// Ctrl-C：停止发放新的槽位，在途请求随 ctx 取消；剩余 id 记为 canceled。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, run.Deps{Registry: reg}, obs)

	// 非 dry-run：写入 <path>/edosync-report.json；dry-run 禁止落盘。
	if !eff.DryRun {
		if err := writeReportFile(eff.Path, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", reportFileName, err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

// buildRegistry 按配置组装远端源；所有源共享同一个 HTTP client（共享限速与连接池）。
func buildRegistry(eff config.EffectiveConfig) (source.Registry, error) {
	client, err := httpx.NewImageClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		Timeout:   eff.Timeout,
		RateLimit: eff.RateLimit,
	})
	if err != nil {
		return source.Registry{}, fmt.Errorf("proxy.url 无效：%w", err)
	}

	build := func(specs []config.SourceSpec) []source.Source {
		out := make([]source.Source, 0, len(specs))
		for _, s := range specs {
			h := &source.HTTP{SourceName: s.Name, BaseURL: s.BaseURL, Client: client}
			if s.ListingURL != "" {
				h.Listing = &source.Listing{URL: s.ListingURL, Client: client}
			}
			out = append(out, h)
		}
		return out
	}
	return source.NewRegistry(build(eff.Primary), build(eff.Backup))
}

type runArgs struct {
	Path string

	Concurrency    int
	ConcurrencySet bool

	DryRun    bool
	DryRunSet bool

	Overrides string
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	setConcurrency := func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("--concurrency 需要整数，实际是 %q", v)
		}
		ra.Concurrency = n
		ra.ConcurrencySet = true
		return nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--concurrency":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--concurrency 需要一个值")
			}
			i++
			if err := setConcurrency(args[i]); err != nil {
				return runArgs{}, err
			}
		case strings.HasPrefix(a, "--concurrency="):
			if err := setConcurrency(strings.TrimPrefix(a, "--concurrency=")); err != nil {
				return runArgs{}, err
			}
		case a == "--overrides":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--overrides 需要一个值")
			}
			i++
			ra.Overrides = args[i]
		case strings.HasPrefix(a, "--overrides="):
			ra.Overrides = strings.TrimPrefix(a, "--overrides=")
			if strings.TrimSpace(ra.Overrides) == "" {
				return runArgs{}, fmt.Errorf("--overrides 不能为空")
			}
		case a == "--dry-run":
			ra.DryRun = true
			ra.DryRunSet = true
		case strings.HasPrefix(a, "--dry-run="):
			v := strings.TrimPrefix(a, "--dry-run=")
			switch v {
			case "true":
				ra.DryRun = true
			case "false":
				ra.DryRun = false
			default:
				return runArgs{}, fmt.Errorf("--dry-run 只能是 true 或 false，实际是 %q", v)
			}
			ra.DryRunSet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  edosync run [path] [--concurrency N] [--dry-run[=true|false]] [--overrides FILE]

命令：
  run    为 EDOPro 卡库补齐缺失的卡图（pics/<id>.jpg）

使用 "edosync run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  edosync run [path] [--concurrency N] [--dry-run[=true|false]] [--overrides FILE]

参数：
  path           EDOPro 根目录（含 cards.cdb）；未指定则读取当前目录的 edosync.json
  --concurrency  同时在途的请求上限（默认 50，范围 1..256）
  --dry-run      只解析与规划，不发请求、不写入；支持 --dry-run=false 覆盖配置
  --overrides    人工映射文件（.json/.toml/.yaml），相对路径以当前目录为基准
  -h, --help     显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：total=%d processed=%d skipped=%d failed=%d planned=%d",
		rr.Summary.Total, rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Planned,
	)

	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := "<run>"
				if it.ID != 0 {
					key = it.ID.String()
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summary)
}

func reportForFatal(path string, dryRun bool, code string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       path,
		DryRun:     dryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Resolution: domain.NoMatch(),
			Status:     domain.StatusFailed,
			ErrorCode:  code,
			ErrorMsg:   err.Error(),
			Attempts:   []domain.Attempt{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(root, reportFileName, b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, reportFileName))
	}
	fmt.Fprintf(w, "pics: %s\n", eff.PicsDir)
}
