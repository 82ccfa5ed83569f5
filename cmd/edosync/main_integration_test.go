package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/EDOSync/internal/cdb/cdbtest"
	"github.com/John-Robertt/EDOSync/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	// 准备最小输入：一个卡库 + 已存在的卡图，避免触发真实网络请求。
	cdbtest.WriteFixture(t, filepath.Join(root, "cards.cdb"), []domain.CardRecord{
		{ID: 89631139, Name: "Sinister Serpent"},
	})
	pics := filepath.Join(root, "pics")
	if err := os.MkdirAll(pics, 0o755); err != nil {
		t.Fatalf("创建 pics 目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(pics, "89631139.jpg"), []byte("jpg"), 0o644); err != nil {
		t.Fatalf("写入卡图失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/edosync", "run", root)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	// stdout 必须是单个 JSON。
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if rr.Summary.Total != 1 || rr.Summary.Skipped != 1 || rr.RunID == "" {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	// 进度/配置不应出现在 stdout。
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}

	// stderr 至少应包含最终摘要行。
	if !strings.Contains(stderr.String(), "完成：total=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// 非 dry-run 会落盘报告。
	if _, err := os.Stat(filepath.Join(root, reportFileName)); err != nil {
		t.Fatalf("期望写出 %s：%v", reportFileName, err)
	}
}
