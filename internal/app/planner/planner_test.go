package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/EDOSync/internal/cardindex"
	"github.com/John-Robertt/EDOSync/internal/domain"
	"github.com/John-Robertt/EDOSync/internal/infra/cache"
	"github.com/John-Robertt/EDOSync/internal/resolve"
)

type memSource []domain.CardRecord

func (memSource) Name() string { return "mem" }

func (s memSource) ListRecords(ctx context.Context) ([]domain.CardRecord, error) {
	return s, nil
}

func buildIndex(t *testing.T, recs ...domain.CardRecord) cardindex.Index {
	t.Helper()
	idx, warns, err := cardindex.Build(context.Background(), []cardindex.RecordSource{memSource(recs)}, 0)
	if err != nil {
		t.Fatalf("构建索引失败：%v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("不期望 warning：%+v", warns)
	}
	return idx
}

func TestPlan_SkipsCachedAndResolvesRest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pics")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	write(t, filepath.Join(dir, "46986414.jpg"))

	idx := buildIndex(t,
		domain.CardRecord{ID: 89631139, Name: "Sinister Serpent"},
		domain.CardRecord{ID: 46986414, Name: "Dark Magician"},
		domain.CardRecord{ID: 511000818, Name: "Sinister Serpent (Pre-Errata)"},
		domain.CardRecord{ID: 600000001, Name: "Nobody Knows"},
	)
	r := resolve.Resolver{
		Canonical: idx,
		Suffixes:  resolve.NewSuffixSet(resolve.DefaultSuffixes...),
	}

	plans, skipped := Plan(idx, cache.New(dir, true), r)

	if len(skipped) != 1 || skipped[0].ID != 46986414 || skipped[0].Status != domain.StatusSkipped {
		t.Fatalf("skipped 不符合预期：%+v", skipped)
	}
	if len(plans) != 3 {
		t.Fatalf("期望 3 个计划，实际=%d：%+v", len(plans), plans)
	}

	// 顺序与索引一致（升序）。
	wantIDs := []domain.CardID{89631139, 511000818, 600000001}
	for i, want := range wantIDs {
		if plans[i].ID != want {
			t.Fatalf("计划顺序不符合预期：got=%+v", plans)
		}
	}
	if plans[0].Resolution != domain.NameMatch(89631139) {
		t.Fatalf("canonical id 应解析为自身：%+v", plans[0].Resolution)
	}
	if plans[1].Resolution.Canonical != 89631139 || plans[1].Resolution.Suffix != " (Pre-Errata)" {
		t.Fatalf("变体应剥离后缀后命中：%+v", plans[1].Resolution)
	}
	if plans[2].Resolution.Kind != domain.ResolveNone {
		t.Fatalf("未知名称应为 none：%+v", plans[2].Resolution)
	}
}

func TestPlan_EmptyIndex(t *testing.T) {
	idx := buildIndex(t)
	plans, skipped := Plan(idx, cache.New(t.TempDir(), true), resolve.Resolver{})
	if len(plans) != 0 || len(skipped) != 0 {
		t.Fatalf("空索引不应产生任何计划：plans=%+v skipped=%+v", plans, skipped)
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
