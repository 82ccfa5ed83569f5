package run

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/EDOSync/internal/cdb/cdbtest"
	"github.com/John-Robertt/EDOSync/internal/config"
	"github.com/John-Robertt/EDOSync/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	planFields map[string]any
	warnings   []domain.Warning
	items      []domain.CardID
	lastIdx    int
	lastTotal  int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
	if name == "plan" {
		o.planFields = fields
	}
}

func (o *recordObserver) OnWarning(w domain.Warning) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = append(o.warnings, w)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, res.ID)
	o.lastIdx = idx
	o.lastTotal = total
}

func TestExecuteWithObserver_EmitsPhaseWarningAndItemEvents(t *testing.T) {
	f := newFixture(t, nil)
	if err := os.MkdirAll(filepath.Join(f.root, "expansions"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeExpansion(t, f, []domain.CardRecord{
		{ID: 89631139, Name: "Sinister Serpent"},
		{ID: 511000818, Name: "Sinister Serpent GOAT"},
		{ID: 46986414, Name: "Dark Magician"},
	})
	// 一个 id 已有图片：同样应产生一次条目事件。
	if err := os.MkdirAll(f.eff.PicsDir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(f.eff.PicsDir, "46986414.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	f.primary.bodies[89631139] = []byte("serpent")

	obs := &recordObserver{}
	rr := ExecuteWithObserver(context.Background(), f.eff, Deps{Registry: f.reg}, obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{"index", "plan", "exec"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	if len(obs.warnings) != 1 {
		t.Fatalf("缺失的主卡库应产生一次 warning：%+v", obs.warnings)
	}
	if got := obs.planFields["cached"]; got != 1 {
		t.Fatalf("plan 阶段应带上已缓存数量 1，实际 %v", got)
	}

	got := append([]domain.CardID(nil), obs.items...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []domain.CardID{46986414, 89631139, 511000818}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("条目事件不符合预期：got=%v want=%v", got, want)
	}
	if obs.lastIdx != 3 || obs.lastTotal != 3 {
		t.Fatalf("idx/total 不符合预期：idx=%d total=%d", obs.lastIdx, obs.lastTotal)
	}
	if rr.Summary.Total != 3 || rr.Summary.Skipped != 1 || rr.Summary.Processed != 2 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
}

func TestExecuteWithObserver_NilObserver_SameResult(t *testing.T) {
	records := []domain.CardRecord{
		{ID: 89631139, Name: "Sinister Serpent"},
		{ID: 511000818, Name: "Sinister Serpent GOAT"},
	}
	cfgFor := func(f *fixture) config.EffectiveConfig {
		eff := f.eff
		eff.DryRun = true
		return eff
	}

	fa := newFixture(t, records)
	a := ExecuteWithObserver(context.Background(), cfgFor(fa), Deps{Registry: fa.reg}, nil)
	fb := newFixture(t, records)
	b := ExecuteWithObserver(context.Background(), cfgFor(fb), Deps{Registry: fb.reg}, &recordObserver{})

	// run_id、时间与路径本身允许不同；对比时归零。
	for _, rr := range []*domain.RunReport{&a, &b} {
		rr.RunID, rr.Path = "", ""
		rr.StartedAt, rr.FinishedAt = time.Time{}, time.Time{}
	}

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("observer 不应改变结果：\nnil=%+v\nobs=%+v", a, b)
	}
}

func writeExpansion(t *testing.T, f *fixture, records []domain.CardRecord) {
	t.Helper()
	cdbtest.WriteFixture(t, filepath.Join(f.root, "expansions", "a.cdb"), records)
}
