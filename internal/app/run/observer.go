package run

import (
	"time"

	"github.com/John-Robertt/EDOSync/internal/config"
	"github.com/John-Robertt/EDOSync/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（index/plan/exec）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnWarning 在非致命问题出现时调用（例如某个卡库不可读）。
	OnWarning(w domain.Warning)
	// OnItemDone 在某个 id 得到最终结果时调用；每个 id 恰好一次。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnWarning(domain.Warning) {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
