package app

import (
	"sync/atomic"

	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/woodtype"
)

// Имена встроенных подписок
const (
	BenchReady = "bench-ready" // доски + бревно: можно строить верстак
	FullSet    = "full-set"    // все четыре встроенные роли
)

// Builtins считает срабатывания встроенных подписок
type Builtins struct {
	benchReady atomic.Int64
	fullSets   atomic.Int64
}

// BenchReady возвращает число типов дерева, готовых для верстака
func (b *Builtins) BenchReady() int64 { return b.benchReady.Load() }

// FullSets возвращает число типов дерева с полным набором ролей
func (b *Builtins) FullSets() int64 { return b.fullSets.Load() }

// RegisterBuiltins подписывает встроенных потребителей на реестр.
// Регистрировать можно до или после загрузки блоков: подписки применяются
// и к уже известным типам дерева.
func RegisterBuiltins(reg *woodtype.Registry, logger *logging.Logger) *Builtins {
	b := &Builtins{}

	reg.SubscribeNamed(BenchReady, func(wt *woodtype.WoodType) error {
		planks, _ := wt.Component(woodtype.Planks)
		log, err := wt.LogOrPlanks()
		if err != nil {
			return err
		}
		b.benchReady.Add(1)
		logger.Debug("🪚 %s готов для верстака: %s + %s", wt.PathName(), planks.ID, log.ID)
		return nil
	}, woodtype.Planks, woodtype.Log)

	reg.SubscribeNamed(FullSet, func(wt *woodtype.WoodType) error {
		b.fullSets.Add(1)
		logger.Info("🌲 Полный набор для %s (%s), бревно: %s", wt.ID(), wt.LangPath(), wt.LogType())
		return nil
	}, woodtype.Planks, woodtype.Log, woodtype.Slab, woodtype.Leaves)

	return b
}
