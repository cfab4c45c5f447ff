package woodtype

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// WoodType: тип дерева: набор компонентов (роль → блок) с общим базовым именем.
//
// Набор ролей только растёт. Повторная запись той же роли заменяет блок,
// но уже сработавшие подписки повторно не вызываются.
type WoodType struct {
	id       Identifier
	pathName string
	langPath string

	mu         sync.RWMutex
	components map[ComponentType]Component
	toTrigger  []*Subscription
}

func newWoodType(id Identifier, pending []*Subscription) *WoodType {
	pathName := pathNameOf(id)
	return &WoodType{
		id:         id,
		pathName:   pathName,
		langPath:   strings.ReplaceAll(pathName, "/", "."),
		components: make(map[ComponentType]Component),
		toTrigger:  append([]*Subscription(nil), pending...),
	}
}

// pathNameOf возвращает путь, для не-minecraft пространств с префиксом namespace/.
func pathNameOf(id Identifier) string {
	if id.Namespace != DefaultNamespace {
		return id.Namespace + "/" + id.Path
	}
	return id.Path
}

// ID возвращает идентификатор типа дерева
func (wt *WoodType) ID() Identifier {
	return wt.id
}

// PathName возвращает путь с префиксом пространства имён (кроме minecraft)
func (wt *WoodType) PathName() string {
	return wt.pathName
}

// LangPath возвращает PathName с точками вместо слешей
func (wt *WoodType) LangPath() string {
	return wt.langPath
}

// Component возвращает компонент указанной роли
func (wt *WoodType) Component(t ComponentType) (Component, bool) {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	c, ok := wt.components[t]
	return c, ok
}

// HasComponent проверяет наличие роли
func (wt *WoodType) HasComponent(t ComponentType) bool {
	_, ok := wt.Component(t)
	return ok
}

// HasComponents проверяет наличие всех перечисленных ролей
func (wt *WoodType) HasComponents(types ...ComponentType) bool {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	return wt.containsLocked(types)
}

// ComponentTypes возвращает роли типа дерева в алфавитном порядке
func (wt *WoodType) ComponentTypes() []ComponentType {
	wt.mu.RLock()
	types := make([]ComponentType, 0, len(wt.components))
	for t := range wt.components {
		types = append(types, t)
	}
	wt.mu.RUnlock()

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Components возвращает копию карты компонентов
func (wt *WoodType) Components() map[ComponentType]Component {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	out := make(map[ComponentType]Component, len(wt.components))
	for t, c := range wt.components {
		out[t] = c
	}
	return out
}

// HasLog проверяет наличие бревна
func (wt *WoodType) HasLog() bool {
	return wt.HasComponent(Log)
}

// Log возвращает компонент бревна
func (wt *WoodType) Log() (Component, bool) {
	return wt.Component(Log)
}

// LogType возвращает вид бревна ("log", "stem") или "none", если бревна нет.
func (wt *WoodType) LogType() string {
	log, ok := wt.Log()
	if !ok {
		return "none"
	}
	prefix := len(wt.id.Path) + 1
	if len(log.ID.Path) <= prefix {
		return "none"
	}
	return log.ID.Path[prefix:]
}

// ComponentOrFallback возвращает компонент роли t, а если его нет, то роли fallback.
// Если нет обеих, возвращается ошибка, оборачивающая ErrMissingComponent.
func (wt *WoodType) ComponentOrFallback(t, fallback ComponentType) (Component, error) {
	wt.mu.RLock()
	defer wt.mu.RUnlock()

	if c, ok := wt.components[t]; ok {
		return c, nil
	}
	if c, ok := wt.components[fallback]; ok {
		return c, nil
	}
	return Component{}, fmt.Errorf("%w: %s has neither %s nor %s", ErrMissingComponent, wt.id, t, fallback)
}

// LogOrPlanks возвращает бревно, а при его отсутствии доски.
func (wt *WoodType) LogOrPlanks() (Component, error) {
	return wt.ComponentOrFallback(Log, Planks)
}

// PendingSubscriptions возвращает число ещё не сработавших подписок
func (wt *WoodType) PendingSubscriptions() int {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	return len(wt.toTrigger)
}

// String возвращает идентификатор типа дерева
func (wt *WoodType) String() string {
	return wt.id.String()
}

func (wt *WoodType) containsLocked(types []ComponentType) bool {
	for _, t := range types {
		if _, ok := wt.components[t]; !ok {
			return false
		}
	}
	return true
}

// put записывает компонент и забирает из очереди все удовлетворённые подписки.
// Запись и удаление из очереди выполняются атомарно; вызывать колбэки
// нужно уже после выхода из блокировки.
func (wt *WoodType) put(t ComponentType, c Component) []*Subscription {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	wt.components[t] = c

	var ready []*Subscription
	kept := wt.toTrigger[:0]
	for _, sub := range wt.toTrigger {
		if wt.containsLocked(sub.required) {
			ready = append(ready, sub)
			continue
		}
		kept = append(kept, sub)
	}
	// Обнуляем хвост, чтобы не держать ссылки на сработавшие подписки
	for i := len(kept); i < len(wt.toTrigger); i++ {
		wt.toTrigger[i] = nil
	}
	wt.toTrigger = kept
	return ready
}

// offer применяет новую подписку к уже существующему типу дерева.
// Возвращает true, если подписка удовлетворена сразу и её нужно вызвать;
// иначе подписка ставится в очередь.
func (wt *WoodType) offer(sub *Subscription) bool {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.containsLocked(sub.required) {
		return true
	}
	wt.toTrigger = append(wt.toTrigger, sub)
	return false
}
