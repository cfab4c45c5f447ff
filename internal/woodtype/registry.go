package woodtype

import (
	"fmt"
	"strings"
	"sync"

	"github.com/annel0/woodtypes/internal/logging"
)

// Callback вызывается один раз для каждого типа дерева, набравшего нужные роли.
type Callback func(wt *WoodType) error

// Subscription: зарегистрированная пара (колбэк, обязательные роли).
// Неизменяема после регистрации.
type Subscription struct {
	seq      uint64
	name     string
	callback Callback
	required []ComponentType
}

// Name возвращает имя подписки (может быть пустым)
func (s *Subscription) Name() string {
	return s.name
}

// Required возвращает копию набора обязательных ролей
func (s *Subscription) Required() []ComponentType {
	return append([]ComponentType(nil), s.required...)
}

// String возвращает читаемое описание подписки для логов
func (s *Subscription) String() string {
	parts := make([]string, len(s.required))
	for i, t := range s.required {
		parts[i] = string(t)
	}
	name := s.name
	if name == "" {
		name = fmt.Sprintf("#%d", s.seq)
	}
	return fmt.Sprintf("%s{%s}", name, strings.Join(parts, ","))
}

// Registry: реестр типов дерева и подписок на них.
//
// Блокировки: r.mu защищает индекс типов и список подписок, у каждого
// WoodType своя блокировка. Порядок захвата: r.mu → WoodType.mu.
// Колбэки и наблюдатели вызываются без удерживаемых блокировок, поэтому
// из них можно снова вызывать Ingest/Subscribe.
type Registry struct {
	classifier *Classifier
	logger     *logging.Logger

	obsMu     sync.RWMutex
	observers []Observer

	mu      sync.RWMutex
	types   map[Identifier]*WoodType
	order   []*WoodType
	subs    []*Subscription
	nextSeq uint64
}

// Option настраивает Registry
type Option func(*Registry)

// WithClassifier задаёт классификатор (по умолчанию DefaultClassifier)
func WithClassifier(c *Classifier) Option {
	return func(r *Registry) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithLogger задаёт логгер реестра
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver добавляет наблюдателей событий
func WithObserver(obs ...Observer) Option {
	return func(r *Registry) {
		for _, o := range obs {
			if o != nil {
				r.observers = append(r.observers, o)
			}
		}
	}
}

// NewRegistry создаёт пустой реестр
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		classifier: DefaultClassifier(),
		logger:     logging.Default(),
		types:      make(map[Identifier]*WoodType),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classifier возвращает классификатор реестра
func (r *Registry) Classifier() *Classifier {
	return r.classifier
}

// AddObserver подключает наблюдателя после создания реестра
func (r *Registry) AddObserver(o Observer) {
	if o == nil {
		return
	}
	r.obsMu.Lock()
	r.observers = append(r.observers, o)
	r.obsMu.Unlock()
}

// Ingest является единственной точкой входа: классифицирует блок и записывает его
// в соответствующий тип дерева. ok == false означает, что блок не подошёл
// ни под одно правило; это не ошибка.
func (r *Registry) Ingest(id Identifier, block Block) (ComponentType, *WoodType, bool) {
	t, woodName, ok := r.classifier.Classify(id, block)
	if !ok {
		r.logger.Trace("Блок %s не классифицирован", id)
		r.notify(Event{Kind: EventUnclassified, BlockID: id})
		return "", nil, false
	}

	wt := r.Resolve(NewIdentifier(id.Namespace, woodName))
	r.Record(wt, t, Component{ID: id, Block: block})
	// Record вызывается и при восстановлении из хранилища, поэтому
	// классификацию отмечаем отдельным событием
	r.notify(Event{Kind: EventBlockClassified, BlockID: id, WoodType: wt, ComponentType: t})
	return t, wt, true
}

// Resolve возвращает тип дерева по идентификатору, создавая его при необходимости.
// Новый тип получает в очередь все подписки, зарегистрированные к этому моменту.
func (r *Registry) Resolve(id Identifier) *WoodType {
	wt, created := r.resolve(id)
	if created {
		r.logger.Debug("🌳 Новый тип дерева %s", id)
		r.notify(Event{Kind: EventWoodTypeCreated, WoodType: wt})
	}
	return wt
}

func (r *Registry) resolve(id Identifier) (*WoodType, bool) {
	r.mu.RLock()
	if wt, ok := r.types[id]; ok {
		r.mu.RUnlock()
		return wt, false
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Проверяем еще раз: тип мог появиться, пока мы ждали блокировку
	if wt, ok := r.types[id]; ok {
		return wt, false
	}

	wt := newWoodType(id, r.subs)
	r.types[id] = wt
	r.order = append(r.order, wt)
	return wt, true
}

// Lookup возвращает существующий тип дерева, никогда его не создавая
func (r *Registry) Lookup(id Identifier) (*WoodType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wt, ok := r.types[id]
	return wt, ok
}

// Record привязывает компонент к роли (последняя запись побеждает) и
// вызывает подписки типа дерева, ставшие удовлетворёнными.
func (r *Registry) Record(wt *WoodType, t ComponentType, c Component) {
	ready := wt.put(t, c)
	r.logger.Trace("Компонент %s=%s записан в %s", t, c.ID, wt.id)
	r.notify(Event{Kind: EventComponentRecorded, BlockID: c.ID, WoodType: wt, ComponentType: t})
	r.fire(wt, ready)
}

// All возвращает все типы дерева в порядке создания. Срез является копией,
// его можно перебирать сколько угодно раз.
func (r *Registry) All() []*WoodType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*WoodType(nil), r.order...)
}

// Len возвращает количество типов дерева
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Subscribe регистрирует колбэк, который сработает по одному разу для
// каждого типа дерева, содержащего все required роли, включая уже существующие.
func (r *Registry) Subscribe(cb Callback, required ...ComponentType) *Subscription {
	return r.SubscribeNamed("", cb, required...)
}

// SubscribeNamed делает то же, что Subscribe, но с именем для логов и метрик.
// Одинаковые подписки не объединяются: каждая регистрация независима.
func (r *Registry) SubscribeNamed(name string, cb Callback, required ...ComponentType) *Subscription {
	if cb == nil {
		panic("woodtype: nil subscription callback")
	}

	r.mu.Lock()
	r.nextSeq++
	sub := &Subscription{
		seq:      r.nextSeq,
		name:     name,
		callback: cb,
		required: uniqueTypes(required),
	}
	r.subs = append(r.subs, sub)

	// Применяем новую подписку к уже существующим типам под той же блокировкой,
	// под которой создаются новые: ни один тип не пропустит подписку.
	var ready []*WoodType
	for _, wt := range r.order {
		if wt.offer(sub) {
			ready = append(ready, wt)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("📬 Подписка %s зарегистрирована, сразу срабатывает для %d типов", sub, len(ready))
	for _, wt := range ready {
		r.fire(wt, []*Subscription{sub})
	}
	return sub
}

// Subscriptions возвращает зарегистрированные подписки в порядке регистрации
func (r *Registry) Subscriptions() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.subs...)
}

// fire вызывает колбэки по очереди. Сбой одного колбэка не влияет на остальные.
func (r *Registry) fire(wt *WoodType, subs []*Subscription) {
	for _, sub := range subs {
		if err := r.invoke(wt, sub); err != nil {
			r.logger.Error("❌ Подписка %s для %s завершилась ошибкой: %v", sub, wt.id, err)
			r.notify(Event{Kind: EventCallbackFailed, WoodType: wt, Subscription: sub, Err: err})
			continue
		}
		r.notify(Event{Kind: EventSubscriptionFired, WoodType: wt, Subscription: sub})
	}
}

func (r *Registry) invoke(wt *WoodType, sub *Subscription) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &CallbackError{WoodType: wt.id, Subscription: sub.String(), Panicked: true, Err: fmt.Errorf("%v", p)}
		}
	}()

	if cbErr := sub.callback(wt); cbErr != nil {
		return &CallbackError{WoodType: wt.id, Subscription: sub.String(), Err: cbErr}
	}
	return nil
}

func (r *Registry) notify(ev Event) {
	r.obsMu.RLock()
	observers := r.observers
	r.obsMu.RUnlock()

	for _, o := range observers {
		o(ev)
	}
}

func uniqueTypes(types []ComponentType) []ComponentType {
	seen := make(map[ComponentType]struct{}, len(types))
	out := make([]ComponentType, 0, len(types))
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
