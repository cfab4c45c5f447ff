package woodtype

// EventKind определяет тип события реестра
type EventKind uint8

const (
	EventUnclassified      EventKind = iota // Блок не подошёл ни под одно правило
	EventWoodTypeCreated                    // Создан новый тип дерева
	EventComponentRecorded                  // Компонент записан в тип дерева
	EventSubscriptionFired                  // Подписка сработала для типа дерева
	EventCallbackFailed                     // Колбэк подписки вернул ошибку или упал
	EventBlockClassified                    // Ingest классифицировал блок (после записи компонента)
)

// String возвращает имя события
func (k EventKind) String() string {
	switch k {
	case EventUnclassified:
		return "unclassified"
	case EventWoodTypeCreated:
		return "created"
	case EventComponentRecorded:
		return "component_recorded"
	case EventSubscriptionFired:
		return "subscription_fired"
	case EventCallbackFailed:
		return "callback_failed"
	case EventBlockClassified:
		return "classified"
	default:
		return "unknown"
	}
}

// Event передаётся наблюдателям реестра. Заполнены только поля,
// относящиеся к Kind.
type Event struct {
	Kind          EventKind
	BlockID       Identifier    // Unclassified, ComponentRecorded, BlockClassified
	WoodType      *WoodType     // все, кроме Unclassified
	ComponentType ComponentType // ComponentRecorded, BlockClassified
	Subscription  *Subscription // SubscriptionFired, CallbackFailed
	Err           error         // CallbackFailed (*CallbackError)
}

// Observer получает события реестра синхронно, без удерживаемых блокировок.
type Observer func(ev Event)
