package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/woodtype"
)

// PayloadVersion: версия схемы Payload
const PayloadVersion = 1

// publishTimeout ограничивает ожидание места в буфере для high-priority событий
const publishTimeout = 2 * time.Second

// Payload: полезная нагрузка событий реестра типов дерева
type Payload struct {
	WoodType      string             `json:"wood_type,omitempty"`
	BlockID       string             `json:"block_id,omitempty"`
	ComponentType string             `json:"component_type,omitempty"`
	Subscription  string             `json:"subscription,omitempty"`
	Error         string             `json:"error,omitempty"`
	Snapshot      *woodtype.Snapshot `json:"snapshot,omitempty"`
}

// DecodePayload разбирает полезную нагрузку конверта
func DecodePayload(ev *Envelope) (Payload, error) {
	var p Payload
	err := json.Unmarshal(ev.Payload, &p)
	return p, err
}

// NewEnvelope собирает конверт с новым UUID и текущим временем
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   PayloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// envelopeFor переводит событие реестра в конверт шины.
// Неклассифицированные блоки в шину не попадают.
func envelopeFor(source string, ev woodtype.Event) (*Envelope, bool, error) {
	if ev.WoodType == nil {
		return nil, false, nil
	}

	p := Payload{WoodType: ev.WoodType.ID().String()}
	var eventType string
	priority := DefaultPriority

	switch ev.Kind {
	case woodtype.EventWoodTypeCreated:
		eventType = TypeWoodTypeCreated
	case woodtype.EventComponentRecorded:
		eventType = TypeComponentRecorded
		p.BlockID = ev.BlockID.String()
		p.ComponentType = string(ev.ComponentType)
		snap := ev.WoodType.Snapshot()
		p.Snapshot = &snap
	case woodtype.EventSubscriptionFired:
		eventType = TypeSubscriptionFired
		p.Subscription = ev.Subscription.String()
		snap := ev.WoodType.Snapshot()
		p.Snapshot = &snap
	case woodtype.EventCallbackFailed:
		eventType = TypeCallbackFailed
		priority = HighPriority
		p.Subscription = ev.Subscription.String()
		if ev.Err != nil {
			p.Error = ev.Err.Error()
		}
	default:
		return nil, false, nil
	}

	env, err := NewEnvelope(source, eventType, priority, p)
	if err != nil {
		return nil, false, err
	}
	env.CorrelationID = p.WoodType
	return env, true, nil
}

// Bridge возвращает наблюдателя реестра, публикующего события в шину.
// Ошибки публикации только логируются: реестр не зависит от шины.
func Bridge(bus EventBus, source string) woodtype.Observer {
	log := logging.GetEventBusLogger()
	return func(ev woodtype.Event) {
		env, ok, err := envelopeFor(source, ev)
		if err != nil {
			log.Warn("⚠️ Не удалось сериализовать событие %s: %v", ev.Kind, err)
			return
		}
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := bus.Publish(ctx, env); err != nil {
			log.Warn("⚠️ Публикация %s для %s не удалась: %v", env.EventType, env.CorrelationID, err)
		}
	}
}
