package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/woodtypes/internal/woodtype"
)

// recorder собирает доставленные конверты
type recorder struct {
	mu  sync.Mutex
	evs []*Envelope
}

func (r *recorder) handle(_ context.Context, ev *Envelope) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.evs))
	for i, ev := range r.evs {
		out[i] = ev.EventType
	}
	return out
}

func (r *recorder) all() []*Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Envelope(nil), r.evs...)
}

func TestMemoryBusFilters(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	var all, failed recorder
	_, err := bus.Subscribe(context.Background(), Filter{}, all.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), Filter{Types: []string{TypeCallbackFailed}}, failed.handle)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: TypeWoodTypeCreated}))
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: TypeCallbackFailed}))

	assert.Eventually(t, func() bool { return len(all.types()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(failed.types()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{TypeWoodTypeCreated, TypeCallbackFailed}, all.types())
	assert.Equal(t, []string{TypeCallbackFailed}, failed.types())

	assert.Eventually(t, func() bool { return bus.Metrics().Consumed == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), bus.Metrics().Published)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	var rec recorder
	sub, err := bus.Subscribe(context.Background(), Filter{Sources: []string{"woodtypes"}}, rec.handle)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{Source: "other"}))
	require.NoError(t, bus.Publish(context.Background(), &Envelope{Source: "woodtypes"}))
	assert.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), &Envelope{Source: "woodtypes"}))
	require.NoError(t, bus.Close())
	assert.Len(t, rec.all(), 1)
}

func TestMemoryBusBackpressure(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "first"}))
	<-entered

	// Обработчик занят, буфер на одно место
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "second"}))
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "low", Priority: DefaultPriority}))
	assert.Equal(t, uint64(1), bus.Metrics().Dropped)

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = bus.Publish(tctx, &Envelope{EventType: "high", Priority: HighPriority})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrClosed)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "events.woodtype.created", Subject(TypeWoodTypeCreated))
	assert.Equal(t, "events.woodtype.callback_failed", subjectFor(Filter{Types: []string{TypeCallbackFailed}}))
	assert.Equal(t, "events.>", subjectFor(Filter{}))
	assert.Equal(t, "events.>", subjectFor(Filter{Types: []string{TypeWoodTypeCreated, TypeCallbackFailed}}))
}

func TestBridgePublishesRegistryEvents(t *testing.T) {
	bus := NewMemoryBus(64)
	defer bus.Close()

	var rec recorder
	_, err := bus.Subscribe(context.Background(), Filter{}, rec.handle)
	require.NoError(t, err)

	reg := woodtype.NewRegistry(woodtype.WithObserver(Bridge(bus, "woodtypes-test")))
	reg.SubscribeNamed("bench", func(*woodtype.WoodType) error { return nil }, woodtype.Planks, woodtype.Log)
	reg.SubscribeNamed("broken", func(*woodtype.WoodType) error { return errors.New("boom") }, woodtype.Planks)

	reg.Ingest(woodtype.NewIdentifier("minecraft", "stone"), woodtype.Block{Material: woodtype.MaterialStone})
	reg.Ingest(woodtype.NewIdentifier("minecraft", "oak_planks"), woodtype.Block{Material: woodtype.MaterialWood})
	reg.Ingest(woodtype.NewIdentifier("minecraft", "oak_log"), woodtype.Block{Material: woodtype.MaterialWood})

	want := []string{
		TypeWoodTypeCreated,
		TypeComponentRecorded,
		TypeCallbackFailed,
		TypeComponentRecorded,
		TypeSubscriptionFired,
	}
	assert.Eventually(t, func() bool { return len(rec.types()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.types())

	evs := rec.all()
	for _, ev := range evs {
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "woodtypes-test", ev.Source)
		assert.Equal(t, "minecraft:oak", ev.CorrelationID)
	}
	assert.Equal(t, HighPriority, evs[2].Priority)

	failed, err := DecodePayload(evs[2])
	require.NoError(t, err)
	assert.Equal(t, "broken{planks}", failed.Subscription)
	assert.Contains(t, failed.Error, "boom")

	recorded, err := DecodePayload(evs[3])
	require.NoError(t, err)
	assert.Equal(t, "minecraft:oak_log", recorded.BlockID)
	assert.Equal(t, "log", recorded.ComponentType)
	require.NotNil(t, recorded.Snapshot)
	assert.True(t, recorded.Snapshot.HasComponents(woodtype.Planks, woodtype.Log))

	fired, err := DecodePayload(evs[4])
	require.NoError(t, err)
	assert.Equal(t, "bench{planks,log}", fired.Subscription)
}
