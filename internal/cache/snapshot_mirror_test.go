package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/woodtypes/internal/woodtype"
)

// unreachableClient указывает на закрытый порт: любые команды падают сразу
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func oakSnapshot(t *testing.T, extra ...string) woodtype.Snapshot {
	t.Helper()
	reg := woodtype.NewRegistry()
	for _, id := range append([]string{"oak_planks"}, extra...) {
		reg.Ingest(woodtype.NewIdentifier("minecraft", id), woodtype.Block{Material: woodtype.MaterialWood})
	}
	oak, ok := reg.Lookup(woodtype.NewIdentifier("minecraft", "oak"))
	require.True(t, ok)
	return oak.Snapshot()
}

func TestEncodeBatchLastWins(t *testing.T) {
	early := oakSnapshot(t)
	late := oakSnapshot(t, "oak_log")

	fields, err := encodeBatch([]woodtype.Snapshot{early, late})
	require.NoError(t, err)
	require.Len(t, fields, 1)

	decoded, err := decodeSnapshot(fields["minecraft:oak"].([]byte))
	require.NoError(t, err)
	assert.True(t, decoded.HasComponents(woodtype.Planks, woodtype.Log))
	assert.Equal(t, "log", decoded.LogType)
}

func TestMarkKeepsEveryWoodType(t *testing.T) {
	m := newIdleMirror(unreachableClient(), MirrorConfig{BatchSize: 16})
	defer m.client.Close()

	reg := woodtype.NewRegistry(woodtype.WithObserver(m.Observer()))
	const woods = 2000
	for i := 0; i < woods; i++ {
		for _, suffix := range []string{"_planks", "_log"} {
			reg.Ingest(woodtype.NewIdentifier("minecraft", fmt.Sprintf("w%d%s", i, suffix)),
				woodtype.Block{Material: woodtype.MaterialWood})
		}
	}
	assert.Equal(t, woods, m.Stats().Pending)

	fields, err := encodeBatch(m.takeDirty())
	require.NoError(t, err)
	require.Len(t, fields, woods)
	for i := 0; i < woods; i++ {
		raw, ok := fields[fmt.Sprintf("minecraft:w%d", i)]
		require.True(t, ok, i)
		snap, err := decodeSnapshot(raw.([]byte))
		require.NoError(t, err)
		assert.True(t, snap.HasComponents(woodtype.Planks, woodtype.Log), snap.ID)
	}

	assert.Empty(t, m.takeDirty())
}

func TestTakeDirtySnapshotsLatestState(t *testing.T) {
	m := newIdleMirror(unreachableClient(), MirrorConfig{})
	defer m.client.Close()

	reg := woodtype.NewRegistry(woodtype.WithObserver(m.Observer()))
	reg.Ingest(woodtype.NewIdentifier("minecraft", "oak_planks"), woodtype.Block{})

	// Пометка сделана до записи бревна, но снимок снимается при записи
	reg.Ingest(woodtype.NewIdentifier("minecraft", "oak_log"), woodtype.Block{Material: woodtype.MaterialWood})
	snaps := m.takeDirty()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].HasComponents(woodtype.Planks, woodtype.Log))

	// Запись после takeDirty помечает тип заново
	reg.Ingest(woodtype.NewIdentifier("minecraft", "oak_slab"), woodtype.Block{Material: woodtype.MaterialWood})
	snaps = m.takeDirty()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].HasComponents(woodtype.Planks, woodtype.Log, woodtype.Slab))
}

func TestMirrorDefaultsAndFailures(t *testing.T) {
	m := newMirror(unreachableClient(), MirrorConfig{FlushInterval: time.Hour})
	assert.Equal(t, "woodtypes", m.Key())

	reg := woodtype.NewRegistry(woodtype.WithObserver(m.Observer()))
	reg.Ingest(woodtype.NewIdentifier("minecraft", "oak_planks"), woodtype.Block{})

	_, _, err := m.Get(context.Background(), woodtype.NewIdentifier("minecraft", "oak"))
	assert.Error(t, err)

	// Close дописывает помеченные типы: запись в недоступный Redis считается ошибкой
	m.Close()
	stats := m.Stats()
	assert.Equal(t, uint64(0), stats.Mirrored)
	assert.Equal(t, uint64(1), stats.Errors)
	assert.Equal(t, 0, stats.Pending)
}
