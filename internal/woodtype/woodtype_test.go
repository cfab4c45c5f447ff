package woodtype

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathNames(t *testing.T) {
	r := NewRegistry()

	vanilla := r.Resolve(NewIdentifier("minecraft", "dark_oak"))
	assert.Equal(t, "dark_oak", vanilla.PathName())
	assert.Equal(t, "dark_oak", vanilla.LangPath())

	modded := r.Resolve(NewIdentifier("biomes", "redwood"))
	assert.Equal(t, "biomes/redwood", modded.PathName())
	assert.Equal(t, "biomes.redwood", modded.LangPath())
}

func TestLogAccessors(t *testing.T) {
	r := NewRegistry()

	_, oak, _ := r.Ingest(mustID(t, "oak_planks"), Block{})
	assert.False(t, oak.HasLog())
	assert.Equal(t, "none", oak.LogType())

	r.Ingest(mustID(t, "oak_log"), Block{Material: MaterialWood})
	assert.True(t, oak.HasLog())
	assert.Equal(t, "log", oak.LogType())

	_, crimson, _ := r.Ingest(mustID(t, "crimson_stem"), Block{Material: MaterialNetherWood})
	assert.Equal(t, "stem", crimson.LogType())
	log, ok := crimson.Log()
	require.True(t, ok)
	assert.Equal(t, MaterialNetherWood, log.Material())
}

func TestComponentOrFallback(t *testing.T) {
	r := NewRegistry()

	_, wt, _ := r.Ingest(mustID(t, "oak_planks"), Block{})
	c, err := wt.LogOrPlanks()
	require.NoError(t, err)
	assert.Equal(t, "minecraft:oak_planks", c.ID.String())

	r.Ingest(mustID(t, "oak_log"), Block{Material: MaterialWood})
	c, err = wt.LogOrPlanks()
	require.NoError(t, err)
	assert.Equal(t, "minecraft:oak_log", c.ID.String())

	// Только листва: ни бревна, ни досок
	_, azalea, _ := r.Ingest(mustID(t, "azalea_leaves"), Block{})
	_, err = azalea.LogOrPlanks()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingComponent))
	assert.Contains(t, err.Error(), "minecraft:azalea")
}

func TestComponentTypesSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"oak_slab", "oak_planks", "oak_leaves", "oak_log"} {
		r.Ingest(mustID(t, id), Block{Material: MaterialWood})
	}
	wt, ok := r.Lookup(mustID(t, "oak"))
	require.True(t, ok)
	assert.Equal(t, []ComponentType{Leaves, Log, Planks, Slab}, wt.ComponentTypes())
	assert.True(t, wt.HasComponents(Planks, Log, Slab, Leaves))
	assert.False(t, wt.HasComponents(Planks, "fence"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Ingest(mustID(t, "biomes:fir_planks"), Block{Properties: map[string]interface{}{"hardness": 2.0}})
	r.Ingest(mustID(t, "biomes:fir_log"), Block{Material: MaterialWood})

	wt, ok := r.Lookup(NewIdentifier("biomes", "fir"))
	require.True(t, ok)

	snap := wt.Snapshot()
	assert.Equal(t, "biomes:fir", snap.ID)
	assert.Equal(t, "biomes/fir", snap.PathName)
	assert.Equal(t, "log", snap.LogType)
	assert.True(t, snap.HasComponents(Planks, Log))

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap.Identifier(), decoded.Identifier())

	planks, err := decoded.Components[Planks].Component()
	require.NoError(t, err)
	assert.Equal(t, "biomes:fir_planks", planks.ID.String())
	hardness, ok := planks.Property("hardness")
	require.True(t, ok)
	assert.Equal(t, 2.0, hardness)

	log, err := decoded.Components[Log].Component()
	require.NoError(t, err)
	assert.Equal(t, MaterialWood, log.Material())
}
