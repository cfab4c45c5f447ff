package blocksource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/woodtypes/internal/woodtype"
)

const packJSON = `{
  "namespace": "biomes",
  "blocks": [
    {"id": "redwood_planks", "material": "wood"},
    {"id": "redwood_log", "material": "wood", "properties": {"hardness": 2}},
    {"id": "minecraft:oak_slab", "material": "wood"}
  ]
}`

const listYAML = `
- id: oak_planks
  material: wood
- id: oak_log
  material: wood
- id: stone
  material: stone
`

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestDecodePackAndList(t *testing.T) {
	defs, err := Decode([]byte(packJSON), false)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	id, err := defs[0].Identifier("minecraft")
	require.NoError(t, err)
	assert.Equal(t, "biomes:redwood_planks", id.String())

	// Явный namespace в id важнее namespace пака
	id, err = defs[2].Identifier("minecraft")
	require.NoError(t, err)
	assert.Equal(t, "minecraft:oak_slab", id.String())

	defs, err = Decode([]byte(listYAML), true)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	id, err = defs[0].Identifier("minecraft")
	require.NoError(t, err)
	assert.Equal(t, "minecraft:oak_planks", id.String())

	defs, err = Decode([]byte("   "), false)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestLoadDirAllFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_pack.json", []byte(packJSON))
	writeFile(t, dir, "b_list.yaml", []byte(listYAML))
	writeFile(t, dir, "c_packed.json.gz", gzipBytes(t, []byte(`[{"id":"birch_planks"}]`)))
	writeFile(t, dir, "d_packed.json.zst", zstdBytes(t, []byte(`[{"id":"birch_log","material":"wood"}]`)))
	writeFile(t, dir, "README.md", []byte("не пак"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0755))

	defs, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, defs, 8)
	assert.Equal(t, "redwood_planks", defs[0].ID)
	assert.Equal(t, "birch_log", defs[7].ID)
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", []byte(`{"blocks": [`))
	_, err := LoadFile(filepath.Join(dir, "broken.json"))
	assert.Error(t, err)

	writeFile(t, dir, "broken.json.gz", []byte("not gzip"))
	_, err = LoadFile(filepath.Join(dir, "broken.json.gz"))
	assert.Error(t, err)

	writeFile(t, dir, "blocks.txt", []byte("[]"))
	_, err = LoadFile(filepath.Join(dir, "blocks.txt"))
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	defs := []Definition{
		{ID: "oak_planks", Material: "wood"},
		{ID: "oak_log", Material: "wood"},
		{ID: "stripped_oak_log", Material: "wood"},
		{ID: "bad:id:here"},
		{ID: "oak_leaves"},
	}

	reg := woodtype.NewRegistry()
	res, err := Scan(context.Background(), reg, defs, "minecraft")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Classified)
	assert.Equal(t, 1, res.Unclassified)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.ByType[woodtype.Log])

	oak, ok := reg.Lookup(woodtype.NewIdentifier("minecraft", "oak"))
	require.True(t, ok)
	assert.True(t, oak.HasComponents(woodtype.Planks, woodtype.Log, woodtype.Leaves))
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := woodtype.NewRegistry()
	_, err := Scan(ctx, reg, []Definition{{ID: "oak_planks"}}, "minecraft")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, reg.Len())
}

func TestVanillaAssets(t *testing.T) {
	defs, err := LoadFile(filepath.Join("..", "..", "assets", "blocks", "vanilla.json"))
	require.NoError(t, err)

	reg := woodtype.NewRegistry()
	_, err = Scan(context.Background(), reg, defs, "minecraft")
	require.NoError(t, err)

	crimson, ok := reg.Lookup(woodtype.NewIdentifier("minecraft", "crimson"))
	require.True(t, ok)
	assert.True(t, crimson.HasComponents(woodtype.Planks, woodtype.Log, woodtype.Slab, woodtype.Leaves))
	assert.Equal(t, "stem", crimson.LogType())

	for _, name := range []string{"oak", "spruce", "birch", "jungle", "acacia", "dark_oak", "mangrove", "warped"} {
		wt, ok := reg.Lookup(woodtype.NewIdentifier("minecraft", name))
		require.True(t, ok, name)
		assert.True(t, wt.HasComponents(woodtype.Planks, woodtype.Log), name)
	}
}
