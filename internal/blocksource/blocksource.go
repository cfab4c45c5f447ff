// Package blocksource загружает описания блоков из файлов-паков и
// прогоняет их через реестр типов дерева при старте сервиса.
package blocksource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/woodtype"
)

var tracer = otel.Tracer("github.com/annel0/woodtypes/internal/blocksource")

// Definition: описание одного блока в паке
type Definition struct {
	ID         string                 `json:"id" yaml:"id"`
	Material   string                 `json:"material,omitempty" yaml:"material,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`

	// namespace пака, из которого пришло описание (если указан в файле)
	namespace string
}

// Block переводит описание в блок реестра
func (d Definition) Block() woodtype.Block {
	return woodtype.Block{
		Material:   woodtype.Material(d.Material),
		Properties: d.Properties,
	}
}

// Identifier разбирает идентификатор, подставляя namespace пака или defaultNamespace
func (d Definition) Identifier(defaultNamespace string) (woodtype.Identifier, error) {
	ns := d.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return woodtype.ParseIdentifierIn(ns, d.ID)
}

// pack: файл вида {namespace, blocks: [...]}
type pack struct {
	Namespace string       `json:"namespace" yaml:"namespace"`
	Blocks    []Definition `json:"blocks" yaml:"blocks"`
}

// Supported сообщает, умеет ли пакет читать файл с таким именем
func Supported(name string) bool {
	return formatOf(name) != ""
}

func formatOf(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".json.gz"):
		return "json.gz"
	case strings.HasSuffix(lower, ".json.zst"):
		return "json.zst"
	case strings.HasSuffix(lower, ".json"):
		return "json"
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return "yaml"
	}
	return ""
}

// LoadFile читает один файл с описаниями блоков
func LoadFile(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch formatOf(path) {
	case "json", "yaml":
		data = raw
	case "json.gz":
		data, err = gunzip(raw)
	case "json.zst":
		data, err = unzstd(raw)
	default:
		return nil, fmt.Errorf("неподдерживаемый формат файла %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("распаковка %s: %w", path, err)
	}

	defs, err := Decode(data, formatOf(path) == "yaml")
	if err != nil {
		return nil, fmt.Errorf("разбор %s: %w", path, err)
	}
	return defs, nil
}

// Decode разбирает список описаний либо пак с namespace.
func Decode(data []byte, isYAML bool) ([]Definition, error) {
	unmarshal := json.Unmarshal
	if isYAML {
		unmarshal = yaml.Unmarshal
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	// Список без обёртки
	if trimmed[0] == '[' || (isYAML && trimmed[0] == '-') {
		var defs []Definition
		if err := unmarshal(trimmed, &defs); err != nil {
			return nil, err
		}
		return defs, nil
	}

	var p pack
	if err := unmarshal(trimmed, &p); err != nil {
		return nil, err
	}
	for i := range p.Blocks {
		p.Blocks[i].namespace = p.Namespace
	}
	return p.Blocks, nil
}

func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func unzstd(raw []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(raw, nil)
}

// LoadDir загружает все поддерживаемые файлы каталога в лексикографическом порядке.
func LoadDir(ctx context.Context, dir string) ([]Definition, error) {
	_, span := tracer.Start(ctx, "blocksource.LoadDir")
	defer span.End()
	span.SetAttributes(attribute.String("blocks.dir", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read dir")
		return nil, fmt.Errorf("каталог блоков %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var all []Definition
	for _, name := range names {
		defs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load file")
			return nil, err
		}
		logging.Debug("📦 %s: %d блоков", name, len(defs))
		all = append(all, defs...)
	}

	span.SetAttributes(attribute.Int("blocks.files", len(names)), attribute.Int("blocks.count", len(all)))
	return all, nil
}

// ScanResult: итог прогона описаний через реестр
type ScanResult struct {
	Total        int                            `json:"total"`
	Classified   int                            `json:"classified"`
	Unclassified int                            `json:"unclassified"`
	Rejected     int                            `json:"rejected"`
	ByType       map[woodtype.ComponentType]int `json:"by_type"`
}

// Scan прогоняет описания через реестр. Некорректные идентификаторы
// пропускаются и учитываются в Rejected. Отмена ctx прерывает прогон
// между блоками.
func Scan(ctx context.Context, reg *woodtype.Registry, defs []Definition, defaultNamespace string) (ScanResult, error) {
	ctx, span := tracer.Start(ctx, "blocksource.Scan")
	defer span.End()

	res := ScanResult{ByType: make(map[woodtype.ComponentType]int)}
	for _, d := range defs {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return res, err
		}
		res.Total++

		id, err := d.Identifier(defaultNamespace)
		if err != nil {
			res.Rejected++
			logging.Warn("⚠️ Пропущен блок %q: %v", d.ID, err)
			continue
		}

		t, _, ok := reg.Ingest(id, d.Block())
		if !ok {
			res.Unclassified++
			continue
		}
		res.Classified++
		res.ByType[t]++
	}

	span.SetAttributes(
		attribute.Int("blocks.total", res.Total),
		attribute.Int("blocks.classified", res.Classified),
		attribute.Int("blocks.rejected", res.Rejected),
	)
	return res, nil
}
