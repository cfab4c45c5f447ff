package woodtype

import (
	"fmt"
	"strings"
)

// ComponentType: роль блока внутри типа дерева.
// Набор расширяем: любая непустая строка является допустимой ролью.
type ComponentType string

const (
	Planks ComponentType = "planks"
	Log    ComponentType = "log"
	Slab   ComponentType = "slab"
	Leaves ComponentType = "leaves"
)

// BuiltinComponentTypes возвращает встроенные роли в порядке классификации
func BuiltinComponentTypes() []ComponentType {
	return []ComponentType{Planks, Log, Slab, Leaves}
}

// Filter выводит имя типа дерева из идентификатора блока.
// ok == false означает, что блок этой роли не соответствует.
type Filter func(id Identifier, block Block) (woodName string, ok bool)

// Rule связывает роль с фильтром.
type Rule struct {
	Type   ComponentType
	Filter Filter
}

// Classifier применяет правила по порядку: первое совпавшее правило побеждает.
// Classifier неизменяем, его можно разделять между горутинами.
type Classifier struct {
	rules []Rule
}

// NewClassifier создаёт классификатор с указанными правилами
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// DefaultClassifier возвращает классификатор со встроенными правилами
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultRules()...)
}

// With возвращает новый классификатор с правилами, добавленными в конец.
// Добавленное правило не может перехватить блок у более раннего правила.
func (c *Classifier) With(rules ...Rule) *Classifier {
	merged := make([]Rule, 0, len(c.rules)+len(rules))
	merged = append(merged, c.rules...)
	merged = append(merged, rules...)
	return &Classifier{rules: merged}
}

// Rules возвращает копию списка правил
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Types возвращает роли в порядке правил (без повторов)
func (c *Classifier) Types() []ComponentType {
	seen := make(map[ComponentType]struct{}, len(c.rules))
	types := make([]ComponentType, 0, len(c.rules))
	for _, r := range c.rules {
		if _, ok := seen[r.Type]; ok {
			continue
		}
		seen[r.Type] = struct{}{}
		types = append(types, r.Type)
	}
	return types
}

// Classify возвращает роль и имя типа дерева для блока.
func (c *Classifier) Classify(id Identifier, block Block) (ComponentType, string, bool) {
	for _, r := range c.rules {
		if woodName, ok := r.Filter(id, block); ok {
			return r.Type, woodName, true
		}
	}
	return "", "", false
}

// DefaultRules возвращает встроенные правила. Порядок значим.
func DefaultRules() []Rule {
	return []Rule{
		{Type: Planks, Filter: planksFilter},
		{Type: Log, Filter: logFilter},
		{Type: Slab, Filter: slabFilter},
		{Type: Leaves, Filter: leavesFilter},
	}
}

// SuffixRule строит простое правило: путь заканчивается суффиксом,
// при requireWood материал должен быть древесным.
func SuffixRule(t ComponentType, suffix string, requireWood bool) (Rule, error) {
	if t == "" {
		return Rule{}, fmt.Errorf("пустая роль правила")
	}
	if suffix == "" {
		return Rule{}, fmt.Errorf("пустой суффикс для роли %s", t)
	}
	return Rule{
		Type: t,
		Filter: func(id Identifier, block Block) (string, bool) {
			if requireWood && !block.Material.IsWoodLike() {
				return "", false
			}
			return trimSuffix(id.Path, suffix)
		},
	}, nil
}

func trimSuffix(path, suffix string) (string, bool) {
	if !strings.HasSuffix(path, suffix) {
		return "", false
	}
	return path[:len(path)-len(suffix)], true
}

func planksFilter(id Identifier, _ Block) (string, bool) {
	return trimSuffix(id.Path, "_planks")
}

func logFilter(id Identifier, block Block) (string, bool) {
	if !block.Material.IsWoodLike() {
		return "", false
	}
	if strings.HasPrefix(id.Path, "stripped_") {
		return "", false
	}
	if name, ok := trimSuffix(id.Path, "_log"); ok {
		return name, true
	}
	return trimSuffix(id.Path, "_stem")
}

func slabFilter(id Identifier, block Block) (string, bool) {
	name, ok := trimSuffix(id.Path, "_slab")
	if !ok || !block.Material.IsWoodLike() {
		return "", false
	}
	return name, true
}

func leavesFilter(id Identifier, _ Block) (string, bool) {
	// Блок бородавок незерского нароста считается листвой багрового дерева
	if id.Equal("minecraft", "nether_wart_block") {
		return "crimson", true
	}

	name, ok := trimSuffix(id.Path, "_leaves")
	if !ok {
		name, ok = trimSuffix(id.Path, "_wart_block")
	}
	if !ok {
		return "", false
	}

	if strings.HasPrefix(id.Path, "flowering") {
		return "", false
	}
	return name, true
}
