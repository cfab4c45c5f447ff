package woodtype

import (
	"fmt"
	"strings"
)

// DefaultNamespace: пространство имён, которое подставляется, если оно не указано.
const DefaultNamespace = "minecraft"

// Identifier представляет идентификатор вида namespace:path.
type Identifier struct {
	Namespace string
	Path      string
}

// NewIdentifier создаёт идентификатор; пустой namespace заменяется на DefaultNamespace.
func NewIdentifier(namespace, path string) Identifier {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Identifier{Namespace: namespace, Path: path}
}

// ParseIdentifier разбирает строку "namespace:path" или "path".
func ParseIdentifier(s string) (Identifier, error) {
	return ParseIdentifierIn(DefaultNamespace, s)
}

// ParseIdentifierIn разбирает идентификатор, подставляя namespace по умолчанию.
func ParseIdentifierIn(namespace, s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identifier{}, fmt.Errorf("пустой идентификатор")
	}

	ns, path := namespace, s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		ns, path = s[:i], s[i+1:]
		if strings.IndexByte(path, ':') >= 0 {
			return Identifier{}, fmt.Errorf("идентификатор %q содержит более одного ':'", s)
		}
	}
	if path == "" {
		return Identifier{}, fmt.Errorf("идентификатор %q без пути", s)
	}
	return NewIdentifier(ns, path), nil
}

// String возвращает каноническую запись namespace:path
func (id Identifier) String() string {
	return id.Namespace + ":" + id.Path
}

// Equal сравнивает идентификатор с литералом namespace/path.
func (id Identifier) Equal(namespace, path string) bool {
	return id.Namespace == namespace && id.Path == path
}

// IsZero сообщает, что идентификатор не задан
func (id Identifier) IsZero() bool {
	return id.Namespace == "" && id.Path == ""
}

// Material: грубая категория материала блока.
type Material string

const (
	MaterialWood       Material = "wood"
	MaterialNetherWood Material = "nether_wood"
	MaterialLeaves     Material = "leaves"
	MaterialStone      Material = "stone"
	MaterialNone       Material = ""
)

// IsWoodLike возвращает true для обычной и незерской древесины
func (m Material) IsWoodLike() bool {
	return m == MaterialWood || m == MaterialNetherWood
}

// Block: непрозрачное описание блока, которое классифицирует реестр.
// Properties переносятся как есть и реестром не интерпретируются.
type Block struct {
	Material   Material               `json:"material,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Component: блок, привязанный к типу дерева под определённой ролью.
type Component struct {
	ID    Identifier
	Block Block
}

// Material возвращает материал блока компонента
func (c Component) Material() Material {
	return c.Block.Material
}

// Property возвращает непрозрачное свойство блока
func (c Component) Property(key string) (interface{}, bool) {
	v, ok := c.Block.Properties[key]
	return v, ok
}
