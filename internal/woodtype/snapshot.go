package woodtype

import "fmt"

// Snapshot: сериализуемый срез состояния типа дерева для API, хранилища и шины.
type Snapshot struct {
	ID         string                              `json:"id"`
	Namespace  string                              `json:"namespace"`
	Path       string                              `json:"path"`
	PathName   string                              `json:"path_name"`
	LangPath   string                              `json:"lang_path"`
	LogType    string                              `json:"log_type"`
	Components map[ComponentType]ComponentSnapshot `json:"components"`
}

// ComponentSnapshot: сериализуемое представление компонента
type ComponentSnapshot struct {
	ID         string                 `json:"id"`
	Material   Material               `json:"material,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Snapshot снимает текущее состояние типа дерева
func (wt *WoodType) Snapshot() Snapshot {
	components := wt.Components()
	s := Snapshot{
		ID:         wt.id.String(),
		Namespace:  wt.id.Namespace,
		Path:       wt.id.Path,
		PathName:   wt.pathName,
		LangPath:   wt.langPath,
		LogType:    wt.LogType(),
		Components: make(map[ComponentType]ComponentSnapshot, len(components)),
	}
	for t, c := range components {
		s.Components[t] = SnapshotOf(c)
	}
	return s
}

// SnapshotOf переводит компонент в сериализуемый вид
func SnapshotOf(c Component) ComponentSnapshot {
	return ComponentSnapshot{
		ID:         c.ID.String(),
		Material:   c.Block.Material,
		Properties: c.Block.Properties,
	}
}

// Identifier возвращает идентификатор типа дерева из снимка
func (s Snapshot) Identifier() Identifier {
	return NewIdentifier(s.Namespace, s.Path)
}

// HasComponents проверяет, что снимок содержит все роли
func (s Snapshot) HasComponents(types ...ComponentType) bool {
	for _, t := range types {
		if _, ok := s.Components[t]; !ok {
			return false
		}
	}
	return true
}

// Component восстанавливает компонент из снимка
func (cs ComponentSnapshot) Component() (Component, error) {
	id, err := ParseIdentifier(cs.ID)
	if err != nil {
		return Component{}, fmt.Errorf("компонент %q: %w", cs.ID, err)
	}
	return Component{
		ID:    id,
		Block: Block{Material: cs.Material, Properties: cs.Properties},
	}, nil
}
