package types

import (
	"sort"
	"time"
)

// Attributes is the attribute map attached to entities and relationships.
type Attributes map[string]Value

// SortedKeys returns the attribute keys in ascending order. All iteration
// whose order is observable (text extraction, serialization) uses it.
func (a Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the attribute map. Values are immutable
// from the store's point of view, so a shallow copy is sufficient.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Entity is a typed, attributed node in the knowledge graph.
// The ID is caller-assigned, globally unique within one graph instance,
// and immutable after creation.
type Entity struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Attributes Attributes `json:"attributes"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a copy of the entity with a detached attribute map.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Attributes = e.Attributes.Clone()
	return &out
}

// StringAttr returns the named attribute as a string, or "" when the
// attribute is absent or not a string.
func (e *Entity) StringAttr(key string) string {
	return e.Attributes[key].Str()
}

// StringListAttr returns the named attribute's string items. A plain
// string attribute is returned as a one-element slice; non-string list
// items are skipped.
func (e *Entity) StringListAttr(key string) []string {
	v, ok := e.Attributes[key]
	if !ok {
		return nil
	}
	switch v.Kind() {
	case KindString:
		return []string{v.Str()}
	case KindList:
		var out []string
		for _, item := range v.Items() {
			if item.Kind() == KindString {
				out = append(out, item.Str())
			}
		}
		return out
	default:
		return nil
	}
}
