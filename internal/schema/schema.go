// Package schema implements schema declarations and their lifecycle:
// CUE-compiled field and transform declarations, loaded into the
// registry and written through to the atom store.
package schema

import (
	"github.com/weftdb/weft/internal/atom"
	"github.com/weftdb/weft/internal/transform"
)

// FieldType constrains the values a field accepts.
type FieldType string

const (
	TypeNumber FieldType = "number"
	TypeString FieldType = "string"
	TypeBool   FieldType = "bool"
)

// Field is one declared field of a schema.
type Field struct {
	Name    string       `json:"name"`
	Type    FieldType    `json:"type"`
	Variant atom.RefKind `json:"variant"`
}

// Schema is one compiled schema declaration.
type Schema struct {
	Name       string                  `json:"name"`
	Fields     []Field                 `json:"fields"`
	Transforms []transform.Declaration `json:"transforms,omitempty"`
}

// Field returns the declared field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
