package ir

import (
	"fmt"
	"strings"
)

// TypeID is the runtime identity of an element type.
// It is the key of the operator dispatch table.
type TypeID string

// Kind classifies values of a descriptor or a row field.
type Kind string

const (
	KindInt    Kind = "int"
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
)

// ValidKinds lists the kinds a field or descriptor may have.
var ValidKinds = map[Kind]bool{
	KindInt:    true,
	KindString: true,
	KindBool:   true,
	KindObject: true,
}

// Field is one column of a row type.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// TypeDesc describes the element type flowing through a query handle.
//
// Scalar descriptors (int, string, bool) have no Fields. Row descriptors
// have Kind == KindObject and an ordered field list.
//
// A TypeDesc must not be modified after it has been registered.
type TypeDesc struct {
	ID     TypeID  `json:"id"`
	Kind   Kind    `json:"kind"`
	Fields []Field `json:"fields,omitempty"`
}

// Built-in scalar descriptors.
var (
	IntType    = &TypeDesc{ID: "int", Kind: KindInt}
	StringType = &TypeDesc{ID: "string", Kind: KindString}
	BoolType   = &TypeDesc{ID: "bool", Kind: KindBool}
)

// NewRowType creates a row descriptor with the given ordered fields.
func NewRowType(id TypeID, fields ...Field) *TypeDesc {
	return &TypeDesc{ID: id, Kind: KindObject, Fields: fields}
}

// Zero returns the dynamic view of the descriptor's zero value.
// Rows have no zero row; their zero value is IRNull.
func (t *TypeDesc) Zero() IRValue {
	switch t.Kind {
	case KindInt:
		return IRInt(0)
	case KindString:
		return IRString("")
	case KindBool:
		return IRBool(false)
	default:
		return IRNull{}
	}
}

// Field returns the named field and whether it exists.
func (t *TypeDesc) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the descriptor is internally consistent.
func (t *TypeDesc) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("type id is required")
	}
	if !ValidKinds[t.Kind] {
		return fmt.Errorf("type %s: invalid kind %q", t.ID, t.Kind)
	}
	if t.Kind != KindObject {
		if len(t.Fields) > 0 {
			return fmt.Errorf("type %s: scalar kind %s cannot have fields", t.ID, t.Kind)
		}
		return nil
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("type %s: field name is required", t.ID)
		}
		if seen[f.Name] {
			return fmt.Errorf("type %s: duplicate field %q", t.ID, f.Name)
		}
		if !ValidKinds[f.Kind] || f.Kind == KindObject {
			return fmt.Errorf("type %s: field %q has unsupported kind %q", t.ID, f.Name, f.Kind)
		}
		seen[f.Name] = true
	}
	return nil
}

// String renders the descriptor as "id" for scalars and
// "id{name:kind,...}" for rows.
func (t *TypeDesc) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind != KindObject {
		return string(t.ID)
	}
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.Name + ":" + string(f.Kind)
	}
	return string(t.ID) + "{" + strings.Join(parts, ",") + "}"
}
