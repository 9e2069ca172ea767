package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZero(t *testing.T) {
	assert.Equal(t, IRInt(0), IntType.Zero())
	assert.Equal(t, IRString(""), StringType.Zero())
	assert.Equal(t, IRBool(false), BoolType.Zero())

	person := NewRowType("Person", Field{"name", KindString}, Field{"age", KindInt})
	assert.Equal(t, IRNull{}, person.Zero())
}

func TestTypeDescValidate(t *testing.T) {
	require.NoError(t, IntType.Validate())
	require.NoError(t, NewRowType("Person", Field{"name", KindString}).Validate())

	tests := []struct {
		name string
		desc *TypeDesc
		want string
	}{
		{"missing id", &TypeDesc{Kind: KindInt}, "type id is required"},
		{"bad kind", &TypeDesc{ID: "x", Kind: "float"}, "invalid kind"},
		{"scalar with fields", &TypeDesc{ID: "x", Kind: KindInt, Fields: []Field{{"a", KindInt}}}, "cannot have fields"},
		{"duplicate field", NewRowType("x", Field{"a", KindInt}, Field{"a", KindString}), "duplicate field"},
		{"nested object", NewRowType("x", Field{"a", KindObject}), "unsupported kind"},
		{"empty field name", NewRowType("x", Field{"", KindInt}), "field name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTypeDescField(t *testing.T) {
	person := NewRowType("Person", Field{"name", KindString}, Field{"age", KindInt})

	f, ok := person.Field("age")
	require.True(t, ok)
	assert.Equal(t, KindInt, f.Kind)

	_, ok = person.Field("missing")
	assert.False(t, ok)
}

func TestTypeDescString(t *testing.T) {
	assert.Equal(t, "int", IntType.String())
	person := NewRowType("Person", Field{"name", KindString}, Field{"age", KindInt})
	assert.Equal(t, "Person{name:string,age:int}", person.String())

	var nilDesc *TypeDesc
	assert.Equal(t, "<nil>", nilDesc.String())
}
