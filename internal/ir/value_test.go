package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysSurrogatePairs(t *testing.T) {
	// U+FFFD is a single UTF-16 unit (0xFFFD); U+1F600 encodes as 0xD83D 0xDE00.
	// UTF-8 byte order would put U+FFFD first, UTF-16 order puts the emoji first.
	obj := IRObject{"\uFFFD": IRInt(1), "\U0001F600": IRInt(2)}
	assert.Equal(t, []string{"\U0001F600", "\uFFFD"}, obj.SortedKeys())
}

func TestO(t *testing.T) {
	obj := O("name", IRString("ada"), "age", IRInt(36))
	assert.Equal(t, IRObject{"name": IRString("ada"), "age": IRInt(36)}, obj)

	assert.Panics(t, func() { O("name") })
	assert.Panics(t, func() { O(1, IRInt(1)) })
	assert.Panics(t, func() { O("n", 1) })
}

func TestMarshalJSONSortedKeys(t *testing.T) {
	obj := IRObject{"b": IRInt(2), "a": IRArray{IRBool(true), IRNull{}}}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"b":2}`, string(data))
}

func TestMarshalIRValueNilObject(t *testing.T) {
	data, err := MarshalIRValue(IRObject(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want IRValue
	}{
		{"nil", nil, IRNull{}},
		{"bool", true, IRBool(true)},
		{"string", "x", IRString("x")},
		{"bytes", []byte("raw"), IRString("raw")},
		{"int", 7, IRInt(7)},
		{"int32", int32(-3), IRInt(-3)},
		{"uint8", uint8(9), IRInt(9)},
		{"integral float", float64(12), IRInt(12)},
		{"json number", json.Number("44"), IRInt(44)},
		{"slice", []any{1, "a"}, IRArray{IRInt(1), IRString("a")}},
		{"map", map[string]any{"k": false}, IRObject{"k": IRBool(false)}},
		{"passthrough", IRInt(5), IRInt(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGoRejects(t *testing.T) {
	for _, in := range []any{1.5, json.Number("2.5"), uint64(1 << 63), struct{}{}, []any{0.25}} {
		_, err := FromGo(in)
		assert.Error(t, err, "input %#v", in)
	}
}

func TestToGoRoundTrip(t *testing.T) {
	in := map[string]any{
		"name": "ada",
		"age":  int64(36),
		"tags": []any{"x", true},
	}
	v, err := FromGo(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToGo(v))
	assert.Nil(t, ToGo(IRNull{}))
	assert.Nil(t, ToGo(IRObject(nil)))
}
