package schema

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/queryexpr"
)

func TestCompileRowTypeBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		row: Person: {
			name:   string
			age:    int
			active: bool
		}
	`)
	require.NoError(t, v.Err())

	desc, err := CompileRowType(v.LookupPath(cue.ParsePath("row.Person")))
	require.NoError(t, err)

	assert.Equal(t, ir.TypeID("Person"), desc.ID)
	assert.Equal(t, ir.KindObject, desc.Kind)
	assert.Equal(t, []ir.Field{
		{Name: "name", Kind: ir.KindString},
		{Name: "age", Kind: ir.KindInt},
		{Name: "active", Kind: ir.KindBool},
	}, desc.Fields)
}

func TestCompileRowTypeDefaultsKeepKind(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		row: Item: {
			sku: string | *"none"
			qty: int & >=0
		}
	`)
	require.NoError(t, v.Err())

	desc, err := CompileRowType(v.LookupPath(cue.ParsePath("row.Item")))
	require.NoError(t, err)
	assert.Equal(t, "Item{sku:string,qty:int}", desc.String())
}

func TestCompileRowTypeRejects(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		path    string
		wantErr string
	}{
		{
			name:    "float field",
			src:     `row: M: { v: float }`,
			path:    "row.M",
			wantErr: "float types are forbidden",
		},
		{
			name:    "number field",
			src:     `row: M: { v: number }`,
			path:    "row.M",
			wantErr: "float types are forbidden",
		},
		{
			name:    "reserved field",
			src:     `row: M: { "_ORD": int }`,
			path:    "row.M",
			wantErr: "reserved for sequence order",
		},
		{
			name:    "nested struct",
			src:     `row: M: { v: { x: int } }`,
			path:    "row.M",
			wantErr: "unsupported field kind",
		},
		{
			name:    "list field",
			src:     `row: M: { v: [...int] }`,
			path:    "row.M",
			wantErr: "unsupported field kind",
		},
		{
			name:    "no fields",
			src:     `row: M: {}`,
			path:    "row.M",
			wantErr: "at least one field is required",
		},
		{
			name:    "not a struct",
			src:     `row: M: int`,
			path:    "row.M",
			wantErr: "must be a struct",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			require.NoError(t, v.Err())

			_, err := CompileRowType(v.LookupPath(cue.ParsePath(tt.path)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
		})
	}
}

func TestCompileErrorFormatting(t *testing.T) {
	err := &CompileError{Field: "type", Message: "bad"}
	assert.Equal(t, "type: bad", err.Error())
}

func TestLoadValidDirectory(t *testing.T) {
	result, errs := Load("testdata/valid", LoadModeCollectAll)
	require.Empty(t, errs)

	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Types, 2)
	assert.Equal(t, ir.TypeID("Order"), result.Types[0].ID)
	assert.Equal(t, ir.TypeID("Person"), result.Types[1].ID)

	person, ok := result.Lookup("Person")
	require.True(t, ok)
	assert.Len(t, person.Fields, 3)

	_, ok = result.Lookup("Ghost")
	assert.False(t, ok)
}

func TestLoadRegistersRowTypes(t *testing.T) {
	result, errs := Load("testdata/valid", LoadModeFailFast)
	require.Empty(t, errs)

	reg := operator.NewRegistry()
	require.NoError(t, result.Register(reg))

	m, err := reg.Resolve(queryexpr.OpFirstOrDefault, "Order")
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject(nil), m.Zero())

	// Registering twice collides.
	assert.Error(t, result.Register(reg))
}

func TestLoadFloatCollectsAll(t *testing.T) {
	result, errs := Load("testdata/float", LoadModeCollectAll)
	require.Len(t, errs, 1)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeInvalidType, le.Code)
	assert.True(t, le.Pos.IsValid(), "float errors carry a CUE position")
	assert.Contains(t, le.Error(), "metrics.cue")

	// The valid row in the same file still loads.
	require.Len(t, result.Types, 1)
	assert.Equal(t, ir.TypeID("Counter"), result.Types[0].ID)
}

func TestLoadFailFast(t *testing.T) {
	_, errs := Load("testdata/float", LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoadNoRows(t *testing.T) {
	_, errs := Load("testdata/empty", LoadModeCollectAll)
	require.Len(t, errs, 1)
	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNoRows, le.Code)
}

func TestLoadBrokenSchema(t *testing.T) {
	_, errs := Load("testdata/broken", LoadModeCollectAll)
	assert.NotEmpty(t, errs)
}

func TestLoadMissingDirectory(t *testing.T) {
	_, errs := Load("testdata/nope", LoadModeCollectAll)
	require.Len(t, errs, 1)
	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadNoCUEFiles(t *testing.T) {
	_, errs := Load(t.TempDir(), LoadModeCollectAll)
	require.Len(t, errs, 1)
	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}

func TestLoadString(t *testing.T) {
	result, errs := LoadString(`row: B: { x: int }
row: A: { y: string }`)
	require.Empty(t, errs)
	require.Len(t, result.Types, 2)
	assert.Equal(t, ir.TypeID("A"), result.Types[0].ID)

	_, errs = LoadString(`row: A: { y: string`)
	assert.NotEmpty(t, errs)
}
