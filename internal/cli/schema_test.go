package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/schema"
)

func TestSchema_Text(t *testing.T) {
	out, err := execute(t, "schema", "testdata/schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Person {name: string, age: int, active: bool}")
	assert.Contains(t, out, "1 row type(s) in 1 file(s)")
}

func TestSchema_JSON(t *testing.T) {
	out, err := execute(t, "schema", "testdata/schema", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, 1.0, data["files"])

	types := data["types"].([]any)
	require.Len(t, types, 1)
	person := types[0].(map[string]any)
	assert.Equal(t, "Person", person["id"])
	assert.NotEmpty(t, person["hash"])
	assert.Len(t, person["fields"], 3)
}

func TestSchema_FloatRejected(t *testing.T) {
	out, err := execute(t, "schema", "testdata/broken", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, schema.ErrCodeInvalidType, resp.Error.Code)
	assert.Contains(t, resp.Error.Details.([]any)[0], "float types are forbidden")
}

func TestSchema_MissingDir(t *testing.T) {
	out, err := execute(t, "schema", "testdata/nope")
	require.Error(t, err)
	assert.Contains(t, out, "Error [E005]")
}
