package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
)

// Golden files live in testdata/golden. To regenerate them:
//
//	go test ./internal/harness -run TestGoldenScenarios -update
func TestGoldenScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "take_zero.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, "take_zero", result))
	assert.Error(t, AssertGolden(t, "take_zero", nil))
}

func TestMarshalSnapshot_Canonical(t *testing.T) {
	result := NewResult("snap")
	result.Providers = []string{ProviderMemory}
	result.Trace = []TraceEvent{
		{Seq: 1, Kind: EventTerminal, Op: "firstOrDefault", Expr: "source(p:Person)", Result: ir.IRNull{}},
		{Seq: 2, Kind: EventTerminal, Op: "single", Expr: "source(p:Person)", Error: ErrorExecution},
	}

	data, err := MarshalSnapshot(result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"providers":["memory"],"scenario_name":"snap","trace":[`+
			`{"expr":"source(p:Person)","kind":"terminal","op":"firstOrDefault","result":null,"seq":1},`+
			`{"error":"execution","expr":"source(p:Person)","kind":"terminal","op":"single","seq":2}]}`,
		string(data))
}

func TestCanonicalJSONDeterminism(t *testing.T) {
	result := NewResult("det")
	result.Providers = []string{ProviderMemory, ProviderSQLite}
	result.Trace = []TraceEvent{
		{Seq: 1, Kind: EventSequence, Op: "asLazySequence", Expr: "source(p:Person)",
			Result: ir.IRArray{ir.O("name", ir.IRString("ada"), "age", ir.IRInt(36), "active", ir.IRBool(true))}},
	}

	first, err := MarshalSnapshot(result)
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalSnapshot(result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, string(first), `{"active":true,"age":36,"name":"ada"}`)
}
