package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/crucible/internal/apperr"
)

func TestLoadDefinitions_MissingFileFallsBackToDefaults(t *testing.T) {
	defs, err := LoadDefinitions(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, defs)

	// Compiled-in catalog covers every registered strategy
	registry := NewRegistry()
	for _, kind := range registry.List() {
		assert.NotEmpty(t, defs.ForStrategy(kind), "no definitions for %s", kind)
	}
}

func TestLoadDefinitions_FileOverridesAndPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parameters.yaml")
	content := `strategies:
  - strategy: MOMENTUM
    parameters:
      - name: emaSlow
        type: number
        min: 20
        max: 40
        step: 10
        default: 30
      - name: emaFast
        type: number
        min: 5
        max: 15
        step: 5
        default: 10
      - name: longOnly
        type: boolean
        default: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)

	params := defs.ForStrategy(KindMomentum)
	require.Len(t, params, 3)

	// Declaration order from the file, not alphabetical
	assert.Equal(t, "emaSlow", params[0].Name)
	assert.Equal(t, "emaFast", params[1].Name)
	assert.Equal(t, "longOnly", params[2].Name)
	assert.Equal(t, ParamBoolean, params[2].Type)

	// File replaces the catalog wholesale
	assert.Nil(t, defs.ForStrategy(KindSMC))
}

func TestLoadDefinitions_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"non-positive step": `strategies:
  - strategy: SMC
    parameters:
      - {name: swingLookback, type: number, min: 3, max: 15, step: 0}
`,
		"max below min": `strategies:
  - strategy: SMC
    parameters:
      - {name: swingLookback, type: number, min: 15, max: 3, step: 1}
`,
		"select without options": `strategies:
  - strategy: AMPLITUDE
    parameters:
      - {name: fibLevel, type: select}
`,
		"unknown strategy": `strategies:
  - strategy: GRID
    parameters:
      - {name: spacing, type: number, min: 1, max: 2, step: 1}
`,
		"unknown type": `strategies:
  - strategy: SMC
    parameters:
      - {name: swingLookback, type: range}
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "parameters.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := LoadDefinitions(path)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
		})
	}
}

func TestDefinitions_Defaults(t *testing.T) {
	defs := DefaultDefinitions()

	params := defs.Defaults(KindSMC)
	assert.Equal(t, 5, params.Int("swingLookback", 0))
	assert.Equal(t, 2.0, params.Float("riskReward", 0))

	params = defs.Defaults(KindAmplitude)
	assert.Equal(t, "0.618", params.String("fibLevel", ""))
}

func TestParams_TypedGetters(t *testing.T) {
	params := Params{
		"a": 3.5,
		"b": 7,
		"c": true,
		"d": "0.618",
	}

	assert.Equal(t, 3.5, params.Float("a", 0))
	assert.Equal(t, 7.0, params.Float("b", 0))
	assert.Equal(t, 3, params.Int("a", 0))
	assert.Equal(t, 7, params.Int("b", 0))
	assert.True(t, params.Bool("c", false))
	assert.Equal(t, "0.618", params.String("d", ""))

	// Defaults on missing or mistyped values
	assert.Equal(t, 9.0, params.Float("missing", 9.0))
	assert.False(t, params.Bool("d", false))
	assert.Equal(t, "x", params.String("a", "x"))
}
