package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/atom"
)

const pricingCUE = `
schema: Pricing: {
	fields: {
		unit:  {type: "number"}
		tiers: {type: "number", variant: "range"}
		notes: {type: "string", variant: "collection"}
	}
	transforms: {
		total: {
			logic:  "return (Pricing.unit * Inventory.count)"
			inputs: ["Pricing.unit", "Inventory.count"]
			output: "Pricing.total"
			reversible: true
		}
	}
}
schema: Inventory: {
	fields: {
		count: {type: "number"}
	}
}
`

func TestCompileString(t *testing.T) {
	schemas, err := CompileString(pricingCUE)
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	// Sorted by name.
	assert.Equal(t, "Inventory", schemas[0].Name)
	pricing := schemas[1]
	assert.Equal(t, "Pricing", pricing.Name)
	require.Len(t, pricing.Fields, 3)

	unit, ok := pricing.Field("unit")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, unit.Type)
	assert.Equal(t, atom.KindSingle, unit.Variant)

	tiers, ok := pricing.Field("tiers")
	require.True(t, ok)
	assert.Equal(t, atom.KindRange, tiers.Variant)

	require.Len(t, pricing.Transforms, 1)
	tr := pricing.Transforms[0]
	assert.Equal(t, "total", tr.Name)
	assert.Equal(t, "Pricing.total", tr.Output)
	assert.Equal(t, []string{"Pricing.unit", "Inventory.count"}, tr.Inputs)
	assert.True(t, tr.Reversible)
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"no schema block", `other: {}`},
		{"missing fields", `schema: A: {transforms: {}}`},
		{"empty fields", `schema: A: {fields: {}}`},
		{"missing type", `schema: A: {fields: {x: {variant: "single"}}}`},
		{"bad type", `schema: A: {fields: {x: {type: "decimal"}}}`},
		{"bad variant", `schema: A: {fields: {x: {type: "number", variant: "tree"}}}`},
		{"transform missing logic", `schema: A: {fields: {x: {type: "number"}}, transforms: {t: {output: "A.y"}}}`},
		{"transform missing output", `schema: A: {fields: {x: {type: "number"}}, transforms: {t: {logic: "return 1"}}}`},
		{"invalid cue", `schema: A: {fields`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CompileString(tc.src)
			require.Error(t, err)
			var ce *CompileError
			assert.ErrorAs(t, err, &ce)
		})
	}
}
