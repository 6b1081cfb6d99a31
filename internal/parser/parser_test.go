package parser

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/weftdb/weft/internal/expr"
)

func TestParse_Arithmetic(t *testing.T) {
	e, err := Parse("a + b * 2")
	require.NoError(t, err)

	want := expr.BinaryOp{
		Left:     expr.Variable{Name: "a"},
		Operator: expr.OpAdd,
		Right: expr.BinaryOp{
			Left:     expr.Variable{Name: "b"},
			Operator: expr.OpMul,
			Right:    expr.Literal{Value: expr.Number(2)},
		},
	}
	assert.Equal(t, want, e)
}

func TestParse_LeftAssociative(t *testing.T) {
	e, err := Parse("a - b - c")
	require.NoError(t, err)
	assert.Equal(t, "((a - b) - c)", expr.Render(e))
}

func TestParse_DottedIdentIsFieldAccess(t *testing.T) {
	e, err := Parse("Inventory.count")
	require.NoError(t, err)
	assert.Equal(t, expr.FieldAccess{Object: "Inventory", Field: "count"}, e)
}

func TestParse_FunctionCall(t *testing.T) {
	e, err := Parse("min(a, Inventory.count, 3)")
	require.NoError(t, err)

	call, ok := e.(expr.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "min", call.Name)
	assert.Len(t, call.Args, 3)
}

func TestParse_ExponentLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want expr.Number
	}{
		{"1e-07", 1e-07},
		{"1e+23", 1e+23},
		{"1.5E-3", 1.5e-3},
		{"2e10", 2e10},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, expr.Literal{Value: tt.want}, e)
		})
	}

	// A bare 'e' with no exponent digits is not part of the number: "2e"
	// lexes as the number 2 followed by the identifier e, which the
	// grammar rejects as a structured error, not an invalid-number crash.
	_, err := Parse("2e + 1")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
}

func TestParse_Comparison(t *testing.T) {
	e, err := Parse("a + 1 >= b")
	require.NoError(t, err)
	assert.Equal(t, "((a + 1) >= b)", expr.Render(e))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"trailing operator", "1 +"},
		{"unterminated call", "foo("},
		{"unterminated call with args", "foo(1, 2"},
		{"unknown token", "a @ b"},
		{"lone equals", "a = b"},
		{"dangling dot", "Inventory."},
		{"missing close paren", "(a + b"},
		{"empty input", ""},
		{"unterminated string", `"abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err, "source %q", tt.src)

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.NotEmpty(t, perr.Message)
		})
	}
}

func TestParseProgram_ReturnLast(t *testing.T) {
	stmts, err := ParseProgram("concat(\"a\", \"b\")\nreturn x + y")
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	_, ok := stmts[1].(expr.Return)
	assert.True(t, ok)
}

func TestParseProgram_ReturnMustBeFinal(t *testing.T) {
	_, err := ParseProgram("return x\ny + 1")
	require.Error(t, err)
}

func TestParseProgram_Empty(t *testing.T) {
	_, err := ParseProgram("  \n ")
	require.Error(t, err)
}

func TestCanonicalFixtures(t *testing.T) {
	data, err := os.ReadFile("testdata/canonical.yaml")
	require.NoError(t, err)

	var fixtures struct {
		Cases []struct {
			Name      string `yaml:"name"`
			Source    string `yaml:"source"`
			Canonical string `yaml:"canonical"`
		} `yaml:"cases"`
	}
	require.NoError(t, yaml.Unmarshal(data, &fixtures))
	require.NotEmpty(t, fixtures.Cases)

	for _, tc := range fixtures.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			stmts, err := ParseProgram(tc.Source)
			require.NoError(t, err)
			assert.Equal(t, tc.Canonical, expr.RenderProgram(stmts))
		})
	}
}

// Canonical rendering is idempotent: parsing the rendered form and
// rendering again yields the identical string.
func TestCanonicalRoundTripIdempotent(t *testing.T) {
	sources := []string{
		"a + b",
		"a*b - c/d",
		"min(1,2,  3)",
		"return   concat(first , last)",
		"Inventory.count * Pricing.unit",
		"-x + !done",
		`greeting + " world"`,
		"a >= b",
		// Literals small or large enough that canonical rendering uses
		// exponent notation.
		"0.0000001 + 1",
		"100000000000000000000000 * 2",
		"return 1.5e-3 + x",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			first, err := ParseProgram(src)
			require.NoError(t, err)
			canonical := expr.RenderProgram(first)

			second, err := ParseProgram(canonical)
			require.NoError(t, err)
			assert.Equal(t, canonical, expr.RenderProgram(second))
		})
	}
}
