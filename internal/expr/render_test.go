package expr

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{
			"return of addition",
			Return{Expr: BinaryOp{Left: Variable{Name: "a"}, Operator: OpAdd, Right: Variable{Name: "b"}}},
			"return (a + b)",
		},
		{
			"field access",
			FieldAccess{Object: "Inventory", Field: "count"},
			"Inventory.count",
		},
		{
			"nested precedence is explicit",
			BinaryOp{
				Left:     BinaryOp{Left: Variable{Name: "a"}, Operator: OpMul, Right: Variable{Name: "b"}},
				Operator: OpSub,
				Right:    Literal{Value: Number(1)},
			},
			"((a * b) - 1)",
		},
		{
			"function call",
			FunctionCall{Name: "min", Args: []Expression{Literal{Value: Number(5)}, Literal{Value: Number(3)}}},
			"min(5, 3)",
		},
		{
			"unary negation",
			UnaryOp{Operator: OpNeg, Operand: Variable{Name: "x"}},
			"-x",
		},
		{
			"string literal quoted",
			Literal{Value: String(`he said "hi"`)},
			`"he said \"hi\""`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.expr))
		})
	}
}

func TestRenderNormalizesStringLiterals(t *testing.T) {
	// "\u00e9" precomposed and "e" plus a combining acute accent must
	// render to the same canonical text.
	composed := Literal{Value: String("caf\u00e9")}
	decomposed := Literal{Value: String("cafe\u0301")}

	assert.Equal(t, Render(composed), Render(decomposed))
	assert.Equal(t, "\"caf\u00e9\"", Render(composed))
}

func TestRenderProgramGolden(t *testing.T) {
	stmts := []Expression{
		FunctionCall{Name: "concat", Args: []Expression{
			Literal{Value: String("Hello")},
			Literal{Value: String("World")},
		}},
		Return{Expr: BinaryOp{
			Left:     FieldAccess{Object: "Pricing", Field: "unit"},
			Operator: OpMul,
			Right:    FieldAccess{Object: "Inventory", Field: "count"},
		}},
	}

	g := goldie.New(t)
	g.Assert(t, "program", []byte(RenderProgram(stmts)))
}
