package expr

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Render produces the canonical textual form of an expression.
//
// The canonical form is deterministic: binary operations are always fully
// parenthesized and string literals are NFC normalized, so rendering the
// parse of a canonical string yields the same string. Arbitrary input
// whitespace is not preserved; the round trip stabilizes on the second pass.
func Render(e Expression) string {
	var b strings.Builder
	render(&b, e)
	return b.String()
}

// RenderProgram renders a statement sequence, one statement per line.
func RenderProgram(stmts []Expression) string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = Render(s)
	}
	return strings.Join(lines, "\n")
}

func render(b *strings.Builder, e Expression) {
	switch node := e.(type) {
	case Literal:
		renderLiteral(b, node.Value)
	case Variable:
		b.WriteString(node.Name)
	case FieldAccess:
		b.WriteString(node.Object)
		b.WriteByte('.')
		b.WriteString(node.Field)
	case BinaryOp:
		b.WriteByte('(')
		render(b, node.Left)
		b.WriteByte(' ')
		b.WriteString(node.Operator.String())
		b.WriteByte(' ')
		render(b, node.Right)
		b.WriteByte(')')
	case UnaryOp:
		b.WriteString(node.Operator.String())
		render(b, node.Operand)
	case FunctionCall:
		b.WriteString(node.Name)
		b.WriteByte('(')
		for i, arg := range node.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, arg)
		}
		b.WriteByte(')')
	case Return:
		b.WriteString("return ")
		render(b, node.Expr)
	}
}

func renderLiteral(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case String:
		// NFC normalize at the serialization boundary so equal strings
		// render to equal canonical text.
		b.WriteString(strconv.Quote(norm.NFC.String(string(val))))
	default:
		b.WriteString(FormatValue(v))
	}
}
