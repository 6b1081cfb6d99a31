// Package interp evaluates expression trees against a variable-binding
// environment.
//
// Evaluation is a pure tree walk: no side effects, no I/O, bounded by the
// depth of the AST. Failures are returned as *EvalError values.
package interp

import (
	"fmt"

	"github.com/weftdb/weft/internal/expr"
)

// Env maps variable and field names to values. Field references bind under
// their dotted "schema.field" path.
type Env map[string]expr.Value

// EvalError reports an evaluation failure: an unbound name, a type
// mismatch, a bad arity, or an unknown function.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return "evaluation error: " + e.Message
}

func evalErrf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

// Eval evaluates a single expression against env.
func Eval(e expr.Expression, env Env) (expr.Value, error) {
	switch node := e.(type) {
	case expr.Literal:
		return node.Value, nil

	case expr.Variable:
		v, ok := env[node.Name]
		if !ok {
			return nil, evalErrf("unbound variable %q", node.Name)
		}
		return v, nil

	case expr.FieldAccess:
		v, ok := env[node.Path()]
		if !ok {
			return nil, evalErrf("unbound field %q", node.Path())
		}
		return v, nil

	case expr.BinaryOp:
		left, err := Eval(node.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := Eval(node.Right, env)
		if err != nil {
			return nil, err
		}
		return evalBinary(node.Operator, left, right)

	case expr.UnaryOp:
		operand, err := Eval(node.Operand, env)
		if err != nil {
			return nil, err
		}
		return evalUnary(node.Operator, operand)

	case expr.FunctionCall:
		fn, ok := builtins[node.Name]
		if !ok {
			return nil, evalErrf("unknown function %q", node.Name)
		}
		args := make([]expr.Value, len(node.Args))
		for i, argExpr := range node.Args {
			v, err := Eval(argExpr, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(node.Name, args)

	case expr.Return:
		return Eval(node.Expr, env)

	default:
		return nil, evalErrf("unknown expression node %T", e)
	}
}

// EvalProgram evaluates a statement sequence and returns the value of the
// return statement, or of the last statement when no return is present.
func EvalProgram(stmts []expr.Expression, env Env) (expr.Value, error) {
	if len(stmts) == 0 {
		return nil, evalErrf("empty program")
	}

	var result expr.Value
	for _, stmt := range stmts {
		v, err := Eval(stmt, env)
		if err != nil {
			return nil, err
		}
		result = v
		if _, ok := stmt.(expr.Return); ok {
			return v, nil
		}
	}
	return result, nil
}

func evalBinary(op expr.Operator, left, right expr.Value) (expr.Value, error) {
	switch op {
	case expr.OpAdd:
		// '+' is numeric addition or string concatenation, never mixed.
		if l, ok := left.(expr.Number); ok {
			r, ok := right.(expr.Number)
			if !ok {
				return nil, typeErr(op, left, right)
			}
			return l + r, nil
		}
		if l, ok := left.(expr.String); ok {
			r, ok := right.(expr.String)
			if !ok {
				return nil, typeErr(op, left, right)
			}
			return l + r, nil
		}
		return nil, typeErr(op, left, right)

	case expr.OpSub, expr.OpMul, expr.OpDiv:
		l, lok := left.(expr.Number)
		r, rok := right.(expr.Number)
		if !lok || !rok {
			return nil, typeErr(op, left, right)
		}
		switch op {
		case expr.OpSub:
			return l - r, nil
		case expr.OpMul:
			return l * r, nil
		default:
			// IEEE-754 semantics: division by zero yields Inf, not an error.
			return l / r, nil
		}

	case expr.OpEq:
		return expr.Bool(expr.Equal(left, right)), nil
	case expr.OpNe:
		return expr.Bool(!expr.Equal(left, right)), nil

	case expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		return evalOrdered(op, left, right)

	default:
		return nil, evalErrf("operator %q is not binary", op)
	}
}

func evalOrdered(op expr.Operator, left, right expr.Value) (expr.Value, error) {
	var cmp int
	switch l := left.(type) {
	case expr.Number:
		r, ok := right.(expr.Number)
		if !ok {
			return nil, typeErr(op, left, right)
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	case expr.String:
		r, ok := right.(expr.String)
		if !ok {
			return nil, typeErr(op, left, right)
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	default:
		return nil, typeErr(op, left, right)
	}

	switch op {
	case expr.OpLt:
		return expr.Bool(cmp < 0), nil
	case expr.OpLe:
		return expr.Bool(cmp <= 0), nil
	case expr.OpGt:
		return expr.Bool(cmp > 0), nil
	default:
		return expr.Bool(cmp >= 0), nil
	}
}

func evalUnary(op expr.Operator, operand expr.Value) (expr.Value, error) {
	switch op {
	case expr.OpNeg:
		n, ok := operand.(expr.Number)
		if !ok {
			return nil, evalErrf("operator %q requires a number, got %s", op, expr.FormatValue(operand))
		}
		return -n, nil
	case expr.OpNot:
		b, ok := operand.(expr.Bool)
		if !ok {
			return nil, evalErrf("operator %q requires a boolean, got %s", op, expr.FormatValue(operand))
		}
		return !b, nil
	default:
		return nil, evalErrf("operator %q is not unary", op)
	}
}

func typeErr(op expr.Operator, left, right expr.Value) *EvalError {
	return evalErrf("operator %q incompatible with operands %s and %s",
		op, expr.FormatValue(left), expr.FormatValue(right))
}
