package expr

// Expression is a sealed interface over the AST node variants.
// Only Literal, Variable, FieldAccess, BinaryOp, UnaryOp, FunctionCall,
// and Return implement it.
type Expression interface {
	expression() // Sealed - only these types implement it
}

// Literal is a constant value.
type Literal struct {
	Value Value
}

func (Literal) expression() {}

// Variable references a bound name in the evaluation environment.
type Variable struct {
	Name string
}

func (Variable) expression() {}

// FieldAccess references a field on another schema, e.g. Inventory.count.
// Object is the schema name, Field the field name.
type FieldAccess struct {
	Object string
	Field  string
}

func (FieldAccess) expression() {}

// Path returns the dotted "schema.field" form used as an environment key.
func (f FieldAccess) Path() string {
	return f.Object + "." + f.Field
}

// BinaryOp applies an operator to two operands.
type BinaryOp struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

func (BinaryOp) expression() {}

// UnaryOp applies an operator to a single operand.
type UnaryOp struct {
	Operator Operator
	Operand  Expression
}

func (UnaryOp) expression() {}

// FunctionCall invokes a built-in function by name.
type FunctionCall struct {
	Name string
	Args []Expression
}

func (FunctionCall) expression() {}

// Return marks the result statement of a transform body.
type Return struct {
	Expr Expression
}

func (Return) expression() {}

// Operator identifies a binary or unary operation.
type Operator int

const (
	OpAdd Operator = iota + 1
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNeg
	OpNot
)

var operatorText = map[Operator]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpNeg: "-",
	OpNot: "!",
}

func (op Operator) String() string {
	if s, ok := operatorText[op]; ok {
		return s
	}
	return "?"
}
