// Package expr defines the transform expression model: runtime values,
// the expression AST, and deterministic canonical rendering.
//
// Values and expressions are closed tagged-variant types. Both interfaces
// are sealed - only the types in this package implement them - so a type
// switch over the variants is exhaustive.
package expr
