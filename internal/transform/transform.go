// Package transform defines the transform model: a named expression over
// declared input fields that computes a derived output field.
package transform

import (
	"strings"
	"sync"

	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/parser"
)

// Transform is a registered derived-value computation.
//
// Inputs and Output are "schema.field" paths. The parsed AST is populated
// lazily on first use and cached; RawLogic is the source of truth.
type Transform struct {
	ID         string
	RawLogic   string
	Output     string
	Inputs     []string
	Reversible bool
	Signature  string

	mu     sync.Mutex
	parsed []expr.Expression
}

// Declaration is the schema-file form of a transform before registration.
type Declaration struct {
	Name       string   `json:"name"`
	Logic      string   `json:"logic"`
	Inputs     []string `json:"inputs"`
	Output     string   `json:"output"`
	Reversible bool     `json:"reversible"`
	Signature  string   `json:"signature,omitempty"`
}

// New creates a transform directly from source text.
func New(id, logic, output string, inputs []string) *Transform {
	return &Transform{
		ID:       id,
		RawLogic: logic,
		Output:   output,
		Inputs:   append([]string(nil), inputs...),
	}
}

// FromDeclaration builds a transform from a declaration, qualifying its id
// with the owning schema. The logic is parsed eagerly so an invalid
// declaration is rejected before it can be registered or persisted.
func FromDeclaration(schema string, d Declaration) (*Transform, error) {
	t := &Transform{
		ID:         schema + "." + d.Name,
		RawLogic:   d.Logic,
		Output:     d.Output,
		Inputs:     append([]string(nil), d.Inputs...),
		Reversible: d.Reversible,
		Signature:  d.Signature,
	}
	if _, err := t.Parsed(); err != nil {
		return nil, err
	}
	return t, nil
}

// Parsed returns the cached AST, parsing RawLogic on first call.
// A parse failure is reported as an InvalidDSL fault.
func (t *Transform) Parsed() ([]expr.Expression, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.parsed != nil {
		return t.parsed, nil
	}

	stmts, err := parser.ParseProgram(t.RawLogic)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidDSL, "parse transform "+t.ID, err)
	}
	t.parsed = stmts
	return stmts, nil
}

// Canonical returns the deterministic textual form of the transform logic.
func (t *Transform) Canonical() (string, error) {
	stmts, err := t.Parsed()
	if err != nil {
		return "", err
	}
	return expr.RenderProgram(stmts), nil
}

// Schema returns the schema component of the transform id.
func (t *Transform) Schema() string {
	if i := strings.IndexByte(t.ID, '.'); i >= 0 {
		return t.ID[:i]
	}
	return t.ID
}

// Snapshot is the persistence form of a transform, stored in the canonical
// transform list slot. The parsed AST is not persisted; it is rebuilt from
// RawLogic on load.
type Snapshot struct {
	ID         string   `json:"id"`
	RawLogic   string   `json:"raw_logic"`
	Output     string   `json:"output"`
	Inputs     []string `json:"inputs"`
	Reversible bool     `json:"reversible"`
	Signature  string   `json:"signature,omitempty"`
}

// Snapshot returns the persistence form of t.
func (t *Transform) Snapshot() Snapshot {
	return Snapshot{
		ID:         t.ID,
		RawLogic:   t.RawLogic,
		Output:     t.Output,
		Inputs:     append([]string(nil), t.Inputs...),
		Reversible: t.Reversible,
		Signature:  t.Signature,
	}
}

// FromSnapshot rebuilds a transform from its persistence form.
func FromSnapshot(s Snapshot) *Transform {
	return &Transform{
		ID:         s.ID,
		RawLogic:   s.RawLogic,
		Output:     s.Output,
		Inputs:     append([]string(nil), s.Inputs...),
		Reversible: s.Reversible,
		Signature:  s.Signature,
	}
}
