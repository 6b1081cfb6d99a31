// Package atom implements the versioned value store: immutable Atom
// snapshots chained by prev_uuid, and mutable AtomRefs pointing at the
// current atom(s) for a field.
package atom

import (
	"time"

	"github.com/google/uuid"

	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
)

// Atom is an immutable value snapshot. Created once, never mutated; prev
// links form the backward version chain for one logical slot.
type Atom struct {
	UUID       string
	SchemaName string
	PubKey     string
	Content    string // JSON text
	PrevUUID   string // empty for the first version
	CreatedAt  time.Time
}

// Value decodes the atom content into the expression value model.
func (a Atom) Value() (expr.Value, error) {
	v, err := expr.UnmarshalValue([]byte(a.Content))
	if err != nil {
		return nil, fault.Wrap(fault.InvalidData, "atom "+a.UUID, err)
	}
	return v, nil
}

// RefKind distinguishes the three atom-reference variants.
type RefKind string

const (
	KindSingle     RefKind = "single"
	KindCollection RefKind = "collection"
	KindRange      RefKind = "range"
)

// RefStatus is the lifecycle state of a reference. Transitions to
// StatusDeleted are explicit and auditable; a ref row is never removed.
type RefStatus string

const (
	StatusActive  RefStatus = "active"
	StatusDeleted RefStatus = "deleted"
)

// Ref is a mutable named pointer to the current atom(s) for a field.
type Ref struct {
	UUID      string
	Kind      RefKind
	FieldPath string
	Status    RefStatus
	PubKey    string
	UpdatedAt time.Time
}

// newUUID returns a time-sortable UUIDv7 string.
func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}
