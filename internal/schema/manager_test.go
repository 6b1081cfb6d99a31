package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/atom"
	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/kv"
	"github.com/weftdb/weft/internal/registry"
	"github.com/weftdb/weft/internal/transform"
)

func newManager(t *testing.T, opts ...Option) (*Manager, *registry.Registry, *atom.Store) {
	t.Helper()
	store, err := atom.Open(filepath.Join(t.TempDir(), "atoms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New()
	return NewManager(store, reg, bus.New(), opts...), reg, store
}

func numberSchema(name string, fields ...string) Schema {
	s := Schema{Name: name}
	for _, f := range fields {
		s.Fields = append(s.Fields, Field{Name: f, Type: TypeNumber, Variant: atom.KindSingle})
	}
	return s
}

func TestLoadRegistersTransforms(t *testing.T) {
	ctx := context.Background()
	m, reg, _ := newManager(t)

	s := numberSchema("B", "z")
	s.Transforms = []transform.Declaration{{
		Name:   "sum",
		Logic:  "return (A.x + A.y)",
		Inputs: []string{"A.x", "A.y"},
		Output: "B.z",
	}}
	require.NoError(t, m.Load(ctx, s))

	assert.Contains(t, reg.TransformsForField("A.x"), "B.sum")
	assert.Contains(t, reg.TransformsForField("A.y"), "B.sum")
}

func TestLoadRejectsUnparsableTransformWhole(t *testing.T) {
	ctx := context.Background()
	m, reg, _ := newManager(t)

	s := numberSchema("B", "z")
	s.Transforms = []transform.Declaration{
		{Name: "ok", Logic: "return (A.x + 1)", Inputs: []string{"A.x"}, Output: "B.z"},
		{Name: "broken", Logic: "return (1 +", Output: "B.q"},
	}

	err := m.Load(ctx, s)
	require.Error(t, err)
	assert.Equal(t, fault.InvalidDSL, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "broken")

	// Nothing was registered: the schema is rejected before persistence.
	assert.Empty(t, reg.TransformsForField("A.x"))
	assert.False(t, m.Schemas()["B"])
}

func TestWriteChecksDeclaration(t *testing.T) {
	ctx := context.Background()
	m, _, store := newManager(t)

	s := Schema{Name: "A", Fields: []Field{
		{Name: "x", Type: TypeNumber, Variant: atom.KindSingle},
		{Name: "tags", Type: TypeString, Variant: atom.KindCollection},
	}}
	require.NoError(t, m.Load(ctx, s))

	require.NoError(t, m.SetField(ctx, "A.x", expr.Number(1), "user"))
	v, err := store.LatestValue(ctx, "A.x")
	require.NoError(t, err)
	assert.Equal(t, expr.Number(1), v)

	// Unknown field.
	err = m.SetField(ctx, "A.nope", expr.Number(1), "user")
	assert.Equal(t, fault.InvalidField, fault.CodeOf(err))

	// Wrong variant.
	err = m.SetField(ctx, "A.tags", expr.String("t"), "user")
	assert.Equal(t, fault.InvalidField, fault.CodeOf(err))
	require.NoError(t, m.Append(ctx, "A.tags", expr.String("t"), "user"))

	// Wrong type.
	err = m.SetField(ctx, "A.x", expr.String("nan"), "user")
	assert.Equal(t, fault.InvalidData, fault.CodeOf(err))

	// Unknown schema.
	err = m.SetField(ctx, "Z.x", expr.Number(1), "user")
	assert.True(t, fault.IsNotFound(err))
}

func TestUnloadPreservesRegistrations(t *testing.T) {
	ctx := context.Background()
	m, reg, _ := newManager(t)

	s := numberSchema("B", "z")
	s.Transforms = []transform.Declaration{{
		Name: "sum", Logic: "return (A.x + 1)", Inputs: []string{"A.x"}, Output: "B.z",
	}}
	require.NoError(t, m.Load(ctx, s))
	require.NoError(t, m.Unload(ctx, "B"))

	// Writes rejected while unloaded.
	err := m.SetField(ctx, "B.z", expr.Number(1), "user")
	assert.Equal(t, fault.InvalidPermission, fault.CodeOf(err))

	// Registrations preserved for reload.
	assert.Contains(t, reg.TransformsForField("A.x"), "B.sum")

	require.NoError(t, m.Load(ctx, s))
	require.NoError(t, m.SetField(ctx, "B.z", expr.Number(1), "user"))
}

func TestRemoveDeletesEverywhere(t *testing.T) {
	ctx := context.Background()
	m, reg, store := newManager(t)

	s := numberSchema("B", "z")
	s.Transforms = []transform.Declaration{{
		Name: "sum", Logic: "return (A.x + 1)", Inputs: []string{"A.x"}, Output: "B.z",
	}}
	require.NoError(t, m.Load(ctx, s))
	require.NoError(t, m.SetField(ctx, "B.z", expr.Number(4), "user"))

	require.NoError(t, m.Remove(ctx, "B"))

	assert.Empty(t, reg.TransformsForField("A.x"))
	_, err := reg.Get("B.sum")
	assert.True(t, fault.IsNotFound(err))

	// The field reads as gone; its history atoms remain in the store.
	_, err = store.LatestValue(ctx, "B.z")
	assert.True(t, fault.IsNotFound(err))
}

func TestRestoreAfterRestart(t *testing.T) {
	ctx := context.Background()
	slots := kv.NewMemory()

	m, _, _ := newManager(t, WithSlots(slots))
	s := numberSchema("B", "z")
	s.Transforms = []transform.Declaration{{
		Name: "sum", Logic: "return (A.x + 1)", Inputs: []string{"A.x"}, Output: "B.z",
	}}
	require.NoError(t, m.Load(ctx, s))
	require.NoError(t, m.Unload(ctx, "B"))

	fresh, freshReg, _ := newManager(t, WithSlots(slots))
	require.NoError(t, fresh.Restore(ctx))

	loaded := fresh.Schemas()
	require.Contains(t, loaded, "B")
	assert.False(t, loaded["B"], "unloaded state survives restart")
	assert.Contains(t, freshReg.TransformsForField("A.x"), "B.sum")
}
