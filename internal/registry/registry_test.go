package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/kv"
	"github.com/weftdb/weft/internal/transform"
)

func testTransform(id, output string, inputs ...string) *transform.Transform {
	return transform.New(id, "return 1", output, inputs)
}

func TestRegisterIndexesBothDirections(t *testing.T) {
	ctx := context.Background()
	r := New()

	tr := testTransform("B.sum", "B.z", "A.x", "A.y")
	require.NoError(t, r.Register(ctx, tr))

	assert.Contains(t, r.TransformsForField("A.x"), "B.sum")
	assert.Contains(t, r.TransformsForField("A.y"), "B.sum")

	fields, err := r.FieldsForTransform("B.sum")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.x", "A.y"}, fields)
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := New()

	require.NoError(t, r.Register(ctx, testTransform("B.sum", "B.z", "A.x", "A.y")))
	// Re-register with a changed input set; the old reverse entry must go.
	require.NoError(t, r.Register(ctx, testTransform("B.sum", "B.z", "A.x")))

	assert.Equal(t, []string{"B.sum"}, r.TransformsForField("A.x"))
	assert.Empty(t, r.TransformsForField("A.y"))

	fields, err := r.FieldsForTransform("B.sum")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.x"}, fields)
}

func TestUnregisterRemovesAllEntries(t *testing.T) {
	ctx := context.Background()
	r := New()

	require.NoError(t, r.Register(ctx, testTransform("B.sum", "B.z", "A.x")))
	require.NoError(t, r.BindInputRef(ctx, "B.sum", "ref-1", "A.x"))
	require.NoError(t, r.BindOutputRef(ctx, "B.sum", "ref-2"))

	require.NoError(t, r.Unregister(ctx, "B.sum"))

	assert.Empty(t, r.TransformsForField("A.x"))
	assert.Empty(t, r.TransformsForRef("ref-1"))
	_, ok := r.OutputRef("B.sum")
	assert.False(t, ok)
	_, err := r.Get("B.sum")
	assert.True(t, fault.IsNotFound(err))

	err = r.Unregister(ctx, "B.sum")
	assert.True(t, fault.IsNotFound(err))
}

func TestRegisterRejectsCycle(t *testing.T) {
	ctx := context.Background()
	r := New()

	require.NoError(t, r.Register(ctx, testTransform("S.ab", "S.b", "S.a")))
	require.NoError(t, r.Register(ctx, testTransform("S.bc", "S.c", "S.b")))

	err := r.Register(ctx, testTransform("S.ca", "S.a", "S.c"))
	require.Error(t, err)
	assert.Equal(t, fault.InvalidTransform, fault.CodeOf(err))
	// The rejected transform left no residue.
	_, getErr := r.Get("S.ca")
	assert.True(t, fault.IsNotFound(getErr))
	assert.Empty(t, r.TransformsForField("S.c"))
}

func TestRegisterRejectsSelfTrigger(t *testing.T) {
	ctx := context.Background()
	r := New()

	err := r.Register(ctx, testTransform("S.loop", "S.x", "S.x"))
	require.Error(t, err)
	assert.Equal(t, fault.InvalidTransform, fault.CodeOf(err))
}

func TestRemoveSchemaIsSelective(t *testing.T) {
	ctx := context.Background()
	r := New()

	require.NoError(t, r.Register(ctx, testTransform("A.one", "A.out", "X.in")))
	require.NoError(t, r.Register(ctx, testTransform("A.two", "A.out2", "X.in")))
	require.NoError(t, r.Register(ctx, testTransform("B.keep", "B.out", "X.in")))

	require.NoError(t, r.RemoveSchema(ctx, "A"))

	assert.Equal(t, []string{"B.keep"}, r.TransformsForField("X.in"))
	_, err := r.Get("A.one")
	assert.True(t, fault.IsNotFound(err))
	_, err = r.Get("B.keep")
	require.NoError(t, err)
}

func TestRefBindings(t *testing.T) {
	ctx := context.Background()
	r := New()

	require.NoError(t, r.Register(ctx, testTransform("B.sum", "B.z", "A.x")))
	require.NoError(t, r.BindInputRef(ctx, "B.sum", "ref-in", "A.x"))
	require.NoError(t, r.BindOutputRef(ctx, "B.sum", "ref-out"))

	assert.Equal(t, []string{"B.sum"}, r.TransformsForRef("ref-in"))
	name, ok := r.InputName("B.sum", "ref-in")
	require.True(t, ok)
	assert.Equal(t, "A.x", name)
	out, ok := r.OutputRef("B.sum")
	require.True(t, ok)
	assert.Equal(t, "ref-out", out)

	err := r.BindInputRef(ctx, "nope", "ref-in", "A.x")
	assert.True(t, fault.IsNotFound(err))
}

func TestPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	r := New(WithStore(store))
	require.NoError(t, r.Register(ctx, testTransform("B.sum", "B.z", "A.x", "A.y")))
	require.NoError(t, r.BindInputRef(ctx, "B.sum", "ref-1", "A.x"))
	require.NoError(t, r.BindOutputRef(ctx, "B.sum", "ref-2"))

	fresh := New(WithStore(store))
	require.NoError(t, fresh.Load(ctx))

	assert.Equal(t, []string{"B.sum"}, fresh.TransformsForField("A.x"))
	fields, err := fresh.FieldsForTransform("B.sum")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.x", "A.y"}, fields)
	assert.Equal(t, []string{"B.sum"}, fresh.TransformsForRef("ref-1"))
	out, ok := fresh.OutputRef("B.sum")
	require.True(t, ok)
	assert.Equal(t, "ref-2", out)

	tr, err := fresh.Get("B.sum")
	require.NoError(t, err)
	assert.Equal(t, "return 1", tr.RawLogic)
}

func TestLoadDropsDanglingEntries(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	r := New(WithStore(store))
	require.NoError(t, r.Register(ctx, testTransform("B.sum", "B.z", "A.x")))

	// Corrupt the field map with an entry for a transform that is not in
	// the canonical list.
	data, err := json.Marshal(map[string][]string{
		"A.x": {"B.sum", "ghost.t"},
		"A.q": {"ghost.t"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "registry/field_to_transforms", data))

	fresh := New(WithStore(store))
	require.NoError(t, fresh.Load(ctx))

	assert.Equal(t, []string{"B.sum"}, fresh.TransformsForField("A.x"))
	assert.Empty(t, fresh.TransformsForField("A.q"))
}

func TestLoadEmptyStore(t *testing.T) {
	ctx := context.Background()
	r := New(WithStore(kv.NewMemory()))
	require.NoError(t, r.Load(ctx))
	assert.Empty(t, r.Transforms())
}
