package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/fault"
)

func TestFromDeclaration(t *testing.T) {
	tr, err := FromDeclaration("Billing", Declaration{
		Name:   "total",
		Logic:  "return Billing.subtotal + Billing.tax",
		Inputs: []string{"Billing.subtotal", "Billing.tax"},
		Output: "Billing.total",
	})
	require.NoError(t, err)
	assert.Equal(t, "Billing.total", tr.Output)
	assert.Equal(t, "Billing", tr.Schema())
	assert.Equal(t, "Billing.total", tr.ID)
}

func TestFromDeclaration_InvalidLogic(t *testing.T) {
	_, err := FromDeclaration("Billing", Declaration{
		Name:   "broken",
		Logic:  "1 +",
		Output: "Billing.x",
	})
	require.Error(t, err)
	assert.Equal(t, fault.InvalidDSL, fault.CodeOf(err))
}

func TestParsed_Caches(t *testing.T) {
	tr := New("A.t", "return a + b", "A.out", []string{"A.a", "A.b"})

	first, err := tr.Parsed()
	require.NoError(t, err)

	second, err := tr.Parsed()
	require.NoError(t, err)

	// Same backing slice: parse happened once.
	assert.Equal(t, &first[0], &second[0])
}

func TestCanonical(t *testing.T) {
	tr := New("A.t", "return a+b", "A.out", nil)
	canonical, err := tr.Canonical()
	require.NoError(t, err)
	assert.Equal(t, "return (a + b)", canonical)
}

func TestSnapshotRoundTrip(t *testing.T) {
	tr := New("A.t", "return a + b", "A.out", []string{"A.a", "A.b"})
	tr.Reversible = true

	got := FromSnapshot(tr.Snapshot())
	assert.Equal(t, tr.ID, got.ID)
	assert.Equal(t, tr.RawLogic, got.RawLogic)
	assert.Equal(t, tr.Inputs, got.Inputs)
	assert.True(t, got.Reversible)

	// Rebuilt transform re-parses cleanly.
	_, err := got.Parsed()
	require.NoError(t, err)
}
