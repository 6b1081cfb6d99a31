package atom

import (
	"context"
	"strconv"

	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
)

// Filter selects elements of a composite field. The key is the range
// key for range variants and the decimal position for collections.
type Filter func(key string, v expr.Value) bool

// View is read access to one field, uniform across variants. Callers
// that need filtering probe SupportsFiltering first; Get always works.
type View interface {
	// Get returns the current assembled value of the field.
	Get(ctx context.Context) (any, error)

	// GetFiltered returns the elements matching the filter. Views that
	// do not support filtering return an InvalidField error.
	GetFiltered(ctx context.Context, f Filter) (any, error)

	// SupportsFiltering reports whether GetFiltered is available.
	SupportsFiltering() bool
}

// ViewOf builds the variant-appropriate view for a field.
func (s *Store) ViewOf(ctx context.Context, fieldPath string) (View, error) {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return nil, err
	}
	switch ref.Kind {
	case KindSingle:
		return singleView{store: s, ref: ref}, nil
	case KindRange:
		return rangeView{store: s, ref: ref}, nil
	case KindCollection:
		return collectionView{store: s, ref: ref}, nil
	}
	return nil, fault.Newf(fault.InvalidData, "ref %q has unknown kind %q", ref.UUID, ref.Kind)
}

type singleView struct {
	store *Store
	ref   Ref
}

func (v singleView) Get(ctx context.Context) (any, error) {
	return v.store.latestFor(ctx, v.ref)
}

func (v singleView) GetFiltered(ctx context.Context, _ Filter) (any, error) {
	return nil, fault.Newf(fault.InvalidField, "field %q is single-valued and cannot be filtered", v.ref.FieldPath)
}

func (v singleView) SupportsFiltering() bool { return false }

type rangeView struct {
	store *Store
	ref   Ref
}

func (v rangeView) Get(ctx context.Context) (any, error) {
	return v.store.latestFor(ctx, v.ref)
}

func (v rangeView) GetFiltered(ctx context.Context, f Filter) (any, error) {
	entries, err := v.store.currentSlots(ctx, v.ref)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, e := range entries {
		val, err := e.atom.Value()
		if err != nil {
			return nil, err
		}
		if f(e.slot, val) {
			out[e.slot] = expr.ToGo(val)
		}
	}
	return out, nil
}

func (v rangeView) SupportsFiltering() bool { return true }

type collectionView struct {
	store *Store
	ref   Ref
}

func (v collectionView) Get(ctx context.Context) (any, error) {
	return v.store.latestFor(ctx, v.ref)
}

func (v collectionView) GetFiltered(ctx context.Context, f Filter) (any, error) {
	entries, err := v.store.currentSlots(ctx, v.ref)
	if err != nil {
		return nil, err
	}
	out := []any{}
	for _, e := range entries {
		val, err := e.atom.Value()
		if err != nil {
			return nil, err
		}
		if f(strconv.FormatInt(e.position, 10), val) {
			out = append(out, expr.ToGo(val))
		}
	}
	return out, nil
}

func (v collectionView) SupportsFiltering() bool { return true }
