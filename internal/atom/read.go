package atom

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
)

// RefByField resolves an active reference by its field path.
// Deleted refs report NotFound: a removed field reads as never written.
func (s *Store) RefByField(ctx context.Context, fieldPath string) (Ref, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, kind, field_path, status, pub_key, updated_at
		FROM refs WHERE field_path = ?
	`, fieldPath)
	ref, err := scanRef(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, errRefNotFound(fieldPath)
	}
	if err != nil {
		return Ref{}, fault.Wrap(fault.InvalidData, "lookup ref "+fieldPath, err)
	}
	if ref.Status == StatusDeleted {
		return Ref{}, errRefNotFound(fieldPath)
	}
	return ref, nil
}

// RefByUUID resolves a reference by id, regardless of status.
func (s *Store) RefByUUID(ctx context.Context, refUUID string) (Ref, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, kind, field_path, status, pub_key, updated_at
		FROM refs WHERE uuid = ?
	`, refUUID)
	ref, err := scanRef(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, errRefNotFound(refUUID)
	}
	if err != nil {
		return Ref{}, fault.Wrap(fault.InvalidData, "lookup ref "+refUUID, err)
	}
	return ref, nil
}

// AtomByUUID loads a single atom version by id.
func (s *Store) AtomByUUID(ctx context.Context, atomUUID string) (Atom, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, schema_name, pub_key, content, prev_uuid, created_at
		FROM atoms WHERE uuid = ?
	`, atomUUID)
	a, err := scanAtom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Atom{}, fault.Newf(fault.NotFound, "atom %q not found", atomUUID)
	}
	if err != nil {
		return Atom{}, fault.Wrap(fault.InvalidData, "lookup atom "+atomUUID, err)
	}
	return a, nil
}

// LatestValue returns the current scalar value of a single-variant
// field. Range and collection fields must be read through Latest or a
// keyed accessor; asking for them here is an InvalidField error.
func (s *Store) LatestValue(ctx context.Context, fieldPath string) (expr.Value, error) {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return nil, err
	}
	if ref.Kind != KindSingle {
		return nil, fault.Newf(fault.InvalidField, "field %q is %s, not single", fieldPath, ref.Kind)
	}
	a, err := s.LatestSlot(ctx, ref, "", 0)
	if err != nil {
		return nil, err
	}
	return a.Value()
}

// LatestKey returns the current value of one key of a range field.
func (s *Store) LatestKey(ctx context.Context, fieldPath, key string) (expr.Value, error) {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return nil, err
	}
	if ref.Kind != KindRange {
		return nil, fault.Newf(fault.InvalidField, "field %q is %s, not range", fieldPath, ref.Kind)
	}
	a, err := s.LatestSlot(ctx, ref, key, 0)
	if err != nil {
		return nil, err
	}
	return a.Value()
}

// Latest returns the current value of a field assembled per variant:
// single yields the scalar, range a map of key to value, collection a
// list in position order. NotFound when the field was never written or
// its reference is deleted.
func (s *Store) Latest(ctx context.Context, fieldPath string) (any, error) {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return nil, err
	}
	return s.latestFor(ctx, ref)
}

// LatestByRef is Latest addressed by reference id instead of field path.
// A deleted reference reads as NotFound, same as an unwritten field.
func (s *Store) LatestByRef(ctx context.Context, refUUID string) (any, error) {
	ref, err := s.RefByUUID(ctx, refUUID)
	if err != nil {
		return nil, err
	}
	if ref.Status == StatusDeleted {
		return nil, errRefNotFound(refUUID)
	}
	return s.latestFor(ctx, ref)
}

func (s *Store) latestFor(ctx context.Context, ref Ref) (any, error) {
	switch ref.Kind {
	case KindSingle:
		a, err := s.LatestSlot(ctx, ref, "", 0)
		if err != nil {
			return nil, err
		}
		v, err := a.Value()
		if err != nil {
			return nil, err
		}
		return expr.ToGo(v), nil

	case KindRange:
		entries, err := s.currentSlots(ctx, ref)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, errRefNotFound(ref.FieldPath)
		}
		m := make(map[string]any, len(entries))
		for _, e := range entries {
			v, err := e.atom.Value()
			if err != nil {
				return nil, err
			}
			m[e.slot] = expr.ToGo(v)
		}
		return m, nil

	case KindCollection:
		entries, err := s.currentSlots(ctx, ref)
		if err != nil {
			return nil, err
		}
		vs := make([]any, 0, len(entries))
		for _, e := range entries {
			v, err := e.atom.Value()
			if err != nil {
				return nil, err
			}
			vs = append(vs, expr.ToGo(v))
		}
		return vs, nil
	}
	return nil, fault.Newf(fault.InvalidData, "ref %q has unknown kind %q", ref.UUID, ref.Kind)
}

// LatestSlot returns the current atom for one slot of a reference.
func (s *Store) LatestSlot(ctx context.Context, ref Ref, slot string, position int64) (Atom, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.uuid, a.schema_name, a.pub_key, a.content, a.prev_uuid, a.created_at
		FROM ref_slots rs JOIN atoms a ON a.uuid = rs.atom_uuid
		WHERE rs.ref_uuid = ? AND rs.slot = ? AND rs.position = ?
	`, ref.UUID, slot, position)
	a, err := scanAtom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Atom{}, errRefNotFound(ref.FieldPath)
	}
	if err != nil {
		return Atom{}, fault.Wrap(fault.InvalidData, "latest slot for "+ref.FieldPath, err)
	}
	return a, nil
}

type slotEntry struct {
	slot     string
	position int64
	atom     Atom
}

func (s *Store) currentSlots(ctx context.Context, ref Ref) ([]slotEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rs.slot, rs.position,
		       a.uuid, a.schema_name, a.pub_key, a.content, a.prev_uuid, a.created_at
		FROM ref_slots rs JOIN atoms a ON a.uuid = rs.atom_uuid
		WHERE rs.ref_uuid = ?
		ORDER BY rs.slot, rs.position
	`, ref.UUID)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidData, "slots for "+ref.FieldPath, err)
	}
	defer rows.Close()

	var entries []slotEntry
	for rows.Next() {
		var e slotEntry
		var prev sql.NullString
		var createdAt int64
		err := rows.Scan(&e.slot, &e.position,
			&e.atom.UUID, &e.atom.SchemaName, &e.atom.PubKey, &e.atom.Content, &prev, &createdAt)
		if err != nil {
			return nil, fault.Wrap(fault.InvalidData, "scan slot", err)
		}
		e.atom.PrevUUID = prev.String
		e.atom.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.InvalidData, "slots for "+ref.FieldPath, err)
	}
	return entries, nil
}

// RefsForSchema lists every reference whose field path belongs to the
// schema, deleted ones included.
func (s *Store) RefsForSchema(ctx context.Context, schema string) ([]Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, kind, field_path, status, pub_key, updated_at
		FROM refs
		WHERE field_path = ? OR field_path LIKE ? || '.%'
		ORDER BY field_path
	`, schema, schema)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidData, "refs for schema "+schema, err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, fault.Wrap(fault.InvalidData, "scan ref", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.InvalidData, "refs for schema "+schema, err)
	}
	return refs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRef(row scannable) (Ref, error) {
	var ref Ref
	var kind, status string
	var updatedAt int64
	err := row.Scan(&ref.UUID, &kind, &ref.FieldPath, &status, &ref.PubKey, &updatedAt)
	if err != nil {
		return Ref{}, err
	}
	ref.Kind = RefKind(kind)
	ref.Status = RefStatus(status)
	ref.UpdatedAt = time.Unix(0, updatedAt)
	return ref, nil
}

func scanAtom(row scannable) (Atom, error) {
	var a Atom
	var prev sql.NullString
	var createdAt int64
	err := row.Scan(&a.UUID, &a.SchemaName, &a.PubKey, &a.Content, &prev, &createdAt)
	if err != nil {
		return Atom{}, err
	}
	a.PrevUUID = prev.String
	a.CreatedAt = time.Unix(0, createdAt)
	return a, nil
}
