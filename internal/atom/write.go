package atom

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
)

// EnsureRef returns the reference for fieldPath, creating it with the
// given kind when absent. Creating publishes AtomRefCreated.
func (s *Store) EnsureRef(ctx context.Context, kind RefKind, fieldPath, pubKey string) (Ref, error) {
	if ref, err := s.RefByField(ctx, fieldPath); err == nil {
		return ref, nil
	} else if !fault.IsNotFound(err) {
		return Ref{}, err
	}

	now := time.Now()
	ref := Ref{
		UUID:      newUUID(),
		Kind:      kind,
		FieldPath: fieldPath,
		Status:    StatusActive,
		PubKey:    pubKey,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refs (uuid, kind, field_path, status, pub_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ref.UUID, string(ref.Kind), ref.FieldPath, string(ref.Status), ref.PubKey, now.UnixNano())
	if err != nil {
		return Ref{}, fault.Wrap(fault.InvalidData, "create ref "+fieldPath, err)
	}

	s.publish(bus.Event{Topic: bus.TopicAtomRefCreated, Payload: bus.AtomRefCreated{
		RefUUID:   ref.UUID,
		RefKind:   string(ref.Kind),
		FieldPath: ref.FieldPath,
	}})
	return ref, nil
}

// SetField writes a new version of a single-variant field. The previous
// atom (if any) becomes the new atom's prev link; the ref is repointed.
func (s *Store) SetField(ctx context.Context, fieldPath string, v expr.Value, pubKey string) (Atom, error) {
	ref, err := s.EnsureRef(ctx, KindSingle, fieldPath, pubKey)
	if err != nil {
		return Atom{}, err
	}
	return s.writeSlot(ctx, ref, "", 0, v, pubKey, "set")
}

// UpsertKey writes a new version of one key of a range-variant field.
// Sibling keys are untouched: only the changed key's slot gains a new
// atom and is repointed.
func (s *Store) UpsertKey(ctx context.Context, fieldPath, key string, v expr.Value, pubKey string) (Atom, error) {
	ref, err := s.EnsureRef(ctx, KindRange, fieldPath, pubKey)
	if err != nil {
		return Atom{}, err
	}
	if ref.Kind != KindRange {
		return Atom{}, fault.Newf(fault.InvalidField, "field %q is %s, not range", fieldPath, ref.Kind)
	}
	return s.writeSlot(ctx, ref, key, 0, v, pubKey, "upsert")
}

// Append adds a value to the end of a collection-variant field.
func (s *Store) Append(ctx context.Context, fieldPath string, v expr.Value, pubKey string) (Atom, error) {
	ref, err := s.EnsureRef(ctx, KindCollection, fieldPath, pubKey)
	if err != nil {
		return Atom{}, err
	}
	if ref.Kind != KindCollection {
		return Atom{}, fault.Newf(fault.InvalidField, "field %q is %s, not collection", fieldPath, ref.Kind)
	}

	var next sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(position) + 1 FROM ref_slots WHERE ref_uuid = ?
	`, ref.UUID).Scan(&next)
	if err != nil {
		return Atom{}, fault.Wrap(fault.InvalidData, "next position for "+fieldPath, err)
	}

	pos := int64(0)
	if next.Valid {
		pos = next.Int64
	}
	return s.writeSlot(ctx, ref, "", pos, v, pubKey, "append")
}

// UpsertIndex writes a new version of one index of a collection field.
func (s *Store) UpsertIndex(ctx context.Context, fieldPath string, index int64, v expr.Value, pubKey string) (Atom, error) {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return Atom{}, err
	}
	if ref.Kind != KindCollection {
		return Atom{}, fault.Newf(fault.InvalidField, "field %q is %s, not collection", fieldPath, ref.Kind)
	}
	return s.writeSlot(ctx, ref, "", index, v, pubKey, "upsert")
}

// RemoveAt removes the slot at the given collection index. History for
// the removed slot's atoms is preserved; only the pointer row goes away.
func (s *Store) RemoveAt(ctx context.Context, fieldPath string, index int64) error {
	ref, err := s.RefByField(ctx, fieldPath)
	if err != nil {
		return err
	}
	if ref.Kind != KindCollection {
		return fault.Newf(fault.InvalidField, "field %q is %s, not collection", fieldPath, ref.Kind)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ref_slots WHERE ref_uuid = ? AND slot = '' AND position = ?
	`, ref.UUID, index)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "remove slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Wrap(fault.InvalidData, "remove slot", err)
	}
	if n == 0 {
		return fault.Newf(fault.NotFound, "field %q has no element at index %d", fieldPath, index)
	}

	s.publish(bus.Event{Topic: bus.TopicAtomRefUpdated, Payload: bus.AtomRefUpdated{
		RefUUID:   ref.UUID,
		FieldPath: ref.FieldPath,
		Operation: "remove",
	}})
	return nil
}

// UpdateRef repoints a single-variant reference at an existing atom.
// The atom must exist: a ref may never point at nothing.
func (s *Store) UpdateRef(ctx context.Context, refUUID, newAtomUUID, pubKey string) error {
	ref, err := s.RefByUUID(ctx, refUUID)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM atoms WHERE uuid = ?`, newAtomUUID).Scan(&exists)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "lookup atom", err)
	}
	if exists == 0 {
		return fault.Newf(fault.NotFound, "atom %q not found", newAtomUUID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "update ref: begin tx", err)
	}
	defer tx.Rollback()

	if err := upsertSlotTx(ctx, tx, ref.UUID, "", 0, newAtomUUID); err != nil {
		return err
	}
	if err := touchRefTx(ctx, tx, ref.UUID, pubKey); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fault.Wrap(fault.InvalidData, "update ref: commit", err)
	}

	s.publish(bus.Event{Topic: bus.TopicAtomRefUpdated, Payload: bus.AtomRefUpdated{
		RefUUID:   ref.UUID,
		FieldPath: ref.FieldPath,
		Operation: "repoint",
	}})
	return nil
}

// MarkDeleted transitions a reference to deleted status. The ref row and
// its atom history remain; reads through the ref start failing NotFound.
func (s *Store) MarkDeleted(ctx context.Context, refUUID, pubKey string) error {
	ref, err := s.RefByUUID(ctx, refUUID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE refs SET status = 'deleted', pub_key = ?, updated_at = ? WHERE uuid = ?
	`, pubKey, time.Now().UnixNano(), refUUID)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "mark ref deleted", err)
	}

	s.publish(bus.Event{Topic: bus.TopicAtomRefUpdated, Payload: bus.AtomRefUpdated{
		RefUUID:   ref.UUID,
		FieldPath: ref.FieldPath,
		Operation: "delete",
	}})
	return nil
}

// writeSlot appends a new atom for one slot of a reference and repoints
// that slot. This is the single write path shared by all variants.
func (s *Store) writeSlot(ctx context.Context, ref Ref, slot string, position int64, v expr.Value, pubKey, operation string) (Atom, error) {
	if ref.Status == StatusDeleted {
		return Atom{}, errRefNotFound(ref.FieldPath)
	}

	content, err := expr.MarshalValue(v)
	if err != nil {
		return Atom{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Atom{}, fault.Wrap(fault.InvalidData, "write: begin tx", err)
	}
	defer tx.Rollback()

	// Current atom for this slot becomes the prev link, if present.
	var prev string
	err = tx.QueryRowContext(ctx, `
		SELECT atom_uuid FROM ref_slots WHERE ref_uuid = ? AND slot = ? AND position = ?
	`, ref.UUID, slot, position).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Atom{}, fault.Wrap(fault.InvalidData, "lookup current atom", err)
	}

	now := time.Now()
	atom := Atom{
		UUID:       newUUID(),
		SchemaName: schemaOf(ref.FieldPath),
		PubKey:     pubKey,
		Content:    string(content),
		PrevUUID:   prev,
		CreatedAt:  now,
	}

	var prevArg any
	if prev != "" {
		prevArg = prev
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO atoms (uuid, schema_name, pub_key, content, prev_uuid, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, atom.UUID, atom.SchemaName, atom.PubKey, atom.Content, prevArg, now.UnixNano())
	if err != nil {
		return Atom{}, fault.Wrap(fault.InvalidData, "insert atom", err)
	}

	if err := upsertSlotTx(ctx, tx, ref.UUID, slot, position, atom.UUID); err != nil {
		return Atom{}, err
	}
	if err := touchRefTx(ctx, tx, ref.UUID, pubKey); err != nil {
		return Atom{}, err
	}
	if err := tx.Commit(); err != nil {
		return Atom{}, fault.Wrap(fault.InvalidData, "write: commit", err)
	}

	s.publish(bus.Event{Topic: bus.TopicAtomCreated, Payload: bus.AtomCreated{
		AtomID: atom.UUID,
		Data:   atom.Content,
	}})
	s.publish(bus.Event{Topic: bus.TopicAtomUpdated, Payload: bus.AtomUpdated{
		AtomID: atom.UUID,
		Data:   atom.Content,
	}})
	s.publish(bus.Event{Topic: bus.TopicAtomRefUpdated, Payload: bus.AtomRefUpdated{
		RefUUID:   ref.UUID,
		FieldPath: ref.FieldPath,
		Operation: operation,
	}})
	return atom, nil
}

func upsertSlotTx(ctx context.Context, tx *sql.Tx, refUUID, slot string, position int64, atomUUID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ref_slots (ref_uuid, slot, position, atom_uuid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ref_uuid, slot, position) DO UPDATE SET atom_uuid = excluded.atom_uuid
	`, refUUID, slot, position, atomUUID)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "upsert slot", err)
	}
	return nil
}

func touchRefTx(ctx context.Context, tx *sql.Tx, refUUID, pubKey string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE refs SET updated_at = ?, pub_key = ? WHERE uuid = ?
	`, time.Now().UnixNano(), pubKey, refUUID)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "touch ref", err)
	}
	return nil
}

func schemaOf(fieldPath string) string {
	for i := 0; i < len(fieldPath); i++ {
		if fieldPath[i] == '.' {
			return fieldPath[:i]
		}
	}
	return fieldPath
}
