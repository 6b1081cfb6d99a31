package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/transform"
)

// Slot names are stable contracts; renaming one orphans persisted state.
const (
	slotTransforms        = "registry/transforms"
	slotFieldToTransforms = "registry/field_to_transforms"
	slotTransformToFields = "registry/transform_to_fields"
	slotInputsByRef       = "registry/inputs_by_ref"
	slotRefToTransforms   = "registry/ref_to_transforms"
	slotOutputRef         = "registry/output_ref"
)

// persistLocked writes the arena and the five maps to their slots.
// Caller holds the write lock. Without a store this is a no-op.
func (r *Registry) persistLocked(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	snapshots := make([]transform.Snapshot, 0, len(r.transforms))
	for _, t := range r.transforms {
		snapshots = append(snapshots, t.Snapshot())
	}

	slots := map[string]any{
		slotTransforms:        snapshots,
		slotFieldToTransforms: setMapToLists(r.fieldToTransforms),
		slotTransformToFields: r.transformToFields,
		slotInputsByRef:       r.inputsByRef,
		slotRefToTransforms:   setMapToLists(r.refToTransforms),
		slotOutputRef:         r.outputRef,
	}
	for slot, v := range slots {
		data, err := json.Marshal(v)
		if err != nil {
			return fault.Wrap(fault.InvalidData, "encode "+slot, err)
		}
		if err := r.store.Put(ctx, slot, data); err != nil {
			return fmt.Errorf("persist %s: %w", slot, err)
		}
	}
	return nil
}

// Load reconstructs the registry from its persisted slots. The canonical
// transform list is authoritative: any map entry referencing a transform
// absent from it is dropped and logged, never left dangling. Missing
// slots load as empty.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	var snapshots []transform.Snapshot
	if err := r.loadSlot(ctx, slotTransforms, &snapshots); err != nil {
		return err
	}

	var (
		fieldLists  map[string][]string
		fieldsByID  map[string][]string
		inputsByRef map[string]map[string]string
		refLists    map[string][]string
		outputRef   map[string]string
	)
	if err := r.loadSlot(ctx, slotFieldToTransforms, &fieldLists); err != nil {
		return err
	}
	if err := r.loadSlot(ctx, slotTransformToFields, &fieldsByID); err != nil {
		return err
	}
	if err := r.loadSlot(ctx, slotInputsByRef, &inputsByRef); err != nil {
		return err
	}
	if err := r.loadSlot(ctx, slotRefToTransforms, &refLists); err != nil {
		return err
	}
	if err := r.loadSlot(ctx, slotOutputRef, &outputRef); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.transforms = make(map[string]*transform.Transform, len(snapshots))
	for _, s := range snapshots {
		r.transforms[s.ID] = transform.FromSnapshot(s)
	}
	known := func(id string) bool {
		_, ok := r.transforms[id]
		return ok
	}

	r.fieldToTransforms = map[string]map[string]struct{}{}
	for field, ids := range fieldLists {
		for _, id := range ids {
			if !known(id) {
				r.logger.Warn("dropping dangling map entry",
					"slot", slotFieldToTransforms, "field", field, "transform", id)
				continue
			}
			set, ok := r.fieldToTransforms[field]
			if !ok {
				set = map[string]struct{}{}
				r.fieldToTransforms[field] = set
			}
			set[id] = struct{}{}
		}
	}

	r.transformToFields = map[string][]string{}
	for id, fields := range fieldsByID {
		if !known(id) {
			r.logger.Warn("dropping dangling map entry",
				"slot", slotTransformToFields, "transform", id)
			continue
		}
		r.transformToFields[id] = fields
	}
	// The arena wins over the maps: a transform missing its input list is
	// reindexed from its snapshot.
	for id, t := range r.transforms {
		if _, ok := r.transformToFields[id]; !ok {
			r.transformToFields[id] = append([]string(nil), t.Inputs...)
			for _, field := range t.Inputs {
				set, ok := r.fieldToTransforms[field]
				if !ok {
					set = map[string]struct{}{}
					r.fieldToTransforms[field] = set
				}
				set[id] = struct{}{}
			}
		}
	}

	r.inputsByRef = map[string]map[string]string{}
	for id, byRef := range inputsByRef {
		if !known(id) {
			r.logger.Warn("dropping dangling map entry",
				"slot", slotInputsByRef, "transform", id)
			continue
		}
		r.inputsByRef[id] = byRef
	}

	r.refToTransforms = map[string]map[string]struct{}{}
	for refUUID, ids := range refLists {
		for _, id := range ids {
			if !known(id) {
				r.logger.Warn("dropping dangling map entry",
					"slot", slotRefToTransforms, "ref", refUUID, "transform", id)
				continue
			}
			set, ok := r.refToTransforms[refUUID]
			if !ok {
				set = map[string]struct{}{}
				r.refToTransforms[refUUID] = set
			}
			set[id] = struct{}{}
		}
	}

	r.outputRef = map[string]string{}
	for id, refUUID := range outputRef {
		if !known(id) {
			r.logger.Warn("dropping dangling map entry",
				"slot", slotOutputRef, "transform", id)
			continue
		}
		r.outputRef[id] = refUUID
	}

	r.logger.Info("registry loaded", "transforms", len(r.transforms))
	return nil
}

func (r *Registry) loadSlot(ctx context.Context, slot string, dst any) error {
	data, err := r.store.Get(ctx, slot)
	if fault.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", slot, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fault.Wrap(fault.InvalidData, "decode "+slot, err)
	}
	return nil
}

func setMapToLists(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		out[k] = sortedKeys(set)
	}
	return out
}
