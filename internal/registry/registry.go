// Package registry maintains the dependency graph between fields, atom
// references, and transforms: the arena of transforms indexed by id, with
// five secondary maps kept mutually consistent under one lock.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/kv"
	"github.com/weftdb/weft/internal/transform"
)

// Registry answers "which transforms run when field X changes" and holds
// the input/output atom-reference bindings per transform.
//
// The arena (transforms by id) is the source of truth; the five maps are
// secondary indices rebuilt from it on every structural change. Readers
// take the shared lock; register/unregister take it exclusively for the
// map update only, never across an execution.
type Registry struct {
	mu sync.RWMutex

	transforms map[string]*transform.Transform

	fieldToTransforms map[string]map[string]struct{} // input field → transform ids
	transformToFields map[string][]string            // transform id → ordered input fields
	inputsByRef       map[string]map[string]string   // transform id → ref uuid → input name
	refToTransforms   map[string]map[string]struct{} // ref uuid → transform ids
	outputRef         map[string]string              // transform id → output ref uuid

	store  kv.Store
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore wires slot persistence. Without it the registry is in-memory
// only and Load is a no-op.
func WithStore(s kv.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		transforms:        map[string]*transform.Transform{},
		fieldToTransforms: map[string]map[string]struct{}{},
		transformToFields: map[string][]string{},
		inputsByRef:       map[string]map[string]string{},
		refToTransforms:   map[string]map[string]struct{}{},
		outputRef:         map[string]string{},
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a transform to the graph. Idempotent: re-registering an
// id replaces its entries without stale forward or reverse residue.
// Registration that would close a trigger cycle is rejected with an
// InvalidTransform fault before any map is touched.
func (r *Registry) Register(ctx context.Context, t *transform.Transform) error {
	if t.ID == "" {
		return fault.New(fault.InvalidTransform, "transform id must not be empty")
	}
	if t.Output == "" {
		return fault.Newf(fault.InvalidTransform, "transform %q has no output field", t.ID)
	}

	r.mu.Lock()

	if cycle := r.wouldCycle(t); len(cycle) > 0 {
		r.mu.Unlock()
		return fault.Newf(fault.InvalidTransform,
			"transform %q closes a trigger cycle: %s", t.ID, cyclePath(cycle))
	}

	r.removeLocked(t.ID)
	r.transforms[t.ID] = t
	r.transformToFields[t.ID] = append([]string(nil), t.Inputs...)
	for _, field := range t.Inputs {
		set, ok := r.fieldToTransforms[field]
		if !ok {
			set = map[string]struct{}{}
			r.fieldToTransforms[field] = set
		}
		set[t.ID] = struct{}{}
	}

	err := r.persistLocked(ctx)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.logger.Debug("transform registered", "transform", t.ID, "output", t.Output, "inputs", len(t.Inputs))
	return nil
}

// Unregister removes a transform from every map. Removing an unknown id
// is a NotFound fault.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()

	if _, ok := r.transforms[id]; !ok {
		r.mu.Unlock()
		return fault.Newf(fault.NotFound, "transform %q not registered", id)
	}
	r.removeLocked(id)

	err := r.persistLocked(ctx)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.logger.Debug("transform unregistered", "transform", id)
	return nil
}

// RemoveSchema unregisters every transform belonging to the schema in one
// exclusive section, so no reader ever observes a partial removal.
func (r *Registry) RemoveSchema(ctx context.Context, schema string) error {
	r.mu.Lock()

	var removed []string
	for id, t := range r.transforms {
		if t.Schema() == schema {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		r.removeLocked(id)
	}

	var err error
	if len(removed) > 0 {
		err = r.persistLocked(ctx)
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if len(removed) > 0 {
		r.logger.Info("schema transforms removed", "schema", schema, "count", len(removed))
	}
	return nil
}

// Get returns a registered transform by id.
func (r *Registry) Get(id string) (*transform.Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[id]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "transform %q not registered", id)
	}
	return t, nil
}

// Transforms returns all registered transforms, ordered by id.
func (r *Registry) Transforms() []*transform.Transform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*transform.Transform, 0, len(r.transforms))
	for _, t := range r.transforms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TransformsForField returns the ids of transforms triggered by a change
// to the field, ordered for deterministic dispatch.
func (r *Registry) TransformsForField(field string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.fieldToTransforms[field])
}

// FieldsForTransform returns the ordered input fields of a transform.
func (r *Registry) FieldsForTransform(id string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.transformToFields[id]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "transform %q not registered", id)
	}
	return append([]string(nil), fields...), nil
}

// BindInputRef records that an input of the transform resolves through
// the given atom reference.
func (r *Registry) BindInputRef(ctx context.Context, transformID, refUUID, inputName string) error {
	r.mu.Lock()

	if _, ok := r.transforms[transformID]; !ok {
		r.mu.Unlock()
		return fault.Newf(fault.NotFound, "transform %q not registered", transformID)
	}
	byRef, ok := r.inputsByRef[transformID]
	if !ok {
		byRef = map[string]string{}
		r.inputsByRef[transformID] = byRef
	}
	byRef[refUUID] = inputName

	set, ok := r.refToTransforms[refUUID]
	if !ok {
		set = map[string]struct{}{}
		r.refToTransforms[refUUID] = set
	}
	set[transformID] = struct{}{}

	err := r.persistLocked(ctx)
	r.mu.Unlock()
	return err
}

// BindOutputRef records the transform's output atom reference.
func (r *Registry) BindOutputRef(ctx context.Context, transformID, refUUID string) error {
	r.mu.Lock()

	if _, ok := r.transforms[transformID]; !ok {
		r.mu.Unlock()
		return fault.Newf(fault.NotFound, "transform %q not registered", transformID)
	}
	r.outputRef[transformID] = refUUID

	err := r.persistLocked(ctx)
	r.mu.Unlock()
	return err
}

// OutputRef returns the bound output reference uuid, if any.
func (r *Registry) OutputRef(transformID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refUUID, ok := r.outputRef[transformID]
	return refUUID, ok
}

// TransformsForRef returns the ids of transforms depending on the atom
// reference.
func (r *Registry) TransformsForRef(refUUID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.refToTransforms[refUUID])
}

// InputName returns the input name bound to a (transform, ref) pair.
func (r *Registry) InputName(transformID, refUUID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.inputsByRef[transformID][refUUID]
	return name, ok
}

// removeLocked strips id from the arena and all five maps. Caller holds
// the write lock.
func (r *Registry) removeLocked(id string) {
	delete(r.transforms, id)

	for _, field := range r.transformToFields[id] {
		if set, ok := r.fieldToTransforms[field]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.fieldToTransforms, field)
			}
		}
	}
	delete(r.transformToFields, id)

	for refUUID := range r.inputsByRef[id] {
		if set, ok := r.refToTransforms[refUUID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.refToTransforms, refUUID)
			}
		}
	}
	delete(r.inputsByRef, id)
	delete(r.outputRef, id)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
