package schema

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/weftdb/weft/internal/atom"
	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/kv"
	"github.com/weftdb/weft/internal/registry"
	"github.com/weftdb/weft/internal/transform"
)

const slotSchemas = "schema/declarations"

// loadedSchema is a schema plus its soft-disable flag. Unloading keeps
// the declaration and its transform registrations; only writes stop.
type loadedSchema struct {
	Schema Schema `json:"schema"`
	Loaded bool   `json:"loaded"`
}

// Manager owns the schema lifecycle: validate, register transforms,
// accept writes, and publish change events.
type Manager struct {
	store *atom.Store
	reg   *registry.Registry
	bus   *bus.Bus

	mu      sync.RWMutex
	schemas map[string]*loadedSchema

	slots  kv.Store
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSlots persists declarations so they survive restart.
func WithSlots(s kv.Store) Option {
	return func(m *Manager) { m.slots = s }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a schema manager.
func NewManager(store *atom.Store, reg *registry.Registry, b *bus.Bus, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		reg:     reg,
		bus:     b,
		schemas: map[string]*loadedSchema{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load validates and activates a schema. Every transform declaration
// must parse before anything is registered or persisted; a schema with
// one invalid transform is rejected whole, naming the offending
// transform. Reloading an unloaded schema re-enables writes.
func (m *Manager) Load(ctx context.Context, s Schema) error {
	// Validate first. Parse failures must surface as values here, not
	// later during execution.
	transforms := make([]*transform.Transform, 0, len(s.Transforms))
	for _, d := range s.Transforms {
		t, err := transform.FromDeclaration(s.Name, d)
		if err != nil {
			return fault.Wrap(fault.InvalidDSL,
				"schema "+s.Name+": transform "+d.Name+" is invalid", err)
		}
		transforms = append(transforms, t)
	}

	for _, t := range transforms {
		if err := m.reg.Register(ctx, t); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.schemas[s.Name] = &loadedSchema{Schema: s, Loaded: true}
	err := m.persistLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.bus.Publish(bus.Event{Topic: bus.TopicSchemaChanged, Payload: bus.SchemaChanged{Schema: s.Name}})
	m.logger.Info("schema loaded", "schema", s.Name,
		"fields", len(s.Fields), "transforms", len(s.Transforms))
	return nil
}

// LoadFile compiles a CUE file and loads every schema it declares.
func (m *Manager) LoadFile(ctx context.Context, path string) error {
	schemas, err := CompileFile(path)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if err := m.Load(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Unload soft-disables a schema: writes are rejected but its transform
// registrations are preserved for reload.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	ls, ok := m.schemas[name]
	if !ok {
		m.mu.Unlock()
		return fault.Newf(fault.NotFound, "schema %q not loaded", name)
	}
	ls.Loaded = false
	err := m.persistLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.bus.Publish(bus.Event{Topic: bus.TopicSchemaChanged, Payload: bus.SchemaChanged{Schema: name}})
	m.logger.Info("schema unloaded", "schema", name)
	return nil
}

// Remove fully deletes a schema: its transforms leave every dependency
// map and its atom references are marked deleted. History atoms remain.
func (m *Manager) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, ok := m.schemas[name]; !ok {
		m.mu.Unlock()
		return fault.Newf(fault.NotFound, "schema %q not known", name)
	}
	delete(m.schemas, name)
	err := m.persistLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.reg.RemoveSchema(ctx, name); err != nil {
		return err
	}

	refs, err := m.store.RefsForSchema(ctx, name)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if ref.Status == atom.StatusDeleted {
			continue
		}
		if err := m.store.MarkDeleted(ctx, ref.UUID, "schema:"+name); err != nil {
			return err
		}
	}

	m.bus.Publish(bus.Event{Topic: bus.TopicSchemaChanged, Payload: bus.SchemaChanged{Schema: name}})
	m.logger.Info("schema removed", "schema", name, "refs", len(refs))
	return nil
}

// SetField writes a single-variant field and announces the change.
func (m *Manager) SetField(ctx context.Context, fieldPath string, v expr.Value, source string) error {
	if err := m.checkWrite(fieldPath, atom.KindSingle, v); err != nil {
		return err
	}
	if _, err := m.store.SetField(ctx, fieldPath, v, source); err != nil {
		return err
	}
	m.publishSet(fieldPath, v, source)
	return nil
}

// UpsertKey writes one key of a range-variant field.
func (m *Manager) UpsertKey(ctx context.Context, fieldPath, key string, v expr.Value, source string) error {
	if err := m.checkWrite(fieldPath, atom.KindRange, v); err != nil {
		return err
	}
	if _, err := m.store.UpsertKey(ctx, fieldPath, key, v, source); err != nil {
		return err
	}
	m.publishSet(fieldPath, v, source)
	return nil
}

// Append adds an element to a collection-variant field.
func (m *Manager) Append(ctx context.Context, fieldPath string, v expr.Value, source string) error {
	if err := m.checkWrite(fieldPath, atom.KindCollection, v); err != nil {
		return err
	}
	if _, err := m.store.Append(ctx, fieldPath, v, source); err != nil {
		return err
	}
	m.publishSet(fieldPath, v, source)
	return nil
}

// Schemas returns the known schemas and their loaded state.
func (m *Manager) Schemas() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.schemas))
	for name, ls := range m.schemas {
		out[name] = ls.Loaded
	}
	return out
}

// Restore reloads persisted declarations after a restart. Loaded schemas
// get their transforms re-registered; unloaded ones stay registered but
// disabled, matching their pre-restart state.
func (m *Manager) Restore(ctx context.Context) error {
	if m.slots == nil {
		return nil
	}
	data, err := m.slots.Get(ctx, slotSchemas)
	if fault.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var stored map[string]*loadedSchema
	if err := json.Unmarshal(data, &stored); err != nil {
		return fault.Wrap(fault.InvalidData, "decode "+slotSchemas, err)
	}

	for name, ls := range stored {
		for _, d := range ls.Schema.Transforms {
			t, err := transform.FromDeclaration(name, d)
			if err != nil {
				m.logger.Error("skipping invalid persisted transform", "schema", name, "transform", d.Name, "error", err)
				continue
			}
			if err := m.reg.Register(ctx, t); err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	m.schemas = stored
	m.mu.Unlock()

	m.logger.Info("schemas restored", "count", len(stored))
	return nil
}

// checkWrite validates a write against the declaration: the schema must
// be known and loaded, the field declared with the right variant, and
// the value of the declared type.
func (m *Manager) checkWrite(fieldPath string, want atom.RefKind, v expr.Value) error {
	schemaName, fieldName, ok := splitField(fieldPath)
	if !ok {
		return fault.Newf(fault.InvalidField, "field path %q is not schema.field", fieldPath)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ls, ok := m.schemas[schemaName]
	if !ok {
		return fault.Newf(fault.NotFound, "schema %q not known", schemaName)
	}
	if !ls.Loaded {
		return fault.Newf(fault.InvalidPermission, "schema %q is unloaded", schemaName)
	}

	f, ok := ls.Schema.Field(fieldName)
	if !ok {
		return fault.Newf(fault.InvalidField, "schema %q has no field %q", schemaName, fieldName)
	}
	if f.Variant != want {
		return fault.Newf(fault.InvalidField, "field %q is %s, not %s", fieldPath, f.Variant, want)
	}
	if err := checkType(f, v); err != nil {
		return err
	}
	return nil
}

func checkType(f Field, v expr.Value) error {
	ok := false
	switch v.(type) {
	case expr.Number:
		ok = f.Type == TypeNumber
	case expr.String:
		ok = f.Type == TypeString
	case expr.Bool:
		ok = f.Type == TypeBool
	case expr.Null:
		ok = true
	}
	if !ok {
		return fault.Newf(fault.InvalidData, "field %q wants %s, got %s", f.Name, f.Type, expr.FormatValue(v))
	}
	return nil
}

func (m *Manager) publishSet(fieldPath string, v expr.Value, source string) {
	m.bus.Publish(bus.Event{Topic: bus.TopicFieldValueSet, Payload: bus.FieldValueSet{
		Field:  fieldPath,
		Value:  expr.ToGo(v),
		Source: source,
	}})
}

// persistLocked writes the declaration set. Caller holds the write lock.
func (m *Manager) persistLocked(ctx context.Context) error {
	if m.slots == nil {
		return nil
	}
	data, err := json.Marshal(m.schemas)
	if err != nil {
		return fault.Wrap(fault.InvalidData, "encode "+slotSchemas, err)
	}
	return m.slots.Put(ctx, slotSchemas, data)
}

func splitField(fieldPath string) (schemaName, fieldName string, ok bool) {
	for i := 0; i < len(fieldPath); i++ {
		if fieldPath[i] == '.' {
			if i == 0 || i == len(fieldPath)-1 {
				return "", "", false
			}
			return fieldPath[:i], fieldPath[i+1:], true
		}
	}
	return "", "", false
}
