package object

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/craftberry/types"
)

var (
	// ErrObjectNotFound is returned when an id is not registered.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectExists is returned when registering an id twice.
	ErrObjectExists = errors.New("object already registered")

	// ErrRegistryClosed is returned by operations on a closed registry.
	ErrRegistryClosed = errors.New("registry is closed")
)

// Registry holds the live set of state objects and dispatches messages
// to them in registration order. All methods are safe for concurrent
// use; dispatches are serialized.
type Registry struct {
	mu      sync.RWMutex
	objects map[types.ID]Object
	byType  map[string][]types.ID
	order   []types.ID
	closed  bool
	log     *zap.Logger
}

// NewRegistry returns an empty registry. A nil logger is replaced with
// a no-op logger.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		objects: make(map[types.ID]Object),
		byType:  make(map[string][]types.ID),
		log:     log,
	}
}

// Register adds an object under its own id.
func (r *Registry) Register(obj Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	id := obj.ID()
	if _, ok := r.objects[id]; ok {
		return fmt.Errorf("%w: %s", ErrObjectExists, id)
	}
	r.objects[id] = obj
	r.byType[obj.TypeName()] = append(r.byType[obj.TypeName()], id)
	r.order = append(r.order, id)
	r.log.Debug("object registered",
		zap.Stringer("id", id),
		zap.String("type", obj.TypeName()))
	return nil
}

// Get returns the object registered under id.
func (r *Registry) Get(id types.ID) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return obj, nil
}

// Remove unregisters the object with the given id, keeping the type
// index consistent.
func (r *Registry) Remove(id types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	delete(r.objects, id)
	r.byType[obj.TypeName()] = removeID(r.byType[obj.TypeName()], id)
	if len(r.byType[obj.TypeName()]) == 0 {
		delete(r.byType, obj.TypeName())
	}
	r.order = removeID(r.order, id)
	r.log.Debug("object removed", zap.Stringer("id", id))
	return nil
}

// ByType returns the objects registered under the given type name, in
// registration order.
func (r *Registry) ByType(typeName string) []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byType[typeName]
	objs := make([]Object, 0, len(ids))
	for _, id := range ids {
		objs = append(objs, r.objects[id])
	}
	return objs
}

// IDs returns all registered ids in registration order.
func (r *Registry) IDs() []types.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Dispatch offers the message to every registered object in
// registration order and returns the ids of the objects that accepted
// it. A failure in one object's Apply is collected and joined into the
// returned error without stopping dispatch to the remaining objects.
func (r *Registry) Dispatch(msg *types.Message) ([]types.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	var accepted []types.ID
	var errs []error
	for _, id := range r.order {
		obj := r.objects[id]
		ok, err := obj.IsValid(msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("object %s validate: %w", id, err))
			continue
		}
		if !ok {
			continue
		}
		if err := obj.Apply(msg); err != nil {
			errs = append(errs, fmt.Errorf("object %s apply: %w", id, err))
			r.log.Debug("apply failed",
				zap.Stringer("object", id),
				zap.Stringer("message", msg.ID),
				zap.Error(err))
			continue
		}
		accepted = append(accepted, id)
	}
	return accepted, errors.Join(errs...)
}

// Clear removes every object.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects = make(map[types.ID]Object)
	r.byType = make(map[string][]types.ID)
	r.order = nil
}

// Close marks the registry closed. Further registrations and
// dispatches fail with ErrRegistryClosed; reads keep working so state
// can still be inspected during shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func removeID(ids []types.ID, id types.ID) []types.ID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
