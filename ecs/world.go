package ecs

import (
	"iter"
	"reflect"

	"github.com/kamstrup/intmap"
	"github.com/plus3/slotmap/handle"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// World owns one ComponentStorage per registered component type and keeps
// three views consistent: the per-entity ComponentMask, the per-type
// entity -> handle map and the storage slots themselves.
type World struct {
	registry *ComponentRegistry
	storages []iComponentStorage
	handles  []*intmap.Map[Entity, handle.Handle]
	owners   []*intmap.Map[uint32, Entity] // slot index -> entity, per tag
	masks    *intmap.Map[Entity, ComponentMask]

	lastEntity Entity
}

// NewWorld creates a world with a storage for every type in the registry.
// Types registered after NewWorld are not visible to it.
func NewWorld(registry *ComponentRegistry) *World {
	w := &World{
		registry: registry,
		storages: make([]iComponentStorage, registry.Len()),
		handles:  make([]*intmap.Map[Entity, handle.Handle], registry.Len()),
		owners:   make([]*intmap.Map[uint32, Entity], registry.Len()),
		masks:    intmap.New[Entity, ComponentMask](256),
	}
	for tag, factory := range registry.factories {
		w.storages[tag] = factory()
		w.handles[tag] = intmap.New[Entity, handle.Handle](w.storages[tag].Capacity())
		w.owners[tag] = intmap.New[uint32, Entity](w.storages[tag].Capacity())
	}
	return w
}

// CreateEntity returns a new entity with no components.
func (w *World) CreateEntity() Entity {
	w.lastEntity++
	w.masks.Put(w.lastEntity, 0)
	return w.lastEntity
}

// Spawn creates an entity carrying the given components. Components may be
// passed by value or by pointer. On failure nothing is created.
func (w *World) Spawn(components ...any) (Entity, error) {
	if len(components) == 0 {
		panic("cannot spawn entity without components")
	}
	var seen ComponentMask
	for _, c := range components {
		tag, err := w.tagOf(componentType(c))
		if err != nil {
			return 0, err
		}
		if seen.Has(int(tag)) {
			return 0, eris.Wrapf(ErrComponentExists, "%s passed twice", componentType(c))
		}
		seen.Set(int(tag))
	}

	e := w.CreateEntity()
	for _, c := range components {
		if _, err := w.AddComponentAny(e, c); err != nil {
			return 0, err
		}
	}
	return e, nil
}

// Exists reports whether e was created and not removed.
func (w *World) Exists(e Entity) bool {
	_, ok := w.masks.Get(e)
	return ok
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return w.masks.Len()
}

// Mask returns the component mask of e.
func (w *World) Mask(e Entity) (ComponentMask, bool) {
	return w.masks.Get(e)
}

// MaskFor builds the mask selecting the given component types.
func (w *World) MaskFor(types ...reflect.Type) (ComponentMask, error) {
	var m ComponentMask
	for _, t := range types {
		tag, err := w.tagOf(t)
		if err != nil {
			return 0, err
		}
		m.Set(int(tag))
	}
	return m, nil
}

// RemoveEntity releases every component of e and forgets e.
func (w *World) RemoveEntity(e Entity) error {
	mask, ok := w.masks.Get(e)
	if !ok {
		return eris.Wrapf(ErrNoSuchEntity, "entity %s", e)
	}
	for tag := range mask.Bits() {
		if err := w.removeTag(e, uint16(tag)); err != nil {
			return err
		}
	}
	w.masks.Del(e)
	return nil
}

// AddComponentAny attaches c to e. c's dynamic type selects the storage.
func (w *World) AddComponentAny(e Entity, c any) (handle.Handle, error) {
	tag, err := w.tagOf(componentType(c))
	if err != nil {
		return handle.Handle(0), err
	}
	mask, ok := w.masks.Get(e)
	if !ok {
		return handle.Null(tag), eris.Wrapf(ErrNoSuchEntity, "entity %s", e)
	}
	if mask.Has(int(tag)) {
		return handle.Null(tag), eris.Wrapf(ErrComponentExists, "entity %s already has %s", e, componentType(c))
	}

	h, err := w.storages[tag].insertAny(c)
	if err != nil {
		return h, err
	}
	w.handles[tag].Put(e, h)
	w.owners[tag].Put(h.Index(), e)
	mask.Set(int(tag))
	w.masks.Put(e, mask)
	return h, nil
}

// RemoveComponentByType detaches the component of type t from e.
func (w *World) RemoveComponentByType(e Entity, t reflect.Type) error {
	tag, err := w.tagOf(t)
	if err != nil {
		return err
	}
	mask, ok := w.masks.Get(e)
	if !ok {
		return eris.Wrapf(ErrNoSuchEntity, "entity %s", e)
	}
	if !mask.Has(int(tag)) {
		return eris.Wrapf(ErrComponentNotFound, "entity %s has no %s", e, t)
	}
	if err := w.removeTag(e, tag); err != nil {
		return err
	}
	mask.Unset(int(tag))
	w.masks.Put(e, mask)
	return nil
}

func (w *World) removeTag(e Entity, tag uint16) error {
	h, ok := w.handles[tag].Get(e)
	if !ok {
		Logger().Error("component mask and handle map disagree",
			zap.Stringer("entity", e),
			zap.Uint16("tag", tag))
		return eris.Wrapf(ErrComponentNotFound, "entity %s has no handle for tag %d", e, tag)
	}
	if err := w.storages[tag].Release(h); err != nil {
		return err
	}
	w.handles[tag].Del(e)
	w.owners[tag].Del(h.Index())
	return nil
}

// GetComponentAny returns a pointer to e's component of type t, or nil.
func (w *World) GetComponentAny(e Entity, t reflect.Type) any {
	tag, ok := w.registry.TagOf(t)
	if !ok || int(tag) >= len(w.storages) {
		return nil
	}
	h, ok := w.handles[tag].Get(e)
	if !ok {
		return nil
	}
	v, err := w.storages[tag].getAny(h)
	if err != nil {
		return nil
	}
	return v
}

// Query iterates the entities whose mask contains mask. It walks the smallest
// storage selected by mask. Structural changes to that storage during the
// iteration panic; queue them on Commands instead.
func (w *World) Query(mask ComponentMask) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		smallest := -1
		for tag := range mask.Bits() {
			if tag >= len(w.storages) {
				return
			}
			if smallest < 0 || w.storages[tag].Size() < w.storages[smallest].Size() {
				smallest = tag
			}
		}
		if smallest < 0 {
			return
		}

		owners := w.owners[smallest]
		for h := range w.storages[smallest].handles() {
			e, ok := owners.Get(h.Index())
			if !ok {
				continue
			}
			if m, _ := w.masks.Get(e); !m.Contains(mask) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Clear removes every entity and releases every component.
func (w *World) Clear() {
	for tag, cs := range w.storages {
		cs.Clear()
		w.handles[tag].Clear()
		w.owners[tag].Clear()
	}
	w.masks.Clear()
}

func (w *World) tagOf(t reflect.Type) (uint16, error) {
	tag, ok := w.registry.TagOf(t)
	if !ok || int(tag) >= len(w.storages) {
		return 0, eris.Wrapf(ErrUnregisteredComponent, "%s", t)
	}
	return tag, nil
}

// componentType strips one level of pointer so *T and T select the same
// storage.
func componentType(c any) reflect.Type {
	t := reflect.TypeOf(c)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// storageFor returns the typed storage for T.
func storageFor[T any](w *World) (*ComponentStorage[T], error) {
	tag, err := w.tagOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return w.storages[tag].(*ComponentStorage[T]), nil
}

// StorageOf returns the storage holding every T in w. It panics if T is not
// registered.
func StorageOf[T any](w *World) *ComponentStorage[T] {
	cs, err := storageFor[T](w)
	if err != nil {
		panic(err)
	}
	return cs
}

// AddComponent attaches v to e.
func AddComponent[T any](w *World, e Entity, v T) (handle.Handle, error) {
	return w.AddComponentAny(e, v)
}

// RemoveComponent detaches e's T.
func RemoveComponent[T any](w *World, e Entity) error {
	return w.RemoveComponentByType(e, reflect.TypeFor[T]())
}

// GetComponent returns e's T. The pointer is invalidated by the next insert or
// release on T's storage.
func GetComponent[T any](w *World, e Entity) (*T, bool) {
	cs, err := storageFor[T](w)
	if err != nil {
		return nil, false
	}
	h, ok := w.handles[cs.Tag()].Get(e)
	if !ok {
		return nil, false
	}
	v, err := cs.Get(h)
	if err != nil {
		return nil, false
	}
	return v, true
}

// HasComponent reports whether e carries a T.
func HasComponent[T any](w *World, e Entity) bool {
	tag, err := w.tagOf(reflect.TypeFor[T]())
	if err != nil {
		return false
	}
	mask, ok := w.masks.Get(e)
	return ok && mask.Has(int(tag))
}

// ComponentHandle returns the handle of e's T.
func ComponentHandle[T any](w *World, e Entity) (handle.Handle, bool) {
	tag, err := w.tagOf(reflect.TypeFor[T]())
	if err != nil {
		return handle.Handle(0), false
	}
	return w.handles[tag].Get(e)
}

// Each iterates every T in w with its owning entity, in storage order.
func Each[T any](w *World) iter.Seq2[Entity, *T] {
	return func(yield func(Entity, *T) bool) {
		cs, err := storageFor[T](w)
		if err != nil {
			return
		}
		owners := w.owners[cs.Tag()]
		for h, v := range cs.All() {
			e, _ := owners.Get(h.Index())
			if !yield(e, v) {
				return
			}
		}
	}
}

// ReadComponent fetches e's T through any reader, such as a World.
func ReadComponent[T any](reader ComponentReader, e Entity) *T {
	v, _ := reader.GetComponentAny(e, reflect.TypeFor[T]()).(*T)
	return v
}

type ComponentReader interface {
	GetComponentAny(Entity, reflect.Type) any
}
