package ecs

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/plus3/slotmap/handle"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MaxComponentTypes is the number of component types a registry can hold,
// bounded by the width of ComponentMask.
const MaxComponentTypes = 64

// ComponentRegistry manages component type registration for an ECS instance.
// Each World built from a registry gets its own storages, so several worlds
// can share one registry without interference.
type ComponentRegistry struct {
	tags      map[reflect.Type]uint16
	factories []func() iComponentStorage
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		tags: make(map[reflect.Type]uint16),
	}
}

// RegisterComponent registers T with the registry and returns its tag. Storages
// for T start with the given capacity. Registering the same type twice returns
// the existing tag.
func RegisterComponent[T any](r *ComponentRegistry, capacity int) uint16 {
	t := reflect.TypeFor[T]()
	if tag, ok := r.tags[t]; ok {
		return tag
	}
	if len(r.factories) == MaxComponentTypes {
		panic(fmt.Sprintf("cannot register %s: registry already holds %d component types", t, MaxComponentTypes))
	}
	if capacity <= 0 {
		panic(fmt.Sprintf("cannot register %s with capacity %d", t, capacity))
	}

	tag := uint16(len(r.factories))
	r.tags[t] = tag
	r.factories = append(r.factories, func() iComponentStorage {
		cs, _ := NewComponentStorage[T](tag, capacity)
		return cs
	})
	return tag
}

// TagOf returns the tag registered for t.
func (r *ComponentRegistry) TagOf(t reflect.Type) (uint16, bool) {
	tag, ok := r.tags[t]
	return tag, ok
}

// Len returns the number of registered component types.
func (r *ComponentRegistry) Len() int {
	return len(r.factories)
}

// componentIndex is the bookkeeping for one slot. packed is the position of
// the slot's record in the dense record array.
type componentIndex struct {
	packed     uint32
	next       uint32
	generation uint16
	free       bool
}

// ComponentStorage is a slot map whose records are kept densely packed: the
// records of live slots always occupy positions [0, Size()). Handles stay
// valid across repacking because they name slots, not positions.
type ComponentStorage[T any] struct {
	tag            uint16
	records        []T
	owners         []uint32 // position -> slot
	indices        []componentIndex
	size           uint32
	firstAvailable uint32
	iterating      int
}

// NewComponentStorage creates a storage for records of type T whose handles
// carry tag.
func NewComponentStorage[T any](tag uint16, capacity int) (*ComponentStorage[T], error) {
	if capacity <= 0 {
		return nil, eris.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	cs := &ComponentStorage[T]{
		tag:     tag,
		records: make([]T, capacity),
		owners:  make([]uint32, capacity),
		indices: make([]componentIndex, capacity),
	}
	cs.initSlots(0, capacity)
	return cs, nil
}

// initSlots marks slots [from, to) free at their own positions, linked in
// order. The last links to to, the exhausted-list marker.
func (cs *ComponentStorage[T]) initSlots(from, to int) {
	for i := from; i < to; i++ {
		cs.indices[i] = componentIndex{
			packed: uint32(i),
			next:   uint32(i + 1),
			free:   true,
		}
		cs.owners[i] = uint32(i)
	}
}

func (cs *ComponentStorage[T]) Tag() uint16 {
	return cs.tag
}

// Type returns the record type.
func (cs *ComponentStorage[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

// RecordSize returns the size of one record in bytes.
func (cs *ComponentStorage[T]) RecordSize() uintptr {
	return reflect.TypeFor[T]().Size()
}

// Size returns the number of live records.
func (cs *ComponentStorage[T]) Size() int {
	return int(cs.size)
}

// Capacity returns the number of slots.
func (cs *ComponentStorage[T]) Capacity() int {
	return len(cs.indices)
}

func (cs *ComponentStorage[T]) mustNotIterate(op string) {
	if cs.iterating > 0 {
		panic("component storage: " + op + " called while iterating")
	}
}

// Expand doubles the capacity. Existing slots keep their positions and
// generations; the new slots are appended to the free list.
func (cs *ComponentStorage[T]) Expand() {
	cs.mustNotIterate("Expand")
	capacity := len(cs.indices)
	newCapacity := 2 * capacity

	records := make([]T, newCapacity)
	copy(records, cs.records)
	owners := make([]uint32, newCapacity)
	copy(owners, cs.owners)
	indices := make([]componentIndex, newCapacity)
	copy(indices, cs.indices)

	cs.records, cs.owners, cs.indices = records, owners, indices
	// The old list terminator equals the first new slot, so the tail of the
	// free list now runs into the new slots.
	cs.initSlots(capacity, newCapacity)

	Logger().Debug("component storage expanded",
		zap.Uint16("tag", cs.tag),
		zap.Int("from", capacity),
		zap.Int("to", newCapacity))
}

// swapPositions exchanges the positions of slots a and b.
func (cs *ComponentStorage[T]) swapPositions(a, b uint32) {
	pa, pb := cs.indices[a].packed, cs.indices[b].packed
	cs.indices[a].packed, cs.indices[b].packed = pb, pa
	cs.owners[pa], cs.owners[pb] = b, a
}

// Insert stores v and returns its handle. The record is written at position
// Size(), growing the storage first if no slot is free.
func (cs *ComponentStorage[T]) Insert(v T) handle.Handle {
	cs.mustNotIterate("Insert")
	if int(cs.firstAvailable) == len(cs.indices) {
		cs.Expand()
	}

	slot := cs.firstAvailable
	idx := &cs.indices[slot]
	if !idx.free {
		panic(fmt.Sprintf("component storage: free list points at live slot %d", slot))
	}
	cs.firstAvailable = idx.next

	// Free slots own the positions past the live prefix, but not necessarily
	// in order; claim position size for this slot.
	if idx.packed != cs.size {
		cs.swapPositions(slot, cs.owners[cs.size])
	}
	idx.free = false
	idx.generation = handle.NextGeneration(idx.generation)
	cs.records[cs.size] = v
	cs.size++

	return handle.New(slot, idx.generation, cs.tag)
}

func (cs *ComponentStorage[T]) lookup(h handle.Handle) (*componentIndex, error) {
	if h.Tag() != cs.tag {
		return nil, eris.Wrapf(ErrWrongTag, "handle %s has tag %d, storage has tag %d", h, h.Tag(), cs.tag)
	}
	if int(h.Index()) >= len(cs.indices) {
		return nil, eris.Wrapf(ErrStaleHandle, "handle %s is out of range", h)
	}
	idx := &cs.indices[h.Index()]
	if idx.free || idx.generation != h.Generation() {
		return nil, eris.Wrapf(ErrStaleHandle, "handle %s does not match slot generation %d", h, idx.generation)
	}
	return idx, nil
}

// Has reports whether h refers to a live record.
func (cs *ComponentStorage[T]) Has(h handle.Handle) bool {
	_, err := cs.lookup(h)
	return err == nil
}

// Get returns the record h refers to. The pointer is invalidated by the next
// Insert, Release or Expand on this storage.
func (cs *ComponentStorage[T]) Get(h handle.Handle) (*T, error) {
	idx, err := cs.lookup(h)
	if err != nil {
		return nil, err
	}
	return &cs.records[idx.packed], nil
}

// Release removes the record h refers to. The last live record moves into the
// vacated position so the live prefix stays contiguous.
func (cs *ComponentStorage[T]) Release(h handle.Handle) error {
	cs.mustNotIterate("Release")
	idx, err := cs.lookup(h)
	if err != nil {
		return err
	}

	slot := h.Index()
	last := cs.size - 1
	if pos := idx.packed; pos != last {
		cs.records[pos] = cs.records[last]
		cs.swapPositions(slot, cs.owners[last])
	}
	var zero T
	cs.records[last] = zero

	idx.free = true
	idx.next = cs.firstAvailable
	cs.firstAvailable = slot
	cs.size--
	return nil
}

// All iterates live records in position order together with their handles.
// Structural changes during iteration panic.
func (cs *ComponentStorage[T]) All() iter.Seq2[handle.Handle, *T] {
	return func(yield func(handle.Handle, *T) bool) {
		cs.iterating++
		defer func() { cs.iterating-- }()

		for pos := uint32(0); pos < cs.size; pos++ {
			slot := cs.owners[pos]
			h := handle.New(slot, cs.indices[slot].generation, cs.tag)
			if !yield(h, &cs.records[pos]) {
				return
			}
		}
	}
}

// Values iterates live records in position order.
func (cs *ComponentStorage[T]) Values() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for _, v := range cs.All() {
			if !yield(v) {
				return
			}
		}
	}
}

func (cs *ComponentStorage[T]) handles() iter.Seq[handle.Handle] {
	return func(yield func(handle.Handle) bool) {
		for h := range cs.All() {
			if !yield(h) {
				return
			}
		}
	}
}

// Clear releases every record. Handles issued before Clear stay invalid.
func (cs *ComponentStorage[T]) Clear() {
	cs.mustNotIterate("Clear")
	for cs.size > 0 {
		slot := cs.owners[cs.size-1]
		h := handle.New(slot, cs.indices[slot].generation, cs.tag)
		if err := cs.Release(h); err != nil {
			panic(err)
		}
	}
}

func (cs *ComponentStorage[T]) insertAny(v any) (handle.Handle, error) {
	switch c := v.(type) {
	case T:
		return cs.Insert(c), nil
	case *T:
		return cs.Insert(*c), nil
	}
	return handle.Null(cs.tag), eris.Wrapf(ErrUnregisteredComponent, "%T does not belong in storage for %s", v, cs.Type())
}

func (cs *ComponentStorage[T]) getAny(h handle.Handle) (any, error) {
	v, err := cs.Get(h)
	if err != nil {
		return nil, err
	}
	return v, nil
}
