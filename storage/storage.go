// Package storage implements a named, generational slot map. Values are boxed
// in slots that never move, addressed by handle.Handle or by a human-readable
// name. Storages are not safe for concurrent use.
package storage

import (
	"fmt"
	"iter"
	"slices"

	"github.com/plus3/slotmap/handle"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// node is one slot. A nil item marks the slot as free.
type node[T any] struct {
	item       *T
	next       uint32
	generation uint16
	name       string
}

// Option configures a Storage.
type Option[T any] func(*Storage[T])

// WithReleaseFunc registers a function that runs exactly once for every value
// leaving the storage, whether by Release, ReleaseByName or Close.
func WithReleaseFunc[T any](fn func(name string, value *T)) Option[T] {
	return func(s *Storage[T]) {
		s.onRelease = fn
	}
}

// WithLogger overrides the package logger for one storage.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(s *Storage[T]) {
		s.log = l
	}
}

// Storage maps handles and names to values of a single type.
type Storage[T any] struct {
	tag            uint16
	nodes          []node[T]
	size           int
	firstAvailable uint32
	names          map[string]uint32

	onRelease func(name string, value *T)
	log       *zap.Logger
	iterating int
}

// New creates a storage whose handles carry tag. All capacity slots start free.
func New[T any](tag uint16, capacity int, opts ...Option[T]) (*Storage[T], error) {
	if capacity <= 0 {
		return nil, eris.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}
	s := &Storage[T]{
		tag:   tag,
		nodes: makeFreeNodes[T](0, capacity),
		names: make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = Logger()
	}
	return s, nil
}

// makeFreeNodes returns free slots for indices [from, to), each linked to the
// next. The last one links to to, which is the exhausted-list marker until the
// storage grows again.
func makeFreeNodes[T any](from, to int) []node[T] {
	nodes := make([]node[T], to-from)
	for i := range nodes {
		nodes[i].next = uint32(from + i + 1)
	}
	return nodes
}

func (s *Storage[T]) Tag() uint16 {
	return s.tag
}

// Size returns the number of live values.
func (s *Storage[T]) Size() int {
	return s.size
}

// Capacity returns the number of slots.
func (s *Storage[T]) Capacity() int {
	return len(s.nodes)
}

// expand doubles the slot array. The old list terminator (the old capacity)
// becomes the first new slot, so no free-list relinking is needed.
func (s *Storage[T]) expand() {
	capacity := len(s.nodes)
	nodes := make([]node[T], capacity, 2*capacity)
	copy(nodes, s.nodes)
	s.nodes = append(nodes, makeFreeNodes[T](capacity, 2*capacity)...)

	s.log.Debug("storage expanded",
		zap.Uint16("tag", s.tag),
		zap.Int("from", capacity),
		zap.Int("to", len(s.nodes)))
}

func (s *Storage[T]) mustNotIterate(op string) {
	if s.iterating > 0 {
		panic("storage: " + op + " called while iterating")
	}
}

// Insert stores value under name and returns its handle. A name already in use
// is reassigned to the new value; the previous owner stays live but unnamed.
// An empty name stores the value without registering a name.
func (s *Storage[T]) Insert(name string, value T) handle.Handle {
	s.mustNotIterate("Insert")

	if int(s.firstAvailable) == len(s.nodes) {
		s.expand()
	}
	index := s.firstAvailable
	n := &s.nodes[index]
	if n.item != nil {
		panic(fmt.Sprintf("storage: free list points at occupied slot %d", index))
	}
	s.firstAvailable = n.next

	n.item = &value
	n.generation = handle.NextGeneration(n.generation)
	n.name = name

	if name != "" {
		if prev, ok := s.names[name]; ok {
			s.nodes[prev].name = ""
			s.log.Warn("storage name reassigned",
				zap.Uint16("tag", s.tag),
				zap.String("name", name),
				zap.Uint32("previous_slot", prev),
				zap.Uint32("slot", index))
		}
		s.names[name] = index
	}
	s.size++

	return handle.New(index, n.generation, s.tag)
}

// InsertUnique is Insert that refuses to reassign a name.
func (s *Storage[T]) InsertUnique(name string, value T) (handle.Handle, error) {
	if _, ok := s.names[name]; ok && name != "" {
		return handle.Null(s.tag), eris.Wrapf(ErrNameTaken, "name %q", name)
	}
	return s.Insert(name, value), nil
}

// lookup resolves h to its node, or explains why it cannot.
func (s *Storage[T]) lookup(h handle.Handle) (*node[T], error) {
	if h.Tag() != s.tag {
		return nil, eris.Wrapf(ErrWrongTag, "handle %s has tag %d, storage has tag %d", h, h.Tag(), s.tag)
	}
	if int(h.Index()) >= len(s.nodes) {
		return nil, eris.Wrapf(ErrStaleHandle, "handle %s is out of range", h)
	}
	n := &s.nodes[h.Index()]
	if n.item == nil {
		return nil, eris.Wrapf(ErrStaleHandle, "handle %s points at a free slot", h)
	}
	if n.generation != h.Generation() {
		return nil, eris.Wrapf(ErrStaleHandle, "handle %s has generation %d, slot is at %d", h, h.Generation(), n.generation)
	}
	return n, nil
}

// Has reports whether h refers to a live value of this storage.
func (s *Storage[T]) Has(h handle.Handle) bool {
	_, err := s.lookup(h)
	return err == nil
}

// Get returns the value h refers to. The pointer stays valid until the value is
// released. A failure means the caller holds a released or foreign handle.
func (s *Storage[T]) Get(h handle.Handle) (*T, error) {
	n, err := s.lookup(h)
	if err != nil {
		return nil, err
	}
	return n.item, nil
}

// MustGet is Get that panics on a stale or foreign handle.
func (s *Storage[T]) MustGet(h handle.Handle) *T {
	v, err := s.Get(h)
	if err != nil {
		panic(err)
	}
	return v
}

// Lookup returns the handle of the value registered under name.
func (s *Storage[T]) Lookup(name string) (handle.Handle, bool) {
	index, ok := s.names[name]
	if !ok {
		return handle.Null(s.tag), false
	}
	return handle.New(index, s.nodes[index].generation, s.tag), true
}

// GetByName returns the value registered under name.
func (s *Storage[T]) GetByName(name string) (*T, bool) {
	v, _, ok := s.GetRefByName(name)
	return v, ok
}

// GetRefByName returns the value registered under name along with its handle.
func (s *Storage[T]) GetRefByName(name string) (*T, handle.Handle, bool) {
	index, ok := s.names[name]
	if !ok {
		return nil, handle.Null(s.tag), false
	}
	n := &s.nodes[index]
	return n.item, handle.New(index, n.generation, s.tag), true
}

// NameOf returns the name h's value is registered under.
func (s *Storage[T]) NameOf(h handle.Handle) (string, bool) {
	n, err := s.lookup(h)
	if err != nil || n.name == "" {
		return "", false
	}
	if index, ok := s.names[n.name]; !ok || index != h.Index() {
		return "", false
	}
	return n.name, true
}

// Release removes the value h refers to and frees its slot.
func (s *Storage[T]) Release(h handle.Handle) error {
	s.mustNotIterate("Release")
	if _, err := s.lookup(h); err != nil {
		return err
	}
	s.release(h.Index())
	return nil
}

// ReleaseByName removes the value registered under name.
func (s *Storage[T]) ReleaseByName(name string) error {
	s.mustNotIterate("ReleaseByName")
	index, ok := s.names[name]
	if !ok {
		s.log.Debug("release of unknown name", zap.Uint16("tag", s.tag), zap.String("name", name))
		return eris.Wrapf(ErrNameNotFound, "name %q", name)
	}
	s.release(index)
	return nil
}

func (s *Storage[T]) release(index uint32) {
	n := &s.nodes[index]
	item, name := n.item, n.name

	// Only drop the mapping if it still points here; the name may have been
	// reassigned to a newer value.
	if owner, ok := s.names[name]; ok && owner == index && name != "" {
		delete(s.names, name)
	}
	n.item = nil
	n.name = ""
	n.next = s.firstAvailable
	s.firstAvailable = index
	s.size--

	if s.onRelease != nil {
		s.onRelease(name, item)
	}
}

// All iterates live values in ascending slot order. Inserting or releasing
// while the iteration is in progress panics.
func (s *Storage[T]) All() iter.Seq2[handle.Handle, *T] {
	return func(yield func(handle.Handle, *T) bool) {
		s.iterating++
		defer func() { s.iterating-- }()

		for i := range s.nodes {
			n := &s.nodes[i]
			if n.item == nil {
				continue
			}
			if !yield(handle.New(uint32(i), n.generation, s.tag), n.item) {
				return
			}
		}
	}
}

// Names returns every registered name in sorted order.
func (s *Storage[T]) Names() []string {
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close releases every live value, running the release function for each, and
// leaves the storage empty. Handles issued before Close stay invalid.
func (s *Storage[T]) Close() error {
	s.mustNotIterate("Close")
	for i := range s.nodes {
		if s.nodes[i].item != nil {
			s.release(uint32(i))
		}
	}
	return nil
}
