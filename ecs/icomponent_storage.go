package ecs

import (
	"iter"
	"reflect"

	"github.com/plus3/slotmap/handle"
)

// iComponentStorage is an interface for a type-erased component storage, so a
// World can hold storages of every registered type in one slice indexed by tag.
type iComponentStorage interface {
	Tag() uint16
	Type() reflect.Type
	Size() int
	Capacity() int
	Has(h handle.Handle) bool
	Release(h handle.Handle) error
	Clear()
	insertAny(v any) (handle.Handle, error)
	getAny(h handle.Handle) (any, error)
	handles() iter.Seq[handle.Handle]
}

var _ iComponentStorage = (*ComponentStorage[int])(nil)
