package ecs

import "strconv"

// Entity identifies an entity within a World. Ids start at 1 and are never
// reused, so the zero Entity never exists.
type Entity uint32

func (e Entity) String() string {
	return strconv.FormatUint(uint64(e), 10)
}

// Valid reports whether e could name an entity.
func (e Entity) Valid() bool {
	return e > 0
}
