package ecs

import "errors"

var (
	ErrInvalidCapacity       = errors.New("storage capacity must be greater than zero")
	ErrStaleHandle           = errors.New("handle does not refer to a live component")
	ErrWrongTag              = errors.New("handle was issued by a storage of another component type")
	ErrUnregisteredComponent = errors.New("component type is not registered")
	ErrNoSuchEntity          = errors.New("entity does not exist")
	ErrComponentExists       = errors.New("component already exists on entity")
	ErrComponentNotFound     = errors.New("component does not exist on entity")
)
