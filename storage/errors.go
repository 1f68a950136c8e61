package storage

import "errors"

var (
	ErrInvalidCapacity = errors.New("storage capacity must be greater than zero")
	ErrStaleHandle     = errors.New("handle does not refer to a live value")
	ErrWrongTag        = errors.New("handle was issued by a storage of another type")
	ErrNameNotFound    = errors.New("no value is registered under this name")
	ErrNameTaken       = errors.New("name is already registered")
	ErrCorruptDocument = errors.New("storage document is corrupt")
)
