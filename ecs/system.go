package ecs

// System represents a behavior that operates on entities with specific components.
// Systems read and write components through the frame's World and queue
// structural changes on the frame's Commands.
type System interface {
	Execute(frame *UpdateFrame)
}

// Initializer is implemented by systems that need to resolve masks or
// storages once, when they are registered.
type Initializer interface {
	Init(w *World) error
}
