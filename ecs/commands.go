package ecs

import (
	"errors"
	"reflect"

	"go.uber.org/zap"
)

// Commands provides a buffer for deferred ECS operations that are executed at the end of a frame.
// This prevents structural changes to the ECS storages while systems iterate them.
type Commands struct {
	spawns  []spawnCommand
	deletes []Entity
	adds    []addComponentCommand
	removes []removeComponentCommand
	defers  []deferCommand
}

func newCommands() *Commands {
	return &Commands{}
}

type deferCommand struct {
	fn func()
}

type spawnCommand struct {
	components []any
}

type addComponentCommand struct {
	entity    Entity
	component any
}

type removeComponentCommand struct {
	entity   Entity
	compType reflect.Type
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, deferCommand{fn: fn})
}

// Spawn queues an entity spawn operation with the given components.
func (c *Commands) Spawn(components ...any) {
	c.spawns = append(c.spawns, spawnCommand{components: components})
}

// Delete queues an entity deletion operation.
func (c *Commands) Delete(entity Entity) {
	c.deletes = append(c.deletes, entity)
}

// AddComponent queues a component addition operation.
func (c *Commands) AddComponent(entity Entity, component any) {
	c.adds = append(c.adds, addComponentCommand{
		entity:    entity,
		component: component,
	})
}

// RemoveComponent queues a component removal operation.
func (c *Commands) RemoveComponent(entity Entity, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{
		entity:   entity,
		compType: compType,
	})
}

// Len returns the number of queued operations.
func (c *Commands) Len() int {
	return len(c.spawns) + len(c.deletes) + len(c.adds) + len(c.removes) + len(c.defers)
}

// Flush applies all queued commands to w and resets the buffer. Deletes run
// first, then removals, additions, spawns and deferred functions. Operations
// on an entity deleted in the same flush are skipped. Every command is
// attempted; the failures are joined into the returned error.
func (c *Commands) Flush(w *World) error {
	deletedEntities := make(map[Entity]bool)
	var errs []error
	fail := func(op string, err error) {
		Logger().Warn("deferred command failed", zap.String("op", op), zap.Error(err))
		errs = append(errs, err)
	}

	for _, cmd := range c.deletes {
		if deletedEntities[cmd] {
			continue
		}
		if err := w.RemoveEntity(cmd); err != nil {
			fail("delete", err)
			continue
		}
		deletedEntities[cmd] = true
	}

	for _, cmd := range c.removes {
		if !deletedEntities[cmd.entity] {
			if err := w.RemoveComponentByType(cmd.entity, cmd.compType); err != nil {
				fail("remove", err)
			}
		}
	}

	for _, cmd := range c.adds {
		if !deletedEntities[cmd.entity] {
			if _, err := w.AddComponentAny(cmd.entity, cmd.component); err != nil {
				fail("add", err)
			}
		}
	}

	for _, cmd := range c.spawns {
		if _, err := w.Spawn(cmd.components...); err != nil {
			fail("spawn", err)
		}
	}

	for _, df := range c.defers {
		df.fn()
	}

	c.spawns = c.spawns[:0]
	c.deletes = c.deletes[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
	return errors.Join(errs...)
}
