package main

import (
	"math/rand"
	"reflect"
	"strconv"

	"github.com/plus3/slotmap/assets"
	"github.com/plus3/slotmap/ecs"
	"github.com/plus3/slotmap/handle"
	"github.com/plus3/slotmap/storage"
)

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

// Lifetime counts down in seconds; the entity is replaced when it runs out.
type Lifetime struct {
	Remaining float64
}

// SpriteRef points an entity at a sprite in the catalog.
type SpriteRef struct {
	Sprite handle.Handle
}

func registerComponents(registry *ecs.ComponentRegistry, capacity int) {
	ecs.RegisterComponent[Position](registry, capacity)
	ecs.RegisterComponent[Velocity](registry, capacity)
	ecs.RegisterComponent[Lifetime](registry, capacity)
	ecs.RegisterComponent[SpriteRef](registry, capacity)
}

type MovementSystem struct {
	mask ecs.ComponentMask
}

func (s *MovementSystem) Init(w *ecs.World) error {
	var err error
	s.mask, err = w.MaskFor(reflect.TypeFor[Position](), reflect.TypeFor[Velocity]())
	return err
}

func (s *MovementSystem) Execute(frame *ecs.UpdateFrame) {
	dt := float32(frame.DeltaTime)
	for e := range frame.World.Query(s.mask) {
		pos, _ := ecs.GetComponent[Position](frame.World, e)
		vel, _ := ecs.GetComponent[Velocity](frame.World, e)
		pos.X += vel.DX * dt
		pos.Y += vel.DY * dt
	}
}

// LifetimeSystem deletes expired entities and spawns a replacement for each,
// so the storages see steady insert and release churn.
type LifetimeSystem struct {
	spawner *spawner
	Expired int64
}

func (s *LifetimeSystem) Execute(frame *ecs.UpdateFrame) {
	for e, life := range ecs.Each[Lifetime](frame.World) {
		life.Remaining -= frame.DeltaTime
		if life.Remaining > 0 {
			continue
		}
		frame.Commands.Delete(e)
		frame.Commands.Spawn(s.spawner.components()...)
		s.Expired++
	}
}

// RenderSystem resolves every sprite reference through the catalog, the way
// a renderer would before drawing.
type RenderSystem struct {
	catalog  *assets.Catalog
	Resolved int64
	Missing  int64
}

func (s *RenderSystem) Execute(frame *ecs.UpdateFrame) {
	for _, ref := range ecs.Each[SpriteRef](frame.World) {
		sprite, err := s.catalog.Sprites.Get(ref.Sprite)
		if err != nil {
			s.Missing++
			continue
		}
		texture, err := s.catalog.Textures.Get(sprite.Texture)
		if err != nil {
			s.Missing++
			continue
		}
		_ = sprite.UVs(texture.Width, texture.Height)
		s.Resolved++
	}
}

// Effect is a short-lived named value. Effects live in a named storage beside
// the world so both kinds of store see churn.
type Effect struct {
	Remaining float64
}

type EffectSystem struct {
	effects  *storage.Storage[Effect]
	rng      *rand.Rand
	next     int
	expired  []handle.Handle
	Spawned  int64
	Released int64
}

func (s *EffectSystem) Execute(frame *ecs.UpdateFrame) {
	s.expired = s.expired[:0]
	for h, e := range s.effects.All() {
		e.Remaining -= frame.DeltaTime
		if e.Remaining <= 0 {
			s.expired = append(s.expired, h)
		}
	}
	for _, h := range s.expired {
		if err := s.effects.Release(h); err == nil {
			s.Released++
		}
	}

	for range 1 + s.rng.Intn(8) {
		s.next++
		s.effects.Insert("effect-"+strconv.Itoa(s.next), Effect{Remaining: s.rng.Float64() * 0.2})
		s.Spawned++
	}
}

type spawner struct {
	rng     *rand.Rand
	sprites []handle.Handle
}

func (s *spawner) components() []any {
	components := []any{
		Position{X: s.rng.Float32() * 100, Y: s.rng.Float32() * 100},
		Lifetime{Remaining: 0.05 + s.rng.Float64()},
	}
	if s.rng.Intn(2) == 0 {
		components = append(components, Velocity{DX: s.rng.Float32() - 0.5, DY: s.rng.Float32() - 0.5})
	}
	if len(s.sprites) > 0 && s.rng.Intn(4) != 0 {
		components = append(components, SpriteRef{Sprite: s.sprites[s.rng.Intn(len(s.sprites))]})
	}
	return components
}
