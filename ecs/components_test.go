package ecs_test

import (
	"testing"

	"github.com/plus3/slotmap/ecs"
	"github.com/stretchr/testify/require"
)

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Name struct {
	Value string
}

type Health struct {
	Current int
	Max     int
}

type Score int32

type Unregistered struct{}

func newTestRegistry() *ecs.ComponentRegistry {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry, 4)
	ecs.RegisterComponent[Velocity](registry, 4)
	ecs.RegisterComponent[Name](registry, 4)
	ecs.RegisterComponent[Health](registry, 4)
	ecs.RegisterComponent[Score](registry, 4)
	return registry
}

func newTestWorld() *ecs.World {
	return ecs.NewWorld(newTestRegistry())
}

func newScores(t testing.TB, capacity int) *ecs.ComponentStorage[Score] {
	t.Helper()
	cs, err := ecs.NewComponentStorage[Score](7, capacity)
	require.NoError(t, err)
	return cs
}
