package ecs_test

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/plus3/slotmap/ecs"
	"github.com/plus3/slotmap/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(cs *ecs.ComponentStorage[Score]) []Score {
	var out []Score
	for v := range cs.Values() {
		out = append(out, *v)
	}
	return out
}

func TestNewComponentStorage(t *testing.T) {
	cs := newScores(t, 4)
	assert.Equal(t, uint16(7), cs.Tag())
	assert.Equal(t, 0, cs.Size())
	assert.Equal(t, 4, cs.Capacity())
	assert.Equal(t, uintptr(4), cs.RecordSize())
	assert.Equal(t, "ecs_test.Score", cs.Type().String())

	_, err := ecs.NewComponentStorage[Score](7, 0)
	assert.ErrorIs(t, err, ecs.ErrInvalidCapacity)
}

func TestComponentInsertGet(t *testing.T) {
	cs := newScores(t, 4)
	a := cs.Insert(10)
	b := cs.Insert(20)

	assert.Equal(t, uint16(7), a.Tag())
	assert.Equal(t, uint16(1), a.Generation())
	assert.NotEqual(t, a.Index(), b.Index())

	v, err := cs.Get(a)
	require.NoError(t, err)
	assert.Equal(t, Score(10), *v)

	*v = 11
	v, err = cs.Get(a)
	require.NoError(t, err)
	assert.Equal(t, Score(11), *v)
	assert.Equal(t, 2, cs.Size())
}

func TestComponentInvalidHandles(t *testing.T) {
	cs := newScores(t, 2)
	h := cs.Insert(1)

	_, err := cs.Get(handle.New(h.Index(), h.Generation(), 8))
	assert.ErrorIs(t, err, ecs.ErrWrongTag)

	_, err = cs.Get(handle.New(99, 1, 7))
	assert.ErrorIs(t, err, ecs.ErrStaleHandle)

	_, err = cs.Get(handle.Null(7))
	assert.ErrorIs(t, err, ecs.ErrStaleHandle)

	require.NoError(t, cs.Release(h))
	_, err = cs.Get(h)
	assert.ErrorIs(t, err, ecs.ErrStaleHandle)
	assert.ErrorIs(t, cs.Release(h), ecs.ErrStaleHandle)
	assert.False(t, cs.Has(h))
}

func TestComponentReleaseKeepsRecordsPacked(t *testing.T) {
	cs := newScores(t, 4)
	a := cs.Insert(1)
	b := cs.Insert(2)
	c := cs.Insert(3)
	d := cs.Insert(4)

	require.NoError(t, cs.Release(b))
	assert.Equal(t, []Score{1, 4, 3}, values(cs))

	// Surviving handles still resolve after the move.
	for h, want := range map[handle.Handle]Score{a: 1, c: 3, d: 4} {
		v, err := cs.Get(h)
		require.NoError(t, err)
		assert.Equal(t, want, *v)
	}

	require.NoError(t, cs.Release(d))
	assert.Equal(t, []Score{1, 3}, values(cs))

	// Released slots are reused newest first, with a bumped generation.
	e := cs.Insert(5)
	assert.Equal(t, d.Index(), e.Index())
	assert.Equal(t, uint16(2), e.Generation())
	assert.Equal(t, []Score{1, 3, 5}, values(cs))
	assert.False(t, cs.Has(d))
}

func TestComponentReleaseLast(t *testing.T) {
	cs := newScores(t, 2)
	a := cs.Insert(1)
	b := cs.Insert(2)
	require.NoError(t, cs.Release(b))
	require.NoError(t, cs.Release(a))
	assert.Equal(t, 0, cs.Size())
	assert.Empty(t, values(cs))

	h := cs.Insert(3)
	assert.Equal(t, a.Index(), h.Index())
	assert.Equal(t, []Score{3}, values(cs))
}

func TestComponentExpand(t *testing.T) {
	cs := newScores(t, 2)
	a := cs.Insert(1)
	b := cs.Insert(2)
	require.NoError(t, cs.Release(a))
	c := cs.Insert(3)
	d := cs.Insert(4)

	assert.Equal(t, 4, cs.Capacity())
	for h, want := range map[handle.Handle]Score{b: 2, c: 3, d: 4} {
		assert.Equal(t, want, *must(cs.Get(h)))
	}
	assert.Equal(t, []Score{2, 3, 4}, values(cs))

	cs.Expand()
	assert.Equal(t, 8, cs.Capacity())
	assert.Equal(t, []Score{2, 3, 4}, values(cs))
	for range 5 {
		cs.Insert(0)
	}
	assert.Equal(t, 8, cs.Size())
	assert.Equal(t, 8, cs.Capacity())
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestComponentAllYieldsHandles(t *testing.T) {
	cs := newScores(t, 4)
	want := map[handle.Handle]Score{}
	for i := range 6 {
		want[cs.Insert(Score(i))] = Score(i)
	}
	got := map[handle.Handle]Score{}
	for h, v := range cs.All() {
		got[h] = *v
	}
	assert.Equal(t, want, got)
}

func TestComponentIterationGuard(t *testing.T) {
	cs := newScores(t, 4)
	h := cs.Insert(1)
	cs.Insert(2)

	assert.Panics(t, func() {
		for range cs.All() {
			cs.Insert(3)
		}
	})
	assert.Panics(t, func() {
		for range cs.Values() {
			_ = cs.Release(h)
		}
	})

	// An early break ends the guard.
	for range cs.All() {
		break
	}
	cs.Insert(4)
	assert.Equal(t, 3, cs.Size())
}

func TestComponentClear(t *testing.T) {
	cs := newScores(t, 4)
	a := cs.Insert(1)
	cs.Insert(2)
	cs.Clear()
	assert.Equal(t, 0, cs.Size())
	assert.False(t, cs.Has(a))

	b := cs.Insert(3)
	assert.Equal(t, a.Index(), b.Index())
	assert.Equal(t, uint16(2), b.Generation())
	assert.Equal(t, []Score{3}, values(cs))
}

// TestComponentChurn checks after every operation that the live records form
// a contiguous prefix and that every live handle still resolves to its value.
func TestComponentChurn(t *testing.T) {
	cs := newScores(t, 1)
	rng := rand.New(rand.NewSource(7))
	live := map[handle.Handle]Score{}
	var order []handle.Handle

	for i := range 4000 {
		if len(order) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(order))
			h := order[j]
			order = slices.Delete(order, j, j+1)
			delete(live, h)
			require.NoError(t, cs.Release(h))
		} else {
			h := cs.Insert(Score(i))
			live[h] = Score(i)
			order = append(order, h)
		}

		require.Equal(t, len(live), cs.Size())
	}

	for h, want := range live {
		got, err := cs.Get(h)
		require.NoError(t, err)
		require.Equal(t, want, *got)
	}
	seen := map[handle.Handle]Score{}
	for h, v := range cs.All() {
		seen[h] = *v
	}
	assert.Equal(t, live, seen)
}
