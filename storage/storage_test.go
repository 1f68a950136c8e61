package storage_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/plus3/slotmap/handle"
	"github.com/plus3/slotmap/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Person struct {
	ID     int
	Weight float64
	Name   string
}

type Counter int32

const (
	personTag  uint16 = 1
	counterTag uint16 = 2
)

func newPeople(t *testing.T, capacity int, opts ...storage.Option[Person]) *storage.Storage[Person] {
	t.Helper()
	s, err := storage.New[Person](personTag, capacity, opts...)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	for _, capacity := range []int{1, 2, 8, 100} {
		s, err := storage.New[Person](personTag, capacity)
		require.NoError(t, err)
		assert.Equal(t, capacity, s.Capacity())
		assert.Equal(t, 0, s.Size())
		assert.Equal(t, personTag, s.Tag())
	}
}

func TestNewInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		s, err := storage.New[Person](personTag, capacity)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, storage.ErrInvalidCapacity)
	}
}

func TestInsertGet(t *testing.T) {
	s := newPeople(t, 8)

	alice := s.Insert("alice", Person{1, 3.0, "Alice"})

	v, err := s.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, Person{1, 3.0, "Alice"}, *v)

	byName, ok := s.GetByName("alice")
	require.True(t, ok)
	assert.Equal(t, Person{1, 3.0, "Alice"}, *byName)

	_, ok = s.GetByName("bob")
	assert.False(t, ok)

	assert.Equal(t, personTag, alice.Tag())
	assert.NotZero(t, alice.Generation())
}

func TestGetMutatesInPlace(t *testing.T) {
	s := newPeople(t, 8)
	alice := s.Insert("alice", Person{1, 3.0, "Alice"})

	v := s.MustGet(alice)
	v.Weight = 9.5

	again, _ := s.GetByName("alice")
	assert.Equal(t, 9.5, again.Weight)
}

func TestGetInvalidHandle(t *testing.T) {
	s := newPeople(t, 8)
	s.Insert("alice", Person{1, 3.0, "Alice"})

	_, err := s.Get(handle.New(3, 2, personTag))
	assert.ErrorIs(t, err, storage.ErrStaleHandle)

	_, err = s.Get(handle.New(300, 1, personTag))
	assert.ErrorIs(t, err, storage.ErrStaleHandle)

	_, err = s.Get(handle.Null(personTag))
	assert.ErrorIs(t, err, storage.ErrStaleHandle)

	_, err = s.Get(handle.New(0, 1, counterTag))
	assert.ErrorIs(t, err, storage.ErrWrongTag)

	assert.Panics(t, func() { s.MustGet(handle.New(3, 2, personTag)) })
}

func TestHas(t *testing.T) {
	s := newPeople(t, 8)
	alice := s.Insert("alice", Person{1, 3.0, "Alice"})

	assert.True(t, s.Has(alice))
	assert.False(t, s.Has(handle.Null(personTag)))
	assert.False(t, s.Has(handle.Handle(0)))
}

func TestSize(t *testing.T) {
	s := newPeople(t, 8)

	assert.Equal(t, 0, s.Size())
	s.Insert("alice", Person{1, 1.0, "Alice"})
	assert.Equal(t, 1, s.Size())
	bob := s.Insert("bob", Person{2, 2.0, "Bob"})
	assert.Equal(t, 2, s.Size())
	s.Insert("chris", Person{3, 3.0, "Chris"})
	assert.Equal(t, 3, s.Size())

	require.NoError(t, s.Release(bob))
	assert.Equal(t, 2, s.Size())
}

func TestRelease(t *testing.T) {
	s := newPeople(t, 8)

	alice := s.Insert("alice", Person{1, 3.0, "Alice"})
	bob := s.Insert("bob", Person{2, 4.0, "Bob"})
	assert.Equal(t, 2, s.Size())

	require.NoError(t, s.ReleaseByName("alice"))
	_, ok := s.GetByName("alice")
	assert.False(t, ok)
	assert.False(t, s.Has(alice))

	v, ok := s.GetByName("bob")
	require.True(t, ok)
	assert.Equal(t, Person{2, 4.0, "Bob"}, *v)
	assert.Equal(t, 1, s.Size())

	require.NoError(t, s.Release(bob))
	_, ok = s.GetByName("bob")
	assert.False(t, ok)

	assert.ErrorIs(t, s.Release(bob), storage.ErrStaleHandle)
	assert.Equal(t, 0, s.Size())
}

func TestReleaseByNameUnknown(t *testing.T) {
	s := newPeople(t, 8)
	s.Insert("alice", Person{1, 3.0, "Alice"})

	assert.ErrorIs(t, s.ReleaseByName("nobody"), storage.ErrNameNotFound)
	assert.Equal(t, 1, s.Size())
}

func TestSlotReuseBumpsGeneration(t *testing.T) {
	s := newPeople(t, 8)

	old := s.Insert("alice", Person{1, 3.0, "Alice"})
	require.NoError(t, s.Release(old))

	fresh := s.Insert("alice2", Person{5, 5.0, "Alice II"})
	assert.Equal(t, old.Index(), fresh.Index())
	assert.NotEqual(t, old.Generation(), fresh.Generation())

	assert.False(t, s.Has(old))
	_, err := s.Get(old)
	assert.ErrorIs(t, err, storage.ErrStaleHandle)

	v, err := s.Get(fresh)
	require.NoError(t, err)
	assert.Equal(t, "Alice II", v.Name)
}

func TestDuplicateNameReassigns(t *testing.T) {
	s := newPeople(t, 8)

	first := s.Insert("hero", Person{1, 1.0, "First"})
	second := s.Insert("hero", Person{2, 2.0, "Second"})

	v, h, ok := s.GetRefByName("hero")
	require.True(t, ok)
	assert.Equal(t, second, h)
	assert.Equal(t, "Second", v.Name)

	// The displaced value is still reachable by handle but has no name.
	assert.True(t, s.Has(first))
	_, named := s.NameOf(first)
	assert.False(t, named)

	// Releasing the displaced value must not drop the new owner's name.
	require.NoError(t, s.Release(first))
	_, ok = s.GetByName("hero")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Size())
}

func TestInsertUnique(t *testing.T) {
	s := newPeople(t, 8)

	_, err := s.InsertUnique("hero", Person{1, 1.0, "First"})
	require.NoError(t, err)

	h, err := s.InsertUnique("hero", Person{2, 2.0, "Second"})
	assert.ErrorIs(t, err, storage.ErrNameTaken)
	assert.True(t, h.IsNull())
	assert.Equal(t, 1, s.Size())
}

func TestLookupAndNameOf(t *testing.T) {
	s := newPeople(t, 8)
	alice := s.Insert("alice", Person{1, 3.0, "Alice"})

	h, ok := s.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, alice, h)

	name, ok := s.NameOf(alice)
	require.True(t, ok)
	assert.Equal(t, "alice", name)

	h, ok = s.Lookup("bob")
	assert.False(t, ok)
	assert.True(t, h.IsNull())
}

func TestUnnamedInsert(t *testing.T) {
	s := newPeople(t, 8)
	a := s.Insert("", Person{1, 1.0, "A"})
	b := s.Insert("", Person{2, 2.0, "B"})

	assert.Empty(t, s.Names())
	assert.True(t, s.Has(a))
	assert.True(t, s.Has(b))
	require.NoError(t, s.Release(a))
	assert.True(t, s.Has(b))
}

func TestGrowth(t *testing.T) {
	s := newPeople(t, 2)

	handles := make([]handle.Handle, 0, 9)
	for i := range 9 {
		handles = append(handles, s.Insert(strconv.Itoa(i), Person{ID: i}))
		switch {
		case i < 2:
			assert.Equal(t, 2, s.Capacity())
		case i < 4:
			assert.Equal(t, 4, s.Capacity())
		case i < 8:
			assert.Equal(t, 8, s.Capacity())
		default:
			assert.Equal(t, 16, s.Capacity())
		}
	}

	for i, h := range handles {
		v, err := s.Get(h)
		require.NoError(t, err)
		assert.Equal(t, i, v.ID)
	}
}

func TestGrowthAfterReleases(t *testing.T) {
	s := newPeople(t, 4)
	var handles []handle.Handle
	for i := range 4 {
		handles = append(handles, s.Insert(strconv.Itoa(i), Person{ID: i}))
	}
	require.NoError(t, s.Release(handles[1]))
	require.NoError(t, s.Release(handles[3]))

	// Refill the two freed slots, then force growth.
	for i := 4; i < 10; i++ {
		s.Insert(strconv.Itoa(i), Person{ID: i})
	}
	assert.Equal(t, 8, s.Size())
	assert.Equal(t, 8, s.Capacity())

	s.Insert("10", Person{ID: 10})
	assert.Equal(t, 16, s.Capacity())

	for _, name := range []string{"0", "2", "4", "5", "6", "7", "8", "9", "10"} {
		v, ok := s.GetByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, strconv.Itoa(v.ID))
	}
}

func TestAllVisitsLiveValuesInSlotOrder(t *testing.T) {
	s := newPeople(t, 4)
	var handles []handle.Handle
	for i := range 6 {
		handles = append(handles, s.Insert(strconv.Itoa(i), Person{ID: i}))
	}
	require.NoError(t, s.Release(handles[0]))
	require.NoError(t, s.Release(handles[4]))
	reused := s.Insert("reused", Person{ID: 100})
	assert.Equal(t, handles[4].Index(), reused.Index())

	var ids []int
	for h, v := range s.All() {
		assert.True(t, s.Has(h))
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []int{1, 2, 3, 100, 5}, ids)
}

func TestAllForbidsStructuralChanges(t *testing.T) {
	s := newPeople(t, 4)
	h := s.Insert("alice", Person{ID: 1})

	assert.Panics(t, func() {
		for range s.All() {
			s.Insert("bob", Person{ID: 2})
		}
	})
	assert.Panics(t, func() {
		for range s.All() {
			_ = s.Release(h)
		}
	})

	// The guard is lifted once iteration ends, including on early break.
	for range s.All() {
		break
	}
	assert.NotPanics(t, func() { s.Insert("bob", Person{ID: 2}) })
}

func TestReleaseFuncRunsOnce(t *testing.T) {
	released := map[string]int{}
	s := newPeople(t, 2, storage.WithReleaseFunc(func(name string, v *Person) {
		released[name]++
	}))

	alice := s.Insert("alice", Person{ID: 1})
	s.Insert("bob", Person{ID: 2})
	s.Insert("chris", Person{ID: 3})

	require.NoError(t, s.Release(alice))
	require.NoError(t, s.ReleaseByName("bob"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, map[string]int{"alice": 1, "bob": 1, "chris": 1}, released)
	assert.Equal(t, 0, s.Size())
	assert.False(t, s.Has(alice))

	// A closed storage is empty but still usable.
	dana := s.Insert("dana", Person{ID: 4})
	assert.True(t, s.Has(dana))
}

func TestNameIndexConsistency(t *testing.T) {
	s := newPeople(t, 4)
	handles := map[string]handle.Handle{}
	for i := range 32 {
		name := "p" + strconv.Itoa(i)
		handles[name] = s.Insert(name, Person{ID: i})
	}
	for name, h := range handles {
		byHandle, err := s.Get(h)
		require.NoError(t, err)
		byName, ok := s.GetByName(name)
		require.True(t, ok)
		assert.Same(t, byHandle, byName)
	}
}

func TestStorageMany(t *testing.T) {
	const testSize = 2048
	s, err := storage.New[Counter](counterTag, testSize)
	require.NoError(t, err)
	for i := range testSize {
		s.Insert(strconv.Itoa(i), Counter(i))
	}
	assert.Equal(t, testSize, s.Size())
	assert.Equal(t, testSize, s.Capacity())

	rng := rand.New(rand.NewSource(7))
	removed := map[int]bool{}
	for range 1000 {
		removed[rng.Intn(testSize)] = true
	}
	for i := range removed {
		require.NoError(t, s.ReleaseByName(strconv.Itoa(i)))
	}
	assert.Equal(t, testSize-len(removed), s.Size())

	for i := range removed {
		s.Insert(strconv.Itoa(i), Counter(i))
	}
	assert.Equal(t, testSize, s.Size())
	assert.Equal(t, testSize, s.Capacity())
}

func TestStorageExpand(t *testing.T) {
	const testSize = 65536
	s, err := storage.New[Counter](counterTag, 1)
	require.NoError(t, err)
	for i := range testSize {
		s.Insert(strconv.Itoa(i), Counter(i))
	}
	assert.Equal(t, testSize, s.Size())
	capacity := s.Capacity()
	assert.GreaterOrEqual(t, capacity, testSize)
	assert.Zero(t, capacity&(capacity-1), "capacity %d is not a power of two", capacity)

	rng := rand.New(rand.NewSource(11))
	removed := map[int]bool{}
	for range testSize / 2 {
		removed[rng.Intn(testSize)] = true
	}
	for i := range removed {
		require.NoError(t, s.ReleaseByName(strconv.Itoa(i)))
	}
	assert.Equal(t, testSize-len(removed), s.Size())
	for i := range removed {
		_, ok := s.GetByName(strconv.Itoa(i))
		assert.False(t, ok)
	}

	for i := range removed {
		s.Insert("new-"+strconv.Itoa(i), Counter(-i))
	}
	assert.Equal(t, testSize, s.Size())

	for i := range testSize {
		name := strconv.Itoa(i)
		want := Counter(i)
		if removed[i] {
			name = "new-" + name
			want = Counter(-i)
		}
		v, ok := s.GetByName(name)
		require.True(t, ok, name)
		assert.Equal(t, want, *v)
	}
}
