package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpsert(t *testing.T) {
	s := NewStore()

	assert.True(t, s.Upsert(NewProfile("a", "addr-a", "x")))
	assert.False(t, s.Upsert(NewProfile("a", "", "y", "z")))
	assert.Equal(t, 1, s.Len())

	p, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "addr-a", p.Address, "empty address should not overwrite")
	assert.Equal(t, Topics{"y", "z"}, p.Topics, "topics should be replaced")

	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestStoreTickAndAge(t *testing.T) {
	s := NewStore()
	s.Upsert(NewProfile("a", ""))
	s.Upsert(NewProfile("b", ""))

	// first tick only consumes the refresh flag
	s.Tick()
	age, _ := s.Age("a")
	assert.Equal(t, 0, age)

	s.Tick()
	s.Tick()
	age, _ = s.Age("a")
	assert.Equal(t, 2, age)

	s.Upsert(NewProfile("a", ""))
	s.Tick()
	age, _ = s.Age("a")
	assert.Equal(t, 0, age)
	age, _ = s.Age("b")
	assert.Equal(t, 3, age)

	_, ok := s.Age("c")
	assert.False(t, ok)
}

func TestStorePrune(t *testing.T) {
	s := NewStore()
	for _, id := range []ID{"a", "b", "c"} {
		s.Upsert(NewProfile(id, ""))
	}
	for i := 0; i < 4; i++ {
		s.Tick()
	}
	s.Upsert(NewProfile("c", ""))

	assert.Nil(t, s.Prune(0, nil), "zero max age disables pruning")

	removed := s.Prune(2, func(id ID) bool { return id == "a" })
	assert.Equal(t, []ID{"b"}, removed)
	assert.Equal(t, 2, s.Len())

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, ID("a"), all[0].ID)
	assert.Equal(t, ID("c"), all[1].ID)

	s.Remove("a")
	assert.Equal(t, 1, s.Len())
}
