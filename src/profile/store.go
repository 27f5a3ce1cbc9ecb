package profile

import (
	"sort"
	"sync"
)

type entry struct {
	profile   Profile
	age       int
	refreshed bool
}

// Store holds every profile the local node has heard of. It has no capacity
// of its own: capacity is enforced by the selection modules, which only
// hold identifiers into the Store.
type Store struct {
	sync.RWMutex
	entries map[ID]*entry
}

// NewStore ...
func NewStore() *Store {
	return &Store{
		entries: make(map[ID]*entry),
	}
}

// Upsert merges p into the store. The topic set and address are replaced and
// the age is reset. It returns true if the profile was not known before.
func (s *Store) Upsert(p Profile) bool {
	s.Lock()
	defer s.Unlock()

	p.Topics = NewTopics(p.Topics...)

	e, ok := s.entries[p.ID]
	if !ok {
		s.entries[p.ID] = &entry{profile: p, refreshed: true}
		return true
	}

	e.profile.Topics = p.Topics
	if p.Address != "" {
		e.profile.Address = p.Address
	}
	e.age = 0
	e.refreshed = true

	return false
}

// Get ...
func (s *Store) Get(id ID) (Profile, bool) {
	s.RLock()
	defer s.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Profile{}, false
	}
	return e.profile, true
}

// Age returns the number of rounds since fresh information about id arrived.
func (s *Store) Age(id ID) (int, bool) {
	s.RLock()
	defer s.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return 0, false
	}
	return e.age, true
}

// All returns every stored profile, sorted by ID.
func (s *Store) All() []Profile {
	s.RLock()
	defer s.RUnlock()

	res := make([]Profile, 0, len(s.entries))
	for _, e := range s.entries {
		res = append(res, e.profile)
	}

	sort.Sort(ByID(res))

	return res
}

// Remove ...
func (s *Store) Remove(id ID) {
	s.Lock()
	defer s.Unlock()

	delete(s.entries, id)
}

// Len ...
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.entries)
}

// Tick ends a local round: every profile that was not refreshed since the
// previous Tick gets one round older.
func (s *Store) Tick() {
	s.Lock()
	defer s.Unlock()

	for _, e := range s.entries {
		if !e.refreshed {
			e.age++
		}
		e.refreshed = false
	}
}

// Prune removes the profiles older than maxAge for which keep returns false,
// and returns their identifiers. A maxAge of zero disables pruning.
func (s *Store) Prune(maxAge int, keep func(ID) bool) []ID {
	if maxAge <= 0 {
		return nil
	}

	s.Lock()
	defer s.Unlock()

	var removed []ID
	for id, e := range s.entries {
		if e.age <= maxAge {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}
		delete(s.entries, id)
		removed = append(removed, id)
	}

	return removed
}
