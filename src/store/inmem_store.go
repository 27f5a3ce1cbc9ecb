package store

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/poldercast/src/profile"
)

// InmemStore keeps the last snapshot in memory.
type InmemStore struct {
	sync.Mutex
	profiles map[profile.ID]profile.Profile
	saves    int
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		profiles: make(map[profile.ID]profile.Profile),
	}
}

// SaveProfiles implements ProfileStore.
func (s *InmemStore) SaveProfiles(profiles []profile.Profile) error {
	s.Lock()
	defer s.Unlock()

	s.profiles = make(map[profile.ID]profile.Profile, len(profiles))
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	s.saves++

	return nil
}

// LoadProfiles implements ProfileStore.
func (s *InmemStore) LoadProfiles() ([]profile.Profile, error) {
	s.Lock()
	defer s.Unlock()

	res := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		res = append(res, p)
	}
	sort.Sort(profile.ByID(res))

	return res, nil
}

// Saves returns the number of snapshots written so far.
func (s *InmemStore) Saves() int {
	s.Lock()
	defer s.Unlock()

	return s.saves
}

// Close implements ProfileStore.
func (s *InmemStore) Close() error {
	return nil
}
