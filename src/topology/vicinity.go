package topology

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/sirupsen/logrus"
)

// Vicinity is the interest proximity module. It keeps the nodes whose topic
// sets have the largest intersection with ours. Scores are computed from the
// profile store at the time of use, so a node changing its subscriptions is
// re-ranked as soon as its new profile is known.
type Vicinity struct {
	sync.RWMutex

	self     profile.Profile
	store    *profile.Store
	capacity int
	subset   int
	staleAge int
	logger   *logrus.Entry

	view map[profile.ID]int
}

// NewVicinity is the Factory of the interest proximity module.
func NewVicinity(env Env) (Module, error) {
	return &Vicinity{
		self:     env.Self,
		store:    env.Store,
		capacity: env.Config.ProximityCapacity,
		subset:   env.Config.ProximitySubset,
		staleAge: env.Config.StaleAge,
		logger:   env.Logger,
		view:     make(map[profile.ID]int),
	}, nil
}

// Name implements the Module interface.
func (v *Vicinity) Name() string {
	return config.Vicinity
}

// Capacity implements the Module interface.
func (v *Vicinity) Capacity() int {
	return v.capacity
}

type scored struct {
	id    profile.ID
	score int
	age   int
}

// Score returns the proximity of a node: the number of topics it shares with
// the local node.
func (v *Vicinity) Score(id profile.ID) int {
	p, ok := v.store.Get(id)
	if !ok {
		return 0
	}
	return v.self.Proximity(p)
}

// ranked returns the view entries, closest first. Equal scores are ordered
// by higher local age, then by ascending identifier.
func (v *Vicinity) ranked() []scored {
	res := make([]scored, 0, len(v.view))
	for id, age := range v.view {
		res = append(res, scored{id: id, score: v.Score(id), age: age})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].score != res[j].score {
			return res[i].score > res[j].score
		}
		if res[i].age != res[j].age {
			return res[i].age > res[j].age
		}
		return res[i].id < res[j].id
	})
	return res
}

// SelectTargets returns the closest entry.
func (v *Vicinity) SelectTargets() []profile.ID {
	v.Lock()
	defer v.Unlock()

	for id := range v.view {
		v.view[id]++
	}

	if v.staleAge > 0 {
		for id := range v.view {
			age, ok := v.store.Age(id)
			if !ok || age > v.staleAge {
				v.logger.WithField("id", id).Debug("Evict stale proximity entry")
				delete(v.view, id)
			}
		}
	}

	ranked := v.ranked()
	if len(ranked) == 0 {
		return nil
	}

	return []profile.ID{ranked[0].id}
}

// BuildOutgoing returns our own profile followed by the closest entries other
// than the target.
func (v *Vicinity) BuildOutgoing(target profile.ID) []profile.Profile {
	v.RLock()
	defer v.RUnlock()

	return v.closest(target)
}

// BuildReply implements the Module interface.
func (v *Vicinity) BuildReply(from profile.ID) []profile.Profile {
	v.RLock()
	defer v.RUnlock()

	return v.closest(from)
}

func (v *Vicinity) closest(exclude profile.ID) []profile.Profile {
	ids := []profile.ID{}
	for _, s := range v.ranked() {
		if len(ids) >= v.subset-1 {
			break
		}
		if s.id != exclude {
			ids = append(ids, s.id)
		}
	}
	return append([]profile.Profile{v.self}, profiles(v.store, ids)...)
}

// MergeIncoming inserts every candidate, then evicts the furthest entries
// until the view fits. Equal scores evict the older entry first, then the
// greater identifier.
func (v *Vicinity) MergeIncoming(from profile.ID, candidates []profile.Profile) {
	v.Lock()
	defer v.Unlock()

	for _, cand := range candidates {
		if cand.ID == "" || cand.ID == v.self.ID {
			continue
		}
		v.view[cand.ID] = 0
	}

	if len(v.view) <= v.capacity {
		return
	}

	ranked := v.ranked()
	sort.SliceStable(ranked, func(i, j int) bool {
		// furthest first; among equals the older, then the greater id
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		if ranked[i].age != ranked[j].age {
			return ranked[i].age > ranked[j].age
		}
		return ranked[i].id > ranked[j].id
	})

	for _, s := range ranked[:len(ranked)-v.capacity] {
		delete(v.view, s.id)
	}
}

// Abandon implements the Module interface. Nothing is staged by this module.
func (v *Vicinity) Abandon(target profile.ID) {}

// Remove implements the Module interface.
func (v *Vicinity) Remove(id profile.ID) {
	v.Lock()
	defer v.Unlock()

	delete(v.view, id)
}

// View implements the Module interface.
func (v *Vicinity) View() []profile.ID {
	v.RLock()
	defer v.RUnlock()

	res := make([]profile.ID, 0, len(v.view))
	for id := range v.view {
		res = append(res, id)
	}
	return sortIDs(res)
}
