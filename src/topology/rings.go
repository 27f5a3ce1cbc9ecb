package topology

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
)

// RingKey is the position of a node on the ring of a topic. Every node
// computes the same positions, so all agree on the ring order without
// coordination.
func RingKey(topic profile.Topic, id profile.ID) uint64 {
	buf := make([]byte, 0, len(topic)+1+len(id))
	buf = append(buf, topic...)
	buf = append(buf, 0)
	buf = append(buf, id...)
	return murmur3.Sum64(buf)
}

// RingOrder sorts ids in the order of the ring of topic. Equal keys are
// ordered by identifier.
func RingOrder(topic profile.Topic, ids []profile.ID) []profile.ID {
	keys := make(map[profile.ID]uint64, len(ids))
	for _, id := range ids {
		keys[id] = RingKey(topic, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ki, kj := keys[ids[i]], keys[ids[j]]
		if ki != kj {
			return ki < kj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// distance is the shortest way around the ring between two keys.
func distance(a, b uint64) uint64 {
	d := a - b
	if b-a < d {
		d = b - a
	}
	return d
}

type ring struct {
	topic profile.Topic
	// known members, the least recently refreshed is dropped first. The
	// local node is not stored.
	known      *lru.Cache[profile.ID, struct{}]
	neighbours []profile.ID
	cursor     int
}

// Rings is the topic ring module. For every topic of the local node it keeps
// the K predecessors and the K successors of the local node on the ring of
// that topic.
type Rings struct {
	sync.RWMutex

	self       profile.Profile
	store      *profile.Store
	redundancy int
	subset     int
	staleAge   int
	logger     *logrus.Entry

	rings []*ring
}

// NewRings is the Factory of the topic ring module.
func NewRings(env Env) (Module, error) {
	r := &Rings{
		self:       env.Self,
		store:      env.Store,
		redundancy: env.Config.RingRedundancy,
		subset:     env.Config.RingSubset,
		staleAge:   env.Config.StaleAge,
		logger:     env.Logger,
	}

	for _, t := range env.Self.Topics {
		known, err := lru.New[profile.ID, struct{}](env.Config.RingKnownLimit)
		if err != nil {
			return nil, err
		}
		r.rings = append(r.rings, &ring{topic: t, known: known})
	}

	return r, nil
}

// Name implements the Module interface.
func (r *Rings) Name() string {
	return config.Rings
}

// Capacity implements the Module interface.
func (r *Rings) Capacity() int {
	return 2 * r.redundancy * len(r.rings)
}

// neighboursOf sorts members, local node included, and takes the K nodes on
// each side of the local node, wrapping around. Closest first, predecessor
// before successor.
func (r *Rings) neighboursOf(topic profile.Topic, members []profile.ID) []profile.ID {
	members = RingOrder(topic, append(members, r.self.ID))

	var pos int
	for i, id := range members {
		if id == r.self.ID {
			pos = i
			break
		}
	}

	n := len(members)
	seen := map[profile.ID]bool{r.self.ID: true}
	neighbours := []profile.ID{}
	for k := 1; k <= r.redundancy; k++ {
		for _, id := range []profile.ID{
			members[((pos-k)%n+n)%n],
			members[(pos+k)%n],
		} {
			if !seen[id] {
				seen[id] = true
				neighbours = append(neighbours, id)
			}
		}
	}

	return neighbours
}

// recompute derives the neighbours from the known members.
func (r *Rings) recompute(rg *ring) {
	rg.neighbours = r.neighboursOf(rg.topic, rg.known.Keys())
	r.pin(rg)
}

// absorb computes the neighbours over the known members and news. News are
// remembered when keep is true, neighbours always are.
func (r *Rings) absorb(rg *ring, news []profile.ID, keep bool) {
	members := rg.known.Keys()
	for _, id := range news {
		if !rg.known.Contains(id) {
			members = append(members, id)
		}
	}

	rg.neighbours = r.neighboursOf(rg.topic, members)

	if keep {
		for _, id := range news {
			rg.known.Add(id, struct{}{})
		}
	}
	r.pin(rg)
}

// pin makes the neighbours the most recently used members, so that the
// bounded knowledge of the ring never forgets them.
func (r *Rings) pin(rg *ring) {
	for _, id := range rg.neighbours {
		rg.known.Add(id, struct{}{})
	}
}

// Neighbours returns the ring neighbours of the local node for a topic,
// closest first, predecessor before successor.
func (r *Rings) Neighbours(topic profile.Topic) []profile.ID {
	r.RLock()
	defer r.RUnlock()

	for _, rg := range r.rings {
		if rg.topic == topic {
			return append([]profile.ID{}, rg.neighbours...)
		}
	}
	return nil
}

// Known returns the number of nodes known on the ring of a topic.
func (r *Rings) Known(topic profile.Topic) int {
	r.RLock()
	defer r.RUnlock()

	for _, rg := range r.rings {
		if rg.topic == topic {
			return rg.known.Len()
		}
	}
	return 0
}

// SelectTargets returns one neighbour per topic, rotating through the
// neighbours from one round to the next.
func (r *Rings) SelectTargets() []profile.ID {
	r.Lock()
	defer r.Unlock()

	if r.staleAge > 0 {
		r.evictStale()
	}
	r.populate()

	targets := []profile.ID{}
	chosen := make(map[profile.ID]bool)
	for _, rg := range r.rings {
		if len(rg.neighbours) == 0 {
			continue
		}
		t := rg.neighbours[rg.cursor%len(rg.neighbours)]
		rg.cursor++
		if !chosen[t] {
			chosen[t] = true
			targets = append(targets, t)
		}
	}

	return targets
}

func (r *Rings) evictStale() {
	for _, rg := range r.rings {
		changed := false
		for _, id := range rg.known.Keys() {
			age, ok := r.store.Age(id)
			if !ok || age > r.staleAge {
				rg.known.Remove(id)
				changed = true
			}
		}
		if changed {
			r.logger.WithField("topic", rg.topic).Debug("Evict stale ring members")
			r.recompute(rg)
		}
	}
}

// populate looks for ring members among every profile of the store, so that
// nodes heard of through other modules take their place on the rings.
func (r *Rings) populate() {
	news := make(map[*ring][]profile.ID)
	for _, p := range r.store.All() {
		if p.ID == r.self.ID || p.Address == "" {
			continue
		}
		if r.staleAge > 0 {
			if age, _ := r.store.Age(p.ID); age > r.staleAge {
				continue
			}
		}
		for _, rg := range r.rings {
			if p.Topics.Contains(rg.topic) {
				news[rg] = append(news[rg], p.ID)
			}
		}
	}

	for rg, ids := range news {
		r.absorb(rg, ids, false)
	}
}

// BuildOutgoing returns our own profile followed by the members of the rings
// we share with target, closest to target first.
func (r *Rings) BuildOutgoing(target profile.ID) []profile.Profile {
	r.RLock()
	defer r.RUnlock()

	return r.around(target)
}

// BuildReply implements the Module interface.
func (r *Rings) BuildReply(from profile.ID) []profile.Profile {
	r.RLock()
	defer r.RUnlock()

	return r.around(from)
}

func (r *Rings) around(target profile.ID) []profile.Profile {
	res := []profile.Profile{r.self}

	p, ok := r.store.Get(target)
	if !ok {
		return res
	}

	type candidate struct {
		id   profile.ID
		dist uint64
	}

	best := make(map[profile.ID]uint64)
	for _, rg := range r.rings {
		if !p.Topics.Contains(rg.topic) {
			continue
		}
		tk := RingKey(rg.topic, target)
		for _, id := range rg.known.Keys() {
			if id == target {
				continue
			}
			d := distance(RingKey(rg.topic, id), tk)
			if cur, ok := best[id]; !ok || d < cur {
				best[id] = d
			}
		}
	}

	cands := make([]candidate, 0, len(best))
	for id, d := range best {
		cands = append(cands, candidate{id, d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})

	ids := []profile.ID{}
	for _, c := range cands {
		if len(ids) >= r.subset-1 {
			break
		}
		ids = append(ids, c.id)
	}

	return append(res, profiles(r.store, ids)...)
}

// MergeIncoming inserts every candidate in the rings of the topics it
// subscribes to, and drops it from the rings of the topics it left.
// Candidates sharing no topic with the local node are ignored.
func (r *Rings) MergeIncoming(from profile.ID, candidates []profile.Profile) {
	r.Lock()
	defer r.Unlock()

	news := make(map[*ring][]profile.ID)
	left := make(map[*ring]bool)
	for _, cand := range candidates {
		if cand.ID == "" || cand.ID == r.self.ID {
			continue
		}
		for _, rg := range r.rings {
			if cand.Topics.Contains(rg.topic) {
				news[rg] = append(news[rg], cand.ID)
			} else if rg.known.Remove(cand.ID) {
				left[rg] = true
			}
		}
	}

	for _, rg := range r.rings {
		if ids, ok := news[rg]; ok {
			r.absorb(rg, ids, true)
		} else if left[rg] {
			r.recompute(rg)
		}
	}
}

// Abandon implements the Module interface. Nothing is staged by this module.
func (r *Rings) Abandon(target profile.ID) {}

// Remove implements the Module interface. The remaining nodes close the gap.
func (r *Rings) Remove(id profile.ID) {
	r.Lock()
	defer r.Unlock()

	for _, rg := range r.rings {
		if rg.known.Remove(id) {
			r.recompute(rg)
		}
	}
}

// View implements the Module interface.
func (r *Rings) View() []profile.ID {
	r.RLock()
	defer r.RUnlock()

	seen := make(map[profile.ID]bool)
	res := []profile.ID{}
	for _, rg := range r.rings {
		for _, id := range rg.neighbours {
			if !seen[id] {
				seen[id] = true
				res = append(res, id)
			}
		}
	}
	return sortIDs(res)
}
