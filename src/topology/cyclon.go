package topology

import (
	"math/rand"
	"sync"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/sirupsen/logrus"
)

// swap records the entries disclosed to a peer during an exchange. Their
// slots are the first to be overwritten by what the peer sends back.
type swap struct {
	sent []profile.ID
}

// Cyclon is the random membership module. Every entry carries an age local to
// the module, counting the rounds since the module last received it. Each
// round contacts the oldest entry and swaps a random subset of the view with
// it, so that no live node is ever forgotten.
type Cyclon struct {
	sync.RWMutex

	self     profile.Profile
	store    *profile.Store
	capacity int
	subset   int
	staleAge int
	rand     *rand.Rand
	logger   *logrus.Entry

	view    map[profile.ID]int
	pending map[profile.ID]*swap
	replies map[profile.ID]*swap
}

// NewCyclon is the Factory of the random membership module.
func NewCyclon(env Env) (Module, error) {
	return &Cyclon{
		self:     env.Self,
		store:    env.Store,
		capacity: env.Config.MembershipCapacity,
		subset:   env.Config.MembershipSubset,
		staleAge: env.Config.StaleAge,
		rand:     env.Rand,
		logger:   env.Logger,
		view:     make(map[profile.ID]int),
		pending:  make(map[profile.ID]*swap),
		replies:  make(map[profile.ID]*swap),
	}, nil
}

// Name implements the Module interface.
func (c *Cyclon) Name() string {
	return config.Cyclon
}

// Capacity implements the Module interface.
func (c *Cyclon) Capacity() int {
	return c.capacity
}

// SelectTargets ages every entry and returns the oldest one. Ties are broken
// by ascending identifier.
func (c *Cyclon) SelectTargets() []profile.ID {
	c.Lock()
	defer c.Unlock()

	for id := range c.view {
		c.view[id]++
	}

	if c.staleAge > 0 {
		for id, age := range c.view {
			if age > c.staleAge {
				c.logger.WithField("id", id).Debug("Evict stale membership entry")
				delete(c.view, id)
			}
		}
	}

	var target profile.ID
	oldest := -1
	for id, age := range c.view {
		if age > oldest || (age == oldest && id < target) {
			target = id
			oldest = age
		}
	}

	if oldest < 0 {
		return nil
	}

	return []profile.ID{target}
}

// BuildOutgoing removes the target from the view and returns our own profile
// and a random subset of the other entries. The target comes back only with
// its reply.
func (c *Cyclon) BuildOutgoing(target profile.ID) []profile.Profile {
	c.Lock()
	defer c.Unlock()

	delete(c.view, target)

	sent := c.sample(target)
	c.pending[target] = &swap{sent: sent}

	return append([]profile.Profile{c.self}, profiles(c.store, sent)...)
}

// BuildReply implements the Module interface.
func (c *Cyclon) BuildReply(from profile.ID) []profile.Profile {
	c.Lock()
	defer c.Unlock()

	sent := c.sample(from)
	c.replies[from] = &swap{sent: sent}

	return append([]profile.Profile{c.self}, profiles(c.store, sent)...)
}

func (c *Cyclon) sample(exclude profile.ID) []profile.ID {
	others := make([]profile.ID, 0, len(c.view))
	for id := range c.view {
		if id != exclude {
			others = append(others, id)
		}
	}
	return randomSubset(c.rand, others, c.subset-1)
}

// MergeIncoming inserts the received entries and resets the age of those
// already in the view. When the view is full, the slots of the entries we
// sent are overwritten first, then the oldest entries are evicted. An entry
// received in this merge is never evicted by it.
func (c *Cyclon) MergeIncoming(from profile.ID, candidates []profile.Profile) {
	c.Lock()
	defer c.Unlock()

	s, ok := c.replies[from]
	if ok {
		delete(c.replies, from)
	} else if s, ok = c.pending[from]; ok {
		delete(c.pending, from)
	}

	var sent []profile.ID
	if s != nil {
		sent = s.sent
	}

	inserted := make(map[profile.ID]bool)

	for _, cand := range candidates {
		if cand.ID == "" || cand.ID == c.self.ID {
			continue
		}

		if _, ok := c.view[cand.ID]; ok {
			c.view[cand.ID] = 0
			inserted[cand.ID] = true
			continue
		}

		if len(c.view) >= c.capacity {
			victim, ok := c.victim(&sent, inserted)
			if !ok {
				c.logger.WithField("id", cand.ID).Debug("Membership view full")
				continue
			}
			delete(c.view, victim)
		}

		c.view[cand.ID] = 0
		inserted[cand.ID] = true
	}
}

// victim pops the next sent entry still in the view, or else returns the
// oldest entry not inserted by the current merge.
func (c *Cyclon) victim(sent *[]profile.ID, inserted map[profile.ID]bool) (profile.ID, bool) {
	for len(*sent) > 0 {
		id := (*sent)[0]
		*sent = (*sent)[1:]
		if _, ok := c.view[id]; ok && !inserted[id] {
			return id, true
		}
	}

	var victim profile.ID
	oldest := -1
	for id, age := range c.view {
		if inserted[id] {
			continue
		}
		if age > oldest || (age == oldest && id < victim) {
			victim = id
			oldest = age
		}
	}

	return victim, oldest >= 0
}

// Abandon implements the Module interface. The target is not put back in the
// view.
func (c *Cyclon) Abandon(target profile.ID) {
	c.Lock()
	defer c.Unlock()

	delete(c.pending, target)
}

// Remove implements the Module interface.
func (c *Cyclon) Remove(id profile.ID) {
	c.Lock()
	defer c.Unlock()

	delete(c.view, id)
	delete(c.pending, id)
}

// View implements the Module interface.
func (c *Cyclon) View() []profile.ID {
	c.RLock()
	defer c.RUnlock()

	res := make([]profile.ID, 0, len(c.view))
	for id := range c.view {
		res = append(res, id)
	}
	return sortIDs(res)
}

// Age returns the local age of an entry.
func (c *Cyclon) Age(id profile.ID) (int, bool) {
	c.RLock()
	defer c.RUnlock()

	age, ok := c.view[id]
	return age, ok
}
