package topology

import (
	"math/rand"
	"sync"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/sirupsen/logrus"
)

// Direct selects a random sample of the nodes that advertise no address.
// Those can only be reached through the connections they open to us, so
// Direct never gossips. It only contributes its view to the merged one.
type Direct struct {
	sync.RWMutex

	self     profile.Profile
	store    *profile.Store
	capacity int
	rand     *rand.Rand
	logger   *logrus.Entry

	view []profile.ID
}

// NewDirect is the Factory of the direct connections module.
func NewDirect(env Env) (Module, error) {
	return &Direct{
		self:     env.Self,
		store:    env.Store,
		capacity: env.Config.DirectCapacity,
		rand:     env.Rand,
		logger:   env.Logger,
	}, nil
}

// Name implements the Module interface.
func (d *Direct) Name() string {
	return config.Direct
}

// Capacity implements the Module interface.
func (d *Direct) Capacity() int {
	return d.capacity
}

// SelectTargets draws a new view from the store and returns no target.
func (d *Direct) SelectTargets() []profile.ID {
	d.Lock()
	defer d.Unlock()

	unreachable := []profile.ID{}
	for _, p := range d.store.All() {
		if p.Address == "" && p.ID != d.self.ID {
			unreachable = append(unreachable, p.ID)
		}
	}

	d.view = sortIDs(randomSubset(d.rand, unreachable, d.capacity))
	d.logger.WithField("view", len(d.view)).Debug("Refresh direct connections")

	return nil
}

// BuildOutgoing implements the Module interface.
func (d *Direct) BuildOutgoing(target profile.ID) []profile.Profile {
	return nil
}

// BuildReply implements the Module interface.
func (d *Direct) BuildReply(from profile.ID) []profile.Profile {
	return nil
}

// MergeIncoming implements the Module interface. The view only changes at the
// start of a round.
func (d *Direct) MergeIncoming(from profile.ID, candidates []profile.Profile) {}

// Abandon implements the Module interface.
func (d *Direct) Abandon(target profile.ID) {}

// Remove implements the Module interface.
func (d *Direct) Remove(id profile.ID) {
	d.Lock()
	defer d.Unlock()

	for i, v := range d.view {
		if v == id {
			d.view = append(d.view[:i], d.view[i+1:]...)
			return
		}
	}
}

// View implements the Module interface.
func (d *Direct) View() []profile.ID {
	d.RLock()
	defer d.RUnlock()

	return append([]profile.ID{}, d.view...)
}
