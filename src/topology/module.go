package topology

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/sirupsen/logrus"
)

// Module is a peer selection strategy. A Module owns a bounded view of node
// identifiers which never contains the local node.
//
// Calls for the same module are serialised by the Manager, so a Module only
// needs to guard the state read by View and Remove.
type Module interface {
	// Name identifies the module in envelopes and in the registry.
	Name() string

	// SelectTargets starts a round and returns the nodes to gossip with.
	SelectTargets() []profile.ID

	// BuildOutgoing returns the candidates to send to target. What was sent
	// is staged until MergeIncoming or Abandon is called for the same target.
	BuildOutgoing(target profile.ID) []profile.Profile

	// MergeIncoming merges the candidates received from a node. The merge is
	// applied as a whole.
	MergeIncoming(from profile.ID, candidates []profile.Profile)

	// BuildReply returns the candidates to answer an exchange initiated by
	// from. It is followed by MergeIncoming for the same node.
	BuildReply(from profile.ID) []profile.Profile

	// Abandon drops the state staged for a failed exchange with target.
	Abandon(target profile.ID)

	// Remove evicts a node from the module.
	Remove(id profile.ID)

	// View returns the identifiers of the current view, sorted.
	View() []profile.ID

	// Capacity is the max size of the view.
	Capacity() int
}

// Env is what a module is built from.
type Env struct {
	Self   profile.Profile
	Store  *profile.Store
	Config *config.Config
	Rand   *rand.Rand
	Logger *logrus.Entry
}

// Factory builds a module.
type Factory func(Env) (Module, error)

// Registry maps module names to factories.
type Registry struct {
	sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in modules.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	r.Register(config.Cyclon, NewCyclon)
	r.Register(config.Vicinity, NewVicinity)
	r.Register(config.Rings, NewRings)
	r.Register(config.Direct, NewDirect)
	return r
}

// Register adds or replaces the factory of the named module.
func (r *Registry) Register(name string, f Factory) {
	r.Lock()
	defer r.Unlock()
	r.factories[name] = f
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()

	res := make([]string, 0, len(r.factories))
	for n := range r.factories {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}

// Build creates the named module.
func (r *Registry) Build(name string, env Env) (Module, error) {
	r.RLock()
	f, ok := r.factories[name]
	r.RUnlock()

	if !ok {
		return nil, common.NewErr(name, common.UnknownModule,
			fmt.Sprintf("registered modules are %v", r.Names()))
	}

	return f(env)
}

// DefaultRegistry is the registry used when the Manager is not given one.
var DefaultRegistry = NewRegistry()

func sortIDs(ids []profile.ID) []profile.ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// profiles resolves identifiers against the store, skipping unknown ones.
func profiles(store *profile.Store, ids []profile.ID) []profile.Profile {
	res := make([]profile.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := store.Get(id); ok {
			res = append(res, p)
		}
	}
	return res
}

// randomSubset picks n identifiers uniformly without replacement. ids is
// sorted first so that the result only depends on the random source.
func randomSubset(r *rand.Rand, ids []profile.ID, n int) []profile.ID {
	if n <= 0 {
		return nil
	}
	sortIDs(ids)
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if n < len(ids) {
		ids = ids[:n]
	}
	return ids
}
