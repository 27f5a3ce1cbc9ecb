package topology

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/gossip"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/stretchr/testify/require"
)

func testEnv(t testing.TB, conf *config.Config, self profile.Profile) Env {
	return Env{
		Self:   self,
		Store:  profile.NewStore(),
		Config: conf,
		Rand:   rand.New(rand.NewSource(1)),
		Logger: conf.Logger(),
	}
}

func buildModule(t testing.TB, f Factory, env Env) Module {
	mod, err := f(env)
	require.NoError(t, err)
	return mod
}

// seed puts the profiles in the store of env and returns them.
func seed(env Env, ps ...profile.Profile) []profile.Profile {
	for _, p := range ps {
		env.Store.Upsert(p)
	}
	return ps
}

func ids(ps ...profile.Profile) []profile.ID {
	res := []profile.ID{}
	for _, p := range ps {
		res = append(res, p.ID)
	}
	return sortIDs(res)
}

func nodeProfiles(n int, topics ...profile.Topic) []profile.Profile {
	res := []profile.Profile{}
	for i := 0; i < n; i++ {
		id := profile.ID(fmt.Sprintf("node%02d", i))
		res = append(res, profile.NewProfile(id, "addr-"+string(id), topics...))
	}
	return res
}

// relay is an in-process Exchanger connecting managers directly.
type relay struct {
	sync.Mutex
	nodes   map[profile.ID]*Manager
	down    map[profile.ID]bool
	targets map[profile.ID]map[profile.ID]bool
}

func newRelay() *relay {
	return &relay{
		nodes:   make(map[profile.ID]*Manager),
		down:    make(map[profile.ID]bool),
		targets: make(map[profile.ID]map[profile.ID]bool),
	}
}

func (r *relay) add(m *Manager) {
	r.Lock()
	defer r.Unlock()
	r.nodes[m.Self().ID] = m
}

func (r *relay) setDown(id profile.ID, down bool) {
	r.Lock()
	defer r.Unlock()
	r.down[id] = down
}

func (r *relay) Exchange(ctx context.Context, target profile.Profile, env *gossip.Envelope) (*gossip.Envelope, error) {
	r.Lock()
	if r.targets[env.Sender.ID] == nil {
		r.targets[env.Sender.ID] = make(map[profile.ID]bool)
	}
	r.targets[env.Sender.ID][target.ID] = true
	m, ok := r.nodes[target.ID]
	down := r.down[target.ID]
	r.Unlock()

	if !ok || down {
		return nil, common.NewErr(string(target.ID), common.Transport, "unreachable")
	}
	if err := ctx.Err(); err != nil {
		return nil, common.WrapErr(string(target.ID), common.Transport, err)
	}

	return m.HandleExchange(env), nil
}

func (r *relay) contacted(from profile.ID) map[profile.ID]bool {
	r.Lock()
	defer r.Unlock()
	res := make(map[profile.ID]bool)
	for id := range r.targets[from] {
		res[id] = true
	}
	return res
}

func newTestManager(t testing.TB, conf *config.Config, self profile.Profile, opts ...Option) *Manager {
	opts = append([]Option{WithSeed(int64(len(self.ID)))}, opts...)
	m, err := NewManager(conf, self, profile.NewStore(), opts...)
	require.NoError(t, err)
	return m
}
