package topology

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/gossip"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerConfiguration(t *testing.T) {
	conf := config.NewTestConfig(t)
	conf.ProximitySubset = conf.ProximityCapacity + 1

	_, err := NewManager(conf, profile.NewProfile("self", ""), profile.NewStore())
	require.Error(t, err)
	assert.True(t, common.Is(err, common.Configuration))

	conf = config.NewTestConfig(t)
	conf.Modules = []string{config.Cyclon, "scribe"}
	_, err = NewManager(conf, profile.NewProfile("self", ""), profile.NewStore())
	require.Error(t, err)
	assert.True(t, common.Is(err, common.UnknownModule))

	_, err = NewManager(config.NewTestConfig(t), profile.Profile{}, profile.NewStore())
	assert.True(t, common.Is(err, common.Configuration))
}

// wideModule is a custom module: a vicinity module with a large view under
// another name.
type wideModule struct {
	*Vicinity
}

func (w wideModule) Name() string { return "wide" }

func TestCustomModule(t *testing.T) {
	reg := NewRegistry()
	reg.Register("wide", func(env Env) (Module, error) {
		conf := *env.Config
		conf.ProximityCapacity = 100
		env.Config = &conf
		v, err := NewVicinity(env)
		if err != nil {
			return nil, err
		}
		return wideModule{v.(*Vicinity)}, nil
	})
	assert.Contains(t, reg.Names(), "wide")

	conf := config.NewTestConfig(t)
	conf.Modules = []string{"wide"}

	m := newTestManager(t, conf, profile.NewProfile("self", "", "A"), WithRegistry(reg))
	m.Bootstrap(nodeProfiles(3)...)

	view, err := m.ModuleView("wide")
	require.NoError(t, err)
	assert.Len(t, view, 3)

	_, err = m.ModuleView(config.Cyclon)
	assert.True(t, common.Is(err, common.UnknownModule))
}

func TestHandleExchangeSanitises(t *testing.T) {
	conf := config.NewTestConfig(t)
	conf.Modules = []string{config.Cyclon}

	self := profile.NewProfile("self", "addr-self", "A")
	m := newTestManager(t, conf, self,
		WithGossipFilter(func(p profile.Profile) bool { return p.ID != "banned" }))

	env := gossip.NewEnvelope(profile.NewProfile("peer", "addr-peer", "A"))
	env.Add(config.Cyclon,
		profile.NewProfile("peer", "addr-peer", "A"),
		self,
		profile.NewProfile("", "addr-nobody"),
		profile.NewProfile("x", "addr-x"),
		profile.NewProfile("x", "addr-x"),
		profile.NewProfile("banned", "addr-banned"),
	)
	env.Add("scribe", profile.NewProfile("y", "addr-y"))

	reply := m.HandleExchange(env)

	assert.Equal(t, self.ID, reply.Sender.ID)
	assert.Equal(t, []string{config.Cyclon}, reply.Modules(), "unknown modules are not answered")

	view, _ := m.ModuleView(config.Cyclon)
	assert.Equal(t, []profile.ID{"peer", "x"}, view)

	_, ok := m.Store().Get("banned")
	assert.False(t, ok)
	_, ok = m.Store().Get("y")
	assert.False(t, ok)

	assert.Equal(t, []profile.Peer{
		{ID: "peer", Address: "addr-peer"},
		{ID: "x", Address: "addr-x"},
	}, m.CurrentView())

	// an envelope from ourselves is ignored
	reply = m.HandleExchange(gossip.NewEnvelope(self))
	assert.Equal(t, 0, reply.Len())
}

func TestEvict(t *testing.T) {
	conf := config.NewTestConfig(t)
	m := newTestManager(t, conf, profile.NewProfile("self", "", "T"))

	nodes := nodeProfiles(4, "T")
	m.Bootstrap(nodes...)
	require.Len(t, m.CurrentView(), 4)

	m.Evict(nodes[0].ID)

	for _, name := range m.Modules() {
		view, _ := m.ModuleView(name)
		assert.NotContains(t, view, nodes[0].ID, name)
	}
	_, ok := m.Store().Get(nodes[0].ID)
	assert.False(t, ok)
	assert.Len(t, m.CurrentView(), 3)
}

func TestFailureIsolation(t *testing.T) {
	conf := config.NewTestConfig(t)
	conf.Modules = []string{config.Cyclon, config.Vicinity}

	a := newTestManager(t, conf, profile.NewProfile("a", "addr-a", "T"))
	b := newTestManager(t, conf, profile.NewProfile("b", "addr-b", "T"))

	pb := profile.NewProfile("b", "addr-b", "T")
	pc := profile.NewProfile("c", "addr-c", "T")
	pd := profile.NewProfile("d", "addr-d", "T")

	// a knows c (down) through cyclon only, b through vicinity only
	a.Store().Upsert(pb)
	a.Store().Upsert(pc)
	cyclon, _ := a.Module(config.Cyclon)
	cyclon.MergeIncoming("", []profile.Profile{pc})
	vicinity, _ := a.Module(config.Vicinity)
	vicinity.MergeIncoming("", []profile.Profile{pb})

	b.Store().Upsert(pd)
	bv, _ := b.Module(config.Vicinity)
	bv.MergeIncoming("", []profile.Profile{pd})

	r := newRelay()
	r.add(a)
	r.add(b)
	r.setDown("c", true)

	report := a.RunRound(context.Background(), r)

	require.Len(t, report.Exchanges, 2)
	assert.Equal(t, 1, report.Failed())
	for _, x := range report.Exchanges {
		if x.Module == config.Cyclon {
			assert.Equal(t, profile.ID("c"), x.Target)
			assert.True(t, common.Is(x.Err, common.Transport))
		} else {
			assert.NoError(t, x.Err)
		}
	}

	view, _ := a.ModuleView(config.Cyclon)
	assert.Empty(t, view, "failed target is not put back")

	view, _ = a.ModuleView(config.Vicinity)
	assert.Equal(t, []profile.ID{"b", "d"}, view, "vicinity learned d from b")

	assert.Equal(t, []profile.Peer{
		{ID: "b", Address: "addr-b"},
		{ID: "d", Address: "addr-d"},
	}, a.CurrentView())
	assert.Equal(t, report.View, a.CurrentView())
}

func TestCancelledRound(t *testing.T) {
	conf := config.NewTestConfig(t)
	a := newTestManager(t, conf, profile.NewProfile("a", "addr-a", "T"))
	b := newTestManager(t, conf, profile.NewProfile("b", "addr-b", "T"))
	a.Bootstrap(profile.NewProfile("b", "addr-b", "T"))

	r := newRelay()
	r.add(a)
	r.add(b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := a.CurrentView()
	report := a.RunRound(ctx, r)

	assert.Equal(t, len(report.Exchanges), report.Failed())
	assert.Equal(t, before, a.CurrentView())
	assert.Empty(t, b.CurrentView())
}

func TestCyclonLiveness(t *testing.T) {
	const n = 6

	conf := config.NewTestConfig(t)
	conf.Modules = []string{config.Cyclon}
	conf.MembershipCapacity = n - 1
	conf.MembershipSubset = 2
	conf.Parallel = false

	nodes := nodeProfiles(n, "T")
	r := newRelay()
	managers := []*Manager{}
	for _, p := range nodes {
		m := newTestManager(t, conf, p)
		m.Bootstrap(nodes...)
		r.add(m)
		managers = append(managers, m)
	}

	for round := 0; round < 20*n; round++ {
		for _, m := range managers {
			m.RunRound(context.Background(), r)
		}
	}

	for _, m := range managers {
		contacted := r.contacted(m.Self().ID)
		for _, p := range nodes {
			if p.ID == m.Self().ID {
				continue
			}
			assert.True(t, contacted[p.ID], "%s never contacted %s", m.Self().ID, p.ID)
		}
	}
}

func TestCyclonSkipsDeadTarget(t *testing.T) {
	conf := config.NewTestConfig(t)
	conf.Modules = []string{config.Cyclon}
	conf.StaleAge = 0

	a := newTestManager(t, conf, profile.NewProfile("a", "addr-a", "T"))
	b := newTestManager(t, conf, profile.NewProfile("b", "addr-b", "T"))

	// 0dead is older in tie-break order and never answers
	a.Bootstrap(profile.NewProfile("0dead", "addr-0dead", "T"), b.Self())

	r := newRelay()
	r.add(a)
	r.add(b)

	targets := make(map[profile.ID]int)
	for i := 0; i < 30; i++ {
		report := a.RunRound(context.Background(), r)
		for _, x := range report.Exchanges {
			targets[x.Target]++
		}
	}

	assert.Equal(t, 1, targets["0dead"], "dead node is contacted once")
	assert.Equal(t, 29, targets["b"], "live node is contacted every other round")
}

func TestSimulationInvariants(t *testing.T) {
	const n = 12

	conf := config.NewTestConfig(t)
	conf.MembershipCapacity = 4
	conf.MembershipSubset = 2
	conf.ProximityCapacity = 3
	conf.ProximitySubset = 2
	conf.RingRedundancy = 1
	conf.RingSubset = 3
	conf.RingKnownLimit = 4
	conf.StaleAge = 5

	topics := []profile.Topic{"A", "B", "C", "D"}
	rnd := rand.New(rand.NewSource(42))

	nodes := []profile.Profile{}
	for i := 0; i < n; i++ {
		id := profile.ID(fmt.Sprintf("node%02d", i))
		nodes = append(nodes, profile.NewProfile(id, "addr-"+string(id),
			topics[rnd.Intn(len(topics))], topics[rnd.Intn(len(topics))]))
	}

	r := newRelay()
	managers := []*Manager{}
	for i, p := range nodes {
		m := newTestManager(t, conf, p)
		// a chain of introductions is enough to connect everybody
		m.Bootstrap(nodes[(i+1)%n])
		r.add(m)
		managers = append(managers, m)
	}

	check := func() {
		for _, m := range managers {
			self := m.Self().ID
			for _, name := range m.Modules() {
				mod, _ := m.Module(name)
				view := mod.View()
				assert.LessOrEqual(t, len(view), mod.Capacity(), "%s %s", self, name)
				assert.NotContains(t, view, self, "%s %s", self, name)
			}
			for _, p := range m.CurrentView() {
				assert.NotEqual(t, self, p.ID)
			}
		}
	}

	for round := 0; round < 20; round++ {
		for _, m := range managers {
			m.RunRound(context.Background(), r)
		}
		check()
	}

	// every node sharing a topic with another ends up with a ring neighbour
	for _, m := range managers {
		self := m.Self()
		shares := false
		for _, p := range nodes {
			if p.ID != self.ID && self.Topics.Intersect(p.Topics) > 0 {
				shares = true
			}
		}
		view, _ := m.ModuleView(config.Rings)
		if shares {
			assert.NotEmpty(t, view, string(self.ID))
		}
	}
}

func TestTwoNodes(t *testing.T) {
	conf := config.NewTestConfig(t)

	a := newTestManager(t, conf, profile.NewProfile("a", "addr-a", "A"))
	b := newTestManager(t, conf, profile.NewProfile("b", "addr-b", "A", "B"))
	a.Bootstrap(b.Self())

	r := newRelay()
	r.add(a)
	r.add(b)

	for i := 0; i < 3; i++ {
		a.RunRound(context.Background(), r)
		b.RunRound(context.Background(), r)
	}

	assert.Equal(t, []profile.Peer{{ID: "b", Address: "addr-b"}}, a.CurrentView())
	assert.Equal(t, []profile.Peer{{ID: "a", Address: "addr-a"}}, b.CurrentView())
}
