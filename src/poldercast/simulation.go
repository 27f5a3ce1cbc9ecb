package poldercast

import (
	"context"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/crypto/keys"
	"github.com/mosaicnetworks/poldercast/src/net"
	"github.com/mosaicnetworks/poldercast/src/node"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/mosaicnetworks/poldercast/src/topology"
)

// Simulation is an overlay of nodes connected by in-memory transports.
type Simulation struct {
	Nodes []*node.Node

	transports []*net.InmemTransport
}

// NewSimulation creates one node per entry of topics, each subscribing to the
// given topics, with a copy of base as configuration. Every node is seeded
// with the profile of the next one, so the seed graph is a single cycle.
func NewSimulation(base *config.Config, topics [][]string) (*Simulation, error) {
	if len(topics) < 2 {
		return nil, fmt.Errorf("a simulation needs at least two nodes")
	}

	sim := &Simulation{}
	selves := []profile.Profile{}
	managers := []*topology.Manager{}

	for i, ts := range topics {
		conf := *base
		conf.Topics = ts
		conf.Moniker = fmt.Sprintf("node-%02d", i)
		conf.NoService = true
		conf.Store = false

		key, err := keys.GenerateKey()
		if err != nil {
			return nil, err
		}
		conf.Key = key

		addr, trans := net.NewInmemTransport("")
		self := SelfProfile(&conf, keys.NodeID(&key.PublicKey), addr)

		manager, err := topology.NewManager(&conf, self, profile.NewStore())
		if err != nil {
			return nil, err
		}

		sim.transports = append(sim.transports, trans)
		sim.Nodes = append(sim.Nodes, node.NewNode(&conf, manager, trans))
		selves = append(selves, self)
		managers = append(managers, manager)
	}

	for _, a := range sim.transports {
		for _, b := range sim.transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}

	for i, m := range managers {
		m.Bootstrap(selves[(i+1)%len(selves)])
	}

	return sim, nil
}

// Run runs every node until ctx is done.
func (s *Simulation) Run(ctx context.Context) {
	for _, n := range s.Nodes {
		n.RunAsync(ctx)
	}
	<-ctx.Done()
	s.Shutdown()
}

// Shutdown stops every node.
func (s *Simulation) Shutdown() {
	for _, n := range s.Nodes {
		n.Shutdown()
	}
}

// Topics returns the topics subscribed by at least one node, sorted.
func (s *Simulation) Topics() []profile.Topic {
	set := make(map[profile.Topic]bool)
	for _, n := range s.Nodes {
		for _, t := range n.Manager().Self().Topics {
			set[t] = true
		}
	}

	res := make([]profile.Topic, 0, len(set))
	for t := range set {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res
}

// TopicConnected reports whether the subscribers of topic form a single
// connected component of the neighbourhoods of the ring of topic, ignoring
// edge directions. The other rings are not considered.
func (s *Simulation) TopicConnected(topic profile.Topic) bool {
	subscribers := make(map[profile.ID]bool)
	for _, n := range s.Nodes {
		if self := n.Manager().Self(); self.Topics.Contains(topic) {
			subscribers[self.ID] = true
		}
	}

	edges := make(map[profile.ID][]profile.ID)
	for _, n := range s.Nodes {
		self := n.Manager().Self()
		if !subscribers[self.ID] {
			continue
		}

		mod, err := n.Manager().Module(config.Rings)
		if err != nil {
			return false
		}
		rings, ok := mod.(*topology.Rings)
		if !ok {
			return false
		}

		for _, id := range rings.Neighbours(topic) {
			if subscribers[id] {
				edges[self.ID] = append(edges[self.ID], id)
				edges[id] = append(edges[id], self.ID)
			}
		}
	}

	var start profile.ID
	for id := range subscribers {
		start = id
		break
	}

	seen := map[profile.ID]bool{start: true}
	queue := []profile.ID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range edges[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	return len(seen) == len(subscribers)
}
