package topology

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/gossip"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/mosaicnetworks/poldercast/src/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Exchanger sends an envelope to a node and returns its reply.
// net.Transport implements it.
type Exchanger interface {
	Exchange(ctx context.Context, target profile.Profile, env *gossip.Envelope) (*gossip.Envelope, error)
}

// GossipFilter decides whether a received profile may enter the store.
type GossipFilter func(profile.Profile) bool

// ExchangeResult is the outcome of one module-target exchange.
type ExchangeResult struct {
	Module   string        `json:"module"`
	Target   profile.ID    `json:"target"`
	Received int           `json:"received"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// RoundReport summarises a gossip round.
type RoundReport struct {
	Round     int              `json:"round"`
	Exchanges []ExchangeResult `json:"exchanges"`
	View      []profile.Peer   `json:"view"`
	Pruned    []profile.ID     `json:"pruned"`
}

// Failed returns the number of abandoned exchanges.
func (r RoundReport) Failed() int {
	n := 0
	for _, x := range r.Exchanges {
		if x.Err != nil {
			n++
		}
	}
	return n
}

type slot struct {
	sync.Mutex
	name   string
	module Module
}

func (s *slot) view() []profile.ID {
	s.Lock()
	defer s.Unlock()

	return s.module.View()
}

// Manager runs the selection modules of the local node and maintains the
// merged view.
type Manager struct {
	conf  *config.Config
	self  profile.Profile
	store *profile.Store

	registry *Registry
	filter   GossipFilter
	seed     int64
	logger   *logrus.Entry
	clock    clock.Clock

	// nil when no node is ever quarantined
	policy     Policy
	recordLock sync.Mutex
	records    map[profile.ID]*Record

	// modules in configuration order
	slots  []*slot
	byName map[string]*slot

	// serialises rounds
	roundLock sync.Mutex
	round     int

	viewLock   sync.RWMutex
	view       []profile.Peer
	lastReport RoundReport
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry builds the modules from r instead of DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithGossipFilter drops the received profiles for which f returns false
// before they reach the store or any module.
func WithGossipFilter(f GossipFilter) Option {
	return func(m *Manager) { m.filter = f }
}

// WithSeed seeds the random sources of the modules.
func WithSeed(seed int64) Option {
	return func(m *Manager) { m.seed = seed }
}

// WithLogger overrides the logger taken from the configuration.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) { m.logger = l }
}

// WithPolicy overrides the policy derived from the quarantine duration of the
// configuration.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithClock sets the clock used to date strikes and quarantines.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager validates the configuration and builds the enabled modules.
func NewManager(conf *config.Config,
	self profile.Profile,
	store *profile.Store,
	opts ...Option) (*Manager, error) {

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if self.ID == "" {
		return nil, common.NewErr("self", common.Configuration, "empty node id")
	}

	m := &Manager{
		conf:     conf,
		self:     self,
		store:    store,
		registry: DefaultRegistry,
		seed:     time.Now().UnixNano(),
		clock:    clock.New(),
		byName:   make(map[string]*slot),
		records:  make(map[profile.ID]*Record),
	}
	if conf.QuarantineDuration > 0 {
		m.policy = DefaultPolicy{QuarantineDuration: conf.QuarantineDuration}
	}
	m.self.Topics = profile.NewTopics(self.Topics...)

	for _, o := range opts {
		o(m)
	}

	if m.logger == nil {
		m.logger = conf.Logger()
	}
	m.logger = m.logger.WithField("id", self.ID)

	for i, name := range conf.Modules {
		env := Env{
			Self:   m.self,
			Store:  store,
			Config: conf,
			Rand:   rand.New(rand.NewSource(m.seed + int64(i))),
			Logger: m.logger.WithField("module", name),
		}

		mod, err := m.registry.Build(name, env)
		if err != nil {
			return nil, err
		}

		s := &slot{name: name, module: mod}
		m.slots = append(m.slots, s)
		m.byName[name] = s
	}

	return m, nil
}

// Self returns the profile of the local node.
func (m *Manager) Self() profile.Profile {
	return m.self
}

// Store returns the profile store.
func (m *Manager) Store() *profile.Store {
	return m.store
}

// Modules returns the names of the enabled modules.
func (m *Manager) Modules() []string {
	res := make([]string, 0, len(m.slots))
	for _, s := range m.slots {
		res = append(res, s.name)
	}
	return res
}

// Module returns the named module. Calls on it are not serialised with the
// rounds and exchanges of the manager.
func (m *Manager) Module(name string) (Module, error) {
	s, ok := m.byName[name]
	if !ok {
		return nil, common.NewErr(name, common.UnknownModule, "module not enabled")
	}
	return s.module, nil
}

// ModuleView returns the view of the named module.
func (m *Manager) ModuleView(name string) ([]profile.ID, error) {
	s, ok := m.byName[name]
	if !ok {
		return nil, common.NewErr(name, common.UnknownModule, "module not enabled")
	}
	return s.view(), nil
}

// CurrentView returns the merged view, sorted by identifier.
func (m *Manager) CurrentView() []profile.Peer {
	m.viewLock.RLock()
	defer m.viewLock.RUnlock()

	return append([]profile.Peer{}, m.view...)
}

// LastReport returns the report of the last completed round.
func (m *Manager) LastReport() RoundReport {
	m.viewLock.RLock()
	defer m.viewLock.RUnlock()

	return m.lastReport
}

// RunRound runs one gossip round for every module. Failed exchanges are
// abandoned and reported. Only one round runs at a time.
func (m *Manager) RunRound(ctx context.Context, trans Exchanger) RoundReport {
	m.roundLock.Lock()
	defer m.roundLock.Unlock()

	m.round++
	telemetry.RoundsTotal.Inc()

	results := make([][]ExchangeResult, len(m.slots))

	if m.conf.Parallel {
		var g errgroup.Group
		for i, s := range m.slots {
			i, s := i, s
			g.Go(func() error {
				results[i] = m.runModule(ctx, s, trans)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, s := range m.slots {
			results[i] = m.runModule(ctx, s, trans)
		}
	}

	m.review()

	m.store.Tick()
	refs := m.references()
	pruned := m.store.Prune(m.conf.StaleAge, func(id profile.ID) bool { return refs[id] })
	for _, s := range m.slots {
		s.Lock()
		for _, id := range pruned {
			s.module.Remove(id)
		}
		s.Unlock()
	}

	report := RoundReport{
		Round:  m.round,
		Pruned: pruned,
	}
	for _, r := range results {
		report.Exchanges = append(report.Exchanges, r...)
	}

	report.View = m.recompute()

	m.viewLock.Lock()
	m.lastReport = report
	m.viewLock.Unlock()

	m.logger.WithFields(logrus.Fields{
		"round":     report.Round,
		"exchanges": len(report.Exchanges),
		"failed":    report.Failed(),
		"view":      len(report.View),
		"store":     m.store.Len(),
	}).Debug("RunRound")

	return report
}

func (m *Manager) runModule(ctx context.Context, s *slot, trans Exchanger) []ExchangeResult {
	s.Lock()
	targets := s.module.SelectTargets()
	s.Unlock()

	results := []ExchangeResult{}
	for _, t := range targets {
		results = append(results, m.exchange(ctx, s, t, trans))
	}
	return results
}

func (m *Manager) exchange(ctx context.Context, s *slot, target profile.ID, trans Exchanger) ExchangeResult {
	name := s.name
	res := ExchangeResult{Module: name, Target: target}
	start := time.Now()

	logger := m.logger.WithFields(logrus.Fields{
		"module": name,
		"target": target,
	})

	p, ok := m.store.Get(target)
	if !ok || p.Address == "" {
		// evicted between selection and exchange, or only reachable
		// through a connection it opened itself
		s.Lock()
		s.module.Remove(target)
		s.Unlock()
		reason := "unknown profile"
		if ok {
			reason = "no address"
		}
		res.Err = common.NewErr(string(target), common.Transport, reason)
		telemetry.ExchangesTotal.WithLabelValues(name, "abandoned").Inc()
		return res
	}

	s.Lock()
	out := s.module.BuildOutgoing(target)
	s.Unlock()

	env := gossip.NewEnvelope(m.self)
	env.Add(name, out...)

	ectx, cancel := context.WithTimeout(ctx, m.conf.ExchangeTimeout)
	reply, err := trans.Exchange(ectx, p, env)
	cancel()

	res.Duration = time.Since(start)
	telemetry.ExchangeDuration.WithLabelValues(name).Observe(res.Duration.Seconds())

	if err == nil && reply == nil {
		err = common.NewErr(string(target), common.Transport, "empty reply")
	}
	if err != nil {
		s.Lock()
		s.module.Abandon(target)
		s.Unlock()

		logger.WithField("error", err).Debug("Exchange failed")
		telemetry.ExchangesTotal.WithLabelValues(name, "abandoned").Inc()
		res.Err = err
		m.strike(target, CannotConnect)
		return res
	}

	if m.valid(reply.Sender) {
		m.store.Upsert(reply.Sender)
	}

	list, _ := reply.List(name)
	candidates, malformed := m.sanitize(name, list)
	res.Received = len(candidates)

	if malformed > 0 && m.strike(target, InvalidData) {
		s.Lock()
		s.module.Abandon(target)
		s.Unlock()

		telemetry.ExchangesTotal.WithLabelValues(name, "abandoned").Inc()
		res.Err = common.NewErr(string(target), common.Transport, "malformed reply")
		return res
	}

	s.Lock()
	s.module.MergeIncoming(target, candidates)
	s.Unlock()

	telemetry.ExchangesTotal.WithLabelValues(name, "ok").Inc()

	return res
}

// HandleExchange answers an exchange initiated by another node. Every list of
// the envelope is answered by the module of the same name, lists for modules
// that are not enabled are ignored.
func (m *Manager) HandleExchange(env *gossip.Envelope) *gossip.Envelope {
	reply := gossip.NewEnvelope(m.self)

	sender := env.Sender
	if sender.ID == "" || sender.ID == m.self.ID {
		m.logger.WithField("sender", sender.ID).Debug("Ignore exchange from invalid sender")
		return reply
	}

	telemetry.InboundTotal.Inc()

	if m.quarantined(sender.ID) {
		m.logger.WithField("sender", sender.ID).Debug("Ignore exchange from quarantined sender")
		return reply
	}

	if m.valid(sender) {
		m.store.Upsert(sender)
	}

	for _, name := range env.Modules() {
		s, ok := m.byName[name]
		if !ok {
			m.logger.WithField("module", name).Debug("Ignore list for unknown module")
			continue
		}

		list, _ := env.List(name)
		candidates, malformed := m.sanitize(name, list)
		if malformed > 0 && m.strike(sender.ID, InvalidData) {
			break
		}

		s.Lock()
		reply.Add(name, s.module.BuildReply(sender.ID)...)
		s.module.MergeIncoming(sender.ID, candidates)
		s.Unlock()
	}

	m.recompute()

	return reply
}

// Bootstrap feeds seed profiles to the store and to every module.
func (m *Manager) Bootstrap(seeds ...profile.Profile) {
	for _, s := range m.slots {
		candidates, _ := m.sanitize(s.name, seeds)
		s.Lock()
		s.module.MergeIncoming("", candidates)
		s.Unlock()
	}

	m.recompute()
}

// Evict removes a node from the store and from every module.
func (m *Manager) Evict(id profile.ID) {
	m.store.Remove(id)
	for _, s := range m.slots {
		s.Lock()
		s.module.Remove(id)
		s.Unlock()
	}

	m.recompute()
}

func (m *Manager) accept(p profile.Profile) bool {
	return m.filter == nil || m.filter(p)
}

// valid reports whether the sender of an envelope may enter the store.
func (m *Manager) valid(p profile.Profile) bool {
	return p.ID != "" && p.ID != m.self.ID && m.accept(p) && !m.quarantined(p.ID)
}

// sanitize drops the unusable candidates of a received list and upserts the
// others in the store. It also returns the number of malformed candidates,
// those with an empty or repeated identifier.
func (m *Manager) sanitize(module string, candidates []profile.Profile) ([]profile.Profile, int) {
	res := make([]profile.Profile, 0, len(candidates))
	seen := make(map[profile.ID]bool)
	malformed := 0

	for _, c := range candidates {
		reason := ""
		switch {
		case c.ID == "":
			reason = telemetry.ReasonEmptyID
			malformed++
		case c.ID == m.self.ID:
			reason = telemetry.ReasonSelf
		case seen[c.ID]:
			reason = telemetry.ReasonDuplicate
			malformed++
		case !m.accept(c):
			reason = telemetry.ReasonFiltered
		case m.quarantined(c.ID):
			reason = telemetry.ReasonQuarantined
		}

		if reason != "" {
			telemetry.DiscardedCandidates.WithLabelValues(module, reason).Inc()
			m.logger.WithFields(logrus.Fields{
				"module": module,
				"id":     c.ID,
				"reason": reason,
			}).Debug("Discard candidate")
			continue
		}

		seen[c.ID] = true
		c.Topics = profile.NewTopics(c.Topics...)
		m.store.Upsert(c)
		res = append(res, c)
	}

	return res, malformed
}

// references returns the identifiers held by at least one module view.
func (m *Manager) references() map[profile.ID]bool {
	refs := make(map[profile.ID]bool)
	for _, s := range m.slots {
		for _, id := range s.view() {
			refs[id] = true
		}
	}
	return refs
}

// recompute rebuilds the merged view from the module views.
func (m *Manager) recompute() []profile.Peer {
	ids := make(map[profile.ID]bool)
	for _, s := range m.slots {
		view := s.view()
		telemetry.ViewSize.WithLabelValues(s.name).Set(float64(len(view)))
		for _, id := range view {
			if id != m.self.ID {
				ids[id] = true
			}
		}
	}

	all := make([]profile.ID, 0, len(ids))
	for id := range ids {
		all = append(all, id)
	}

	view := []profile.Peer{}
	for _, p := range profiles(m.store, sortIDs(all)) {
		view = append(view, p.Peer())
	}

	telemetry.ViewSize.WithLabelValues("merged").Set(float64(len(view)))
	telemetry.StoreSize.Set(float64(m.store.Len()))

	m.viewLock.Lock()
	m.view = view
	m.viewLock.Unlock()

	return append([]profile.Peer{}, view...)
}
