package node

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/net"
	"github.com/mosaicnetworks/poldercast/src/store"
	"github.com/mosaicnetworks/poldercast/src/topology"
	"github.com/sirupsen/logrus"
)

var errBusy = errors.New("too many concurrent exchanges")

// Node runs the gossip rounds of a Manager over a Transport, and answers the
// exchanges initiated by other nodes.
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	manager *topology.Manager

	trans net.Transport
	netCh <-chan net.RPC

	store     store.ProfileStore
	storeLock sync.Mutex

	clock        clock.Clock
	controlTimer *ControlTimer

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	cancel       context.CancelFunc
	runDone      chan struct{}
	cancelLock   sync.Mutex

	start     time.Time
	statsLock sync.Mutex
	rounds    int
	failed    int
}

// Option configures a Node.
type Option func(*Node)

// WithProfileStore attaches a snapshot store. The known profiles are saved
// every conf.SnapshotInterval rounds, and on shutdown.
func WithProfileStore(s store.ProfileStore) Option {
	return func(n *Node) { n.store = s }
}

// WithClock drives the gossip timer with clk instead of the wall clock. The
// timer is not randomised in that case.
func WithClock(clk clock.Clock) Option {
	return func(n *Node) {
		n.clock = clk
		n.controlTimer = NewClockControlTimer(clk)
	}
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *config.Config,
	manager *topology.Manager,
	trans net.Transport,
	opts ...Option) *Node {

	node := &Node{
		conf:       conf,
		logger:     conf.Logger().WithField("this_id", manager.Self().ID),
		manager:    manager,
		trans:      trans,
		netCh:      trans.Consumer(),
		shutdownCh: make(chan struct{}),
		clock:      clock.New(),
	}

	for _, o := range opts {
		o(node)
	}

	if node.controlTimer == nil {
		node.controlTimer = NewRandomControlTimer(node.clock)
	}

	node.start = node.clock.Now()

	return node
}

// Init restores the last snapshot of the profile store, if any, and feeds it
// to the selection modules.
func (n *Node) Init() error {
	if n.store == nil {
		return nil
	}

	n.storeLock.Lock()
	profiles, err := n.store.LoadProfiles()
	n.storeLock.Unlock()
	if err != nil {
		n.logger.WithError(err).Error("Loading snapshot")
		return err
	}

	n.logger.WithField("profiles", len(profiles)).Debug("Restore snapshot")

	n.manager.Bootstrap(profiles...)

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync(ctx context.Context) {
	go n.Run(ctx)
}

// Run invokes the main loop of the node. Gossip rounds are run one at a time
// on the calling goroutine, inbound exchanges are answered in the background.
// Run returns when ctx is done or the node is shut down.
func (n *Node) Run(ctx context.Context) {
	if n.getState() == Shutdown {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})

	n.cancelLock.Lock()
	n.cancel = cancel
	n.runDone = done
	n.cancelLock.Unlock()

	go n.trans.Listen()

	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	n.wg.Add(1)
	go n.doBackgroundWork()

	for {
		select {
		case <-n.controlTimer.Ticks():
			if n.getState() == Gossiping {
				n.gossip(ctx)
			}
			n.controlTimer.Reset(n.conf.HeartbeatTimeout)
		case <-ctx.Done():
			close(done)
			n.Shutdown()
			return
		case <-n.shutdownCh:
			close(done)
			return
		}
	}
}

func (n *Node) doBackgroundWork() {
	defer n.wg.Done()

	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) processRPC(rpc net.RPC) {
	if rpc.Command == nil {
		rpc.Respond(nil, errors.New("empty envelope"))
		return
	}

	ok := n.goFunc(func() {
		n.logger.WithField("from", rpc.Command.Sender.ID).Debug("Processing RPC")
		rpc.Respond(n.manager.HandleExchange(rpc.Command), nil)
	})

	if !ok {
		n.logger.WithField("from", rpc.Command.Sender.ID).Warn("Dropping RPC")
		rpc.Respond(nil, errBusy)
	}
}

// gossip runs one round of every selection module and takes a snapshot of the
// profile store when it is due.
func (n *Node) gossip(ctx context.Context) {
	report := n.manager.RunRound(ctx, n.trans)

	n.statsLock.Lock()
	n.rounds++
	n.failed += report.Failed()
	rounds := n.rounds
	n.statsLock.Unlock()

	if n.conf.SnapshotInterval > 0 && rounds%n.conf.SnapshotInterval == 0 {
		if err := n.snapshot(); err != nil {
			n.logger.WithError(err).Error("Saving snapshot")
		}
	}

	n.logStats()
}

func (n *Node) snapshot() error {
	n.storeLock.Lock()
	defer n.storeLock.Unlock()

	if n.store == nil {
		return nil
	}

	return n.store.SaveProfiles(n.manager.Store().All())
}

// Suspend stops initiating gossip rounds. The node keeps answering the
// exchanges of other nodes.
func (n *Node) Suspend() {
	if n.getState() == Gossiping {
		n.logger.Debug("Suspend")
		n.setState(Suspended)
	}
}

// Resume undoes Suspend.
func (n *Node) Resume() {
	if n.getState() == Suspended {
		n.logger.Debug("Resume")
		n.setState(Gossiping)
	}
}

// Shutdown stops the gossip loop and the background routines, closes the
// transport, and saves a last snapshot before closing the profile store.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		n.cancelLock.Lock()
		if n.cancel != nil {
			n.cancel()
		}
		done := n.runDone
		n.cancelLock.Unlock()

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.controlTimer.Shutdown()

		if done != nil {
			<-done
		}

		//the transport is closed once the inbound exchanges are answered
		n.waitRoutines()

		n.trans.Close()

		if err := n.snapshot(); err != nil {
			n.logger.WithError(err).Error("Saving snapshot")
		}

		n.storeLock.Lock()
		if n.store != nil {
			if err := n.store.Close(); err != nil {
				n.logger.WithError(err).Error("Closing profile store")
			}
			n.store = nil
		}
		n.storeLock.Unlock()
	})
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.statsLock.Lock()
	rounds := n.rounds
	failed := n.failed
	n.statsLock.Unlock()

	var roundsPerSecond float64
	if elapsed := n.clock.Since(n.start); elapsed > 0 {
		roundsPerSecond = float64(rounds) / elapsed.Seconds()
	}

	self := n.manager.Self()

	s := map[string]string{
		"id":                string(self.ID),
		"moniker":           n.conf.Moniker,
		"address":           self.Address,
		"topics":            strings.Join(n.conf.LocalTopics(), ","),
		"state":             n.getState().String(),
		"rounds":            strconv.Itoa(rounds),
		"failed_exchanges":  strconv.Itoa(failed),
		"rounds_per_second": strconv.FormatFloat(roundsPerSecond, 'f', 2, 64),
		"num_peers":         strconv.Itoa(len(n.manager.CurrentView())),
		"known_profiles":    strconv.Itoa(n.manager.Store().Len()),
		"quarantined":       strconv.Itoa(len(n.manager.Quarantined())),
	}

	for _, name := range n.manager.Modules() {
		view, err := n.manager.ModuleView(name)
		if err == nil {
			s[name+"_view"] = strconv.Itoa(len(view))
		}
	}

	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}

	n.logger.WithFields(fields).Debug("Stats")
}

// GetState returns the state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// Manager returns the topology manager run by the node.
func (n *Node) Manager() *topology.Manager {
	return n.manager
}

// Rounds returns the number of gossip rounds run so far.
func (n *Node) Rounds() int {
	n.statsLock.Lock()
	defer n.statsLock.Unlock()

	return n.rounds
}
