package poldercast

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/crypto/keys"
	"github.com/mosaicnetworks/poldercast/src/net"
	"github.com/mosaicnetworks/poldercast/src/node"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/mosaicnetworks/poldercast/src/service"
	"github.com/mosaicnetworks/poldercast/src/store"
	"github.com/mosaicnetworks/poldercast/src/topology"
	"github.com/sirupsen/logrus"
)

// PolderCast is a node with its transport, store and service.
type PolderCast struct {
	Config    *config.Config
	Node      *node.Node
	Manager   *topology.Manager
	Transport net.Transport
	Store     store.ProfileStore
	Service   *service.Service

	seeds []profile.Profile
}

// NewPolderCast ...
func NewPolderCast(config *config.Config) *PolderCast {
	return &PolderCast{
		Config: config,
	}
}

func (p *PolderCast) initTransport() error {
	if p.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		p.Config.BindAddr,
		p.Config.AdvertiseAddr,
		p.Config.MaxPool,
		p.Config.ExchangeTimeout,
		p.Config.Logger(),
	)

	if err != nil {
		return err
	}

	p.Transport = transport

	return nil
}

func (p *PolderCast) initKey() error {
	if p.Config.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(p.Config.Keyfile())

	privKey, created, err := keyfile.ReadOrCreate()
	if err != nil {
		p.Config.Logger().WithError(err).Error("Cannot read or create private key")
		return err
	}

	if created {
		p.Config.Logger().WithField("id", keys.NodeID(&privKey.PublicKey)).Info("Created a new key")
	}

	p.Config.Key = privKey

	return nil
}

func (p *PolderCast) initSeeds() error {
	seeds, err := profile.NewJSONProfiles(p.Config.DataDir).Profiles()
	if err != nil {
		if os.IsNotExist(err) {
			p.Config.Logger().Debug("No profiles.json, starting without seeds")
			return nil
		}
		return err
	}

	p.seeds = seeds

	return nil
}

func (p *PolderCast) initStore() error {
	if !p.Config.Store {
		return nil
	}

	p.Config.Logger().WithField("path", p.Config.DatabaseDir).Debug("Opening profile store")

	badgerStore, err := store.NewBadgerStore(p.Config.DatabaseDir, p.Config.Logger())
	if err != nil {
		return err
	}

	p.Store = badgerStore

	return nil
}

func (p *PolderCast) initNode() error {
	self := SelfProfile(p.Config, keys.NodeID(&p.Config.Key.PublicKey), p.Transport.AdvertiseAddr())

	manager, err := topology.NewManager(p.Config, self, profile.NewStore())
	if err != nil {
		return err
	}

	p.Config.Logger().WithFields(logrus.Fields{
		"id":      self.ID,
		"address": self.Address,
		"topics":  self.Topics,
		"modules": manager.Modules(),
		"seeds":   len(p.seeds),
	}).Debug("PROFILE")

	manager.Bootstrap(p.seeds...)

	opts := []node.Option{}
	if p.Store != nil {
		opts = append(opts, node.WithProfileStore(p.Store))
	}

	p.Manager = manager
	p.Node = node.NewNode(p.Config, manager, p.Transport, opts...)

	if err := p.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (p *PolderCast) initService() error {
	if !p.Config.NoService {
		p.Service = service.NewService(p.Config.ServiceAddr, p.Node, p.Config.Logger())
	}
	return nil
}

// Init reads the key, the seeds and the snapshot, and builds the node.
func (p *PolderCast) Init() error {
	if err := p.Config.Validate(); err != nil {
		return err
	}

	if err := p.initKey(); err != nil {
		return err
	}

	if err := p.initSeeds(); err != nil {
		return err
	}

	if err := p.initStore(); err != nil {
		return err
	}

	if err := p.initTransport(); err != nil {
		p.closeStore()
		return err
	}

	if err := p.initNode(); err != nil {
		p.closeStore()
		return err
	}

	if err := p.initService(); err != nil {
		return err
	}

	return nil
}

func (p *PolderCast) closeStore() {
	if p.Store == nil {
		return
	}
	if err := p.Store.Close(); err != nil {
		p.Config.Logger().WithError(err).Error("Closing profile store")
	}
	p.Store = nil
}

// Run starts the service, if any, and runs the node until ctx is done.
func (p *PolderCast) Run(ctx context.Context) {
	if p.Service != nil && p.Config.ServiceAddr != "" {
		go p.Service.Serve()
	}

	p.Node.Run(ctx)
}

// SelfProfile returns the profile of the local node described by conf.
func SelfProfile(conf *config.Config, id, address string) profile.Profile {
	topics := []profile.Topic{}
	for _, t := range conf.LocalTopics() {
		topics = append(topics, profile.Topic(t))
	}
	return profile.NewProfile(profile.ID(id), address, topics...)
}

// Keygen creates a new key in datadir. It fails if a key already exists.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	conf := config.NewDefaultConfig()
	conf.DataDir = datadir

	keyfile := keys.NewSimpleKeyfile(conf.Keyfile())

	if _, err := keyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", datadir)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
