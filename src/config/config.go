package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"go.uber.org/multierr"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the default name of the optional configuration file
	// in the data directory, without extension.
	DefaultConfigFile = "poldercast"
)

// Names of the built-in selection modules.
const (
	Cyclon   = "cyclon"
	Vicinity = "vicinity"
	Rings    = "rings"

	// Direct is not enabled by default. It never gossips.
	Direct = "direct"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultBindAddr           = "127.0.0.1:1337"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultMembershipCapacity = 20
	DefaultMembershipSubset   = 8
	DefaultProximityCapacity  = 20
	DefaultProximitySubset    = 10
	DefaultRingRedundancy     = 2
	DefaultRingSubset         = 10
	DefaultRingKnownLimit     = 256
	DefaultStaleAge           = 20
	DefaultHeartbeatTimeout   = 1000 * time.Millisecond
	DefaultExchangeTimeout    = 500 * time.Millisecond
	DefaultMaxPool            = 2
	DefaultParallel           = true
	DefaultStore              = false
	DefaultSnapshotInterval   = 10
	DefaultQuarantine         = 30 * time.Minute
	DefaultDirectCapacity     = 20
)

// DefaultModules returns the names of the modules enabled by default.
func DefaultModules() []string {
	return []string{Cyclon, Vicinity, Rings}
}

// Config contains all the configuration properties of a PolderCast node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes. In some cases, there may be a routable address that cannot be
	// bound. Use AdvertiseAddr to advertise a different address to support
	// this.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes in our profile.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package.
	ServiceAddr string `mapstructure:"service-listen"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Topics is the set of topics the local node subscribes to. It is fixed
	// for the lifetime of the node.
	Topics []string `mapstructure:"topics"`

	// Modules lists the selection modules to run, by name.
	Modules []string `mapstructure:"modules"`

	// MembershipCapacity is the max number of entries in the random
	// membership view.
	MembershipCapacity int `mapstructure:"membership-capacity"`

	// MembershipSubset is the number of profiles sent in a random membership
	// exchange, including our own.
	MembershipSubset int `mapstructure:"membership-subset"`

	// ProximityCapacity is the max number of entries in the interest
	// proximity view.
	ProximityCapacity int `mapstructure:"proximity-capacity"`

	// ProximitySubset is the number of profiles sent in an interest proximity
	// exchange, including our own.
	ProximitySubset int `mapstructure:"proximity-subset"`

	// RingRedundancy is the number of predecessors and of successors kept per
	// topic ring.
	RingRedundancy int `mapstructure:"ring-redundancy"`

	// RingSubset is the max number of profiles sent in a ring exchange,
	// including our own.
	RingSubset int `mapstructure:"ring-subset"`

	// RingKnownLimit bounds the number of members remembered per topic ring.
	RingKnownLimit int `mapstructure:"ring-known-limit"`

	// DirectCapacity is the max number of entries in the view of the direct
	// connections module.
	DirectCapacity int `mapstructure:"direct-capacity"`

	// StaleAge is the number of rounds after which an entry that was not
	// refreshed is evicted from the module views. Zero disables it.
	StaleAge int `mapstructure:"stale-age"`

	// HeartbeatTimeout is the frequency of the gossip timer.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// ExchangeTimeout bounds a single request/response exchange with a peer.
	ExchangeTimeout time.Duration `mapstructure:"timeout"`

	// QuarantineDuration is how long a node is kept out of the views after
	// its first strike. Every further strike adds as much. Zero disables
	// quarantines.
	QuarantineDuration time.Duration `mapstructure:"quarantine"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// Parallel runs the selection modules of a round concurrently.
	Parallel bool `mapstructure:"parallel"`

	// Store activates persistant snapshots of the known profiles.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// SnapshotInterval is the number of rounds between two snapshots of the
	// profile store.
	SnapshotInterval int `mapstructure:"snapshot-interval"`

	// Key is the private key of the node. The node identifier is derived from
	// it.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		BindAddr:           DefaultBindAddr,
		ServiceAddr:        DefaultServiceAddr,
		Modules:            DefaultModules(),
		MembershipCapacity: DefaultMembershipCapacity,
		MembershipSubset:   DefaultMembershipSubset,
		ProximityCapacity:  DefaultProximityCapacity,
		ProximitySubset:    DefaultProximitySubset,
		RingRedundancy:     DefaultRingRedundancy,
		RingSubset:         DefaultRingSubset,
		RingKnownLimit:     DefaultRingKnownLimit,
		DirectCapacity:     DefaultDirectCapacity,
		StaleAge:           DefaultStaleAge,
		HeartbeatTimeout:   DefaultHeartbeatTimeout,
		ExchangeTimeout:    DefaultExchangeTimeout,
		QuarantineDuration: DefaultQuarantine,
		MaxPool:            DefaultMaxPool,
		Parallel:           DefaultParallel,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		SnapshotInterval:   DefaultSnapshotInterval,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.HeartbeatTimeout = 10 * time.Millisecond
	config.QuarantineDuration = 0
	config.logger = common.NewTestLogger(t)
	return config
}

// Validate checks the consistency of the configuration and returns every
// problem found, combined in a single error. Each problem is a
// common.Configuration error.
func (c *Config) Validate() error {
	var err error

	bad := func(field string, format string, args ...interface{}) {
		err = multierr.Append(err,
			common.NewErr(field, common.Configuration, fmt.Sprintf(format, args...)))
	}

	if len(c.Modules) == 0 {
		bad("modules", "at least one module must be enabled")
	}
	seen := make(map[string]bool)
	for _, m := range c.Modules {
		if seen[m] {
			bad("modules", "module %q enabled twice", m)
		}
		seen[m] = true
	}

	if c.MembershipCapacity < 1 {
		bad("membership-capacity", "must be at least 1, got %d", c.MembershipCapacity)
	}
	if c.MembershipSubset < 1 || c.MembershipSubset > c.MembershipCapacity {
		bad("membership-subset", "must be between 1 and %d, got %d",
			c.MembershipCapacity, c.MembershipSubset)
	}
	if c.ProximityCapacity < 1 {
		bad("proximity-capacity", "must be at least 1, got %d", c.ProximityCapacity)
	}
	if c.ProximitySubset < 1 || c.ProximitySubset > c.ProximityCapacity {
		bad("proximity-subset", "must be between 1 and %d, got %d",
			c.ProximityCapacity, c.ProximitySubset)
	}
	if c.RingRedundancy < 1 {
		bad("ring-redundancy", "must be at least 1, got %d", c.RingRedundancy)
	}
	if c.RingSubset < 1 {
		bad("ring-subset", "must be at least 1, got %d", c.RingSubset)
	}
	if c.RingKnownLimit < 2*c.RingRedundancy+1 {
		bad("ring-known-limit", "must be at least %d, got %d",
			2*c.RingRedundancy+1, c.RingKnownLimit)
	}
	if c.DirectCapacity < 1 {
		bad("direct-capacity", "must be at least 1, got %d", c.DirectCapacity)
	}
	if c.StaleAge < 0 {
		bad("stale-age", "must not be negative, got %d", c.StaleAge)
	}
	if c.HeartbeatTimeout <= 0 {
		bad("heartbeat", "must be positive, got %v", c.HeartbeatTimeout)
	}
	if c.ExchangeTimeout <= 0 {
		bad("timeout", "must be positive, got %v", c.ExchangeTimeout)
	}
	if c.QuarantineDuration < 0 {
		bad("quarantine", "must not be negative, got %v", c.QuarantineDuration)
	}
	if c.Store && c.SnapshotInterval < 1 {
		bad("snapshot-interval", "must be at least 1, got %d", c.SnapshotInterval)
	}

	return err
}

// LocalTopics returns the trimmed, non-empty topic names of the local node.
func (c *Config) LocalTopics() []string {
	res := make([]string, 0, len(c.Topics))
	for _, t := range c.Topics {
		// viper hands over "a,b" as a single element when read from a file
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				res = append(res, s)
			}
		}
	}
	return res
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "poldercast".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "poldercast")
}

// SetLogger overrides the logger used by Logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".PolderCast")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "PolderCast")
		} else {
			return filepath.Join(home, ".poldercast")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
