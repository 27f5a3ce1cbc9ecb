package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/poldercast"
	"github.com/mosaicnetworks/poldercast/src/telemetry"
	"github.com/mosaicnetworks/poldercast/src/version"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a PolderCast node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runPolderCast,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runPolderCast(cmd *cobra.Command, args []string) error {
	telemetry.SetBuildInfo(version.Version)

	engine := poldercast.NewPolderCast(&_config.PolderCast)

	if err := engine.Init(); err != nil {
		_config.PolderCast.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Run(ctx)

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.PolderCast.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.PolderCast.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write the logs to this file")
	cmd.Flags().String("moniker", _config.PolderCast.Moniker, "Optional name")

	// Interests
	cmd.Flags().StringSlice("topics", _config.PolderCast.Topics, "Comma-separated list of subscribed topics")
	cmd.Flags().StringSlice("modules", _config.PolderCast.Modules, "Selection modules to run")

	// Network
	cmd.Flags().StringP("listen", "l", _config.PolderCast.BindAddr, "Listen IP:Port for poldercast node")
	cmd.Flags().StringP("advertise", "a", _config.PolderCast.AdvertiseAddr, "Advertise IP:Port for poldercast node")
	cmd.Flags().DurationP("timeout", "t", _config.PolderCast.ExchangeTimeout, "Exchange Timeout")
	cmd.Flags().Int("max-pool", _config.PolderCast.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.PolderCast.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.PolderCast.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.PolderCast.Store, "Save snapshots of known profiles in badgerDB")
	cmd.Flags().String("db", _config.PolderCast.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("snapshot-interval", _config.PolderCast.SnapshotInterval, "Number of rounds between snapshots")

	// Overlay
	cmd.Flags().Duration("heartbeat", _config.PolderCast.HeartbeatTimeout, "Time between gossip rounds")
	cmd.Flags().Bool("parallel", _config.PolderCast.Parallel, "Run the modules of a round concurrently")
	cmd.Flags().Int("stale-age", _config.PolderCast.StaleAge, "Rounds after which unrefreshed entries are evicted")
	cmd.Flags().Int("membership-capacity", _config.PolderCast.MembershipCapacity, "Size of the random membership view")
	cmd.Flags().Int("membership-subset", _config.PolderCast.MembershipSubset, "Profiles sent per random membership exchange")
	cmd.Flags().Int("proximity-capacity", _config.PolderCast.ProximityCapacity, "Size of the interest proximity view")
	cmd.Flags().Int("proximity-subset", _config.PolderCast.ProximitySubset, "Profiles sent per interest proximity exchange")
	cmd.Flags().Int("ring-redundancy", _config.PolderCast.RingRedundancy, "Predecessors and successors kept per topic ring")
	cmd.Flags().Int("ring-subset", _config.PolderCast.RingSubset, "Profiles sent per ring exchange")
	cmd.Flags().Int("ring-known-limit", _config.PolderCast.RingKnownLimit, "Members remembered per topic ring")
	cmd.Flags().Int("direct-capacity", _config.PolderCast.DirectCapacity, "Size of the direct connections view")
	cmd.Flags().Duration("quarantine", _config.PolderCast.QuarantineDuration, "Quarantine of a misbehaving node, per strike (0 disables it)")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.PolderCast.SetDataDir(_config.PolderCast.DataDir)

	if _config.LogFile != "" {
		addFileHook(_config.PolderCast.Logger().Logger, _config.LogFile)
	}

	logFields := logrus.Fields{
		"poldercast.DataDir":            _config.PolderCast.DataDir,
		"poldercast.BindAddr":           _config.PolderCast.BindAddr,
		"poldercast.AdvertiseAddr":      _config.PolderCast.AdvertiseAddr,
		"poldercast.ServiceAddr":        _config.PolderCast.ServiceAddr,
		"poldercast.NoService":          _config.PolderCast.NoService,
		"poldercast.MaxPool":            _config.PolderCast.MaxPool,
		"poldercast.Store":              _config.PolderCast.Store,
		"poldercast.LogLevel":           _config.PolderCast.LogLevel,
		"poldercast.Moniker":            _config.PolderCast.Moniker,
		"poldercast.Topics":             _config.PolderCast.LocalTopics(),
		"poldercast.Modules":            _config.PolderCast.Modules,
		"poldercast.HeartbeatTimeout":   _config.PolderCast.HeartbeatTimeout,
		"poldercast.ExchangeTimeout":    _config.PolderCast.ExchangeTimeout,
		"poldercast.Parallel":           _config.PolderCast.Parallel,
		"poldercast.StaleAge":           _config.PolderCast.StaleAge,
		"poldercast.MembershipCapacity": _config.PolderCast.MembershipCapacity,
		"poldercast.ProximityCapacity":  _config.PolderCast.ProximityCapacity,
		"poldercast.RingRedundancy":     _config.PolderCast.RingRedundancy,
		"LogFile":                       _config.LogFile,
	}

	if _config.PolderCast.Store {
		logFields["poldercast.DatabaseDir"] = _config.PolderCast.DatabaseDir
		logFields["poldercast.SnapshotInterval"] = _config.PolderCast.SnapshotInterval
	}

	_config.PolderCast.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/poldercast.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	viper.AddConfigPath(_config.PolderCast.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.PolderCast.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.PolderCast.Logger().Debugf("No config file found in: %s", _config.PolderCast.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addFileHook copies every log entry into path.
func addFileHook(logger *logrus.Logger, path string) {
	logger.Hooks.Add(lfshook.NewHook(
		path,
		&logrus.TextFormatter{},
	))
}
