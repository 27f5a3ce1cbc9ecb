// Package config defines the configuration for a PolderCast node.
//
// Regardless of how the overlay is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, a node relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the raw private key (cf. poldercast keygen).
//  profiles.json // (optional) a JSON file containing the seed profiles.
//  poldercast.toml // (optional) configuration file, overridden by flags.
//
// The configuration is immutable once the node is built. In particular the
// set of topics of the local node cannot change at runtime.
package config
