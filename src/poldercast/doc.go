// Package poldercast wires the components of a PolderCast node together.
//
// A node derives its identifier from a secp256k1 key kept in the data
// directory, gossips over a TCP transport, optionally persists snapshots of
// its profile store in a badger database, and optionally serves its views over
// HTTP. Seed profiles are read from profiles.json in the data directory.
//
// The Simulation type runs a whole overlay in memory, which is convenient to
// observe the construction of the views without a network.
package poldercast
