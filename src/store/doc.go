// Package store persists snapshots of the profile store across restarts.
//
// A snapshot is the set of profiles known to a node at the end of a gossip
// round. It is written every few rounds and read back at start-up to seed the
// selection modules, so that a restarted node does not depend on its static
// seed list alone. Two implementations are provided: an InmemStore used in
// tests and simulations, and a BadgerStore that writes to a badger database.
package store
