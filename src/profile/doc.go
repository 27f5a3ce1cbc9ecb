// Package profile defines what a node knows about the other nodes of the
// overlay and implements the Store that holds this knowledge.
//
// A Profile carries a node identifier, an opaque address handle resolved by
// the transport, and the set of topics the node subscribes to. The Store is
// an arena keyed by node identifier: selection modules never copy profiles,
// they keep identifiers and look the profile up in the Store when they need
// its address or topics. One profile is therefore shared by every module that
// references it and updating it (new address, new topic set) is immediately
// visible to all of them.
//
// Every stored profile carries an age counter. The age is reset whenever
// fresh information about the node arrives (Upsert) and incremented by Tick,
// which the topology manager calls once per gossip round. Profiles that are
// both stale and no longer referenced by any module are garbage-collected
// with Prune.
//
// Upon starting up, a node may seed its Store from a profiles.json file in its
// data directory (cf. JSONProfiles).
package profile
