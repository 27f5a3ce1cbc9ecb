// Package topology implements the peer selection strategies of the overlay
// and the Manager that composes them.
//
// Three selection modules are built in:
//
//  cyclon   // random membership: oldest-first contact, swap of random subsets
//  vicinity // interest proximity: keeps the nodes sharing the most topics
//  rings    // topic rings: K predecessors and K successors per subscribed topic
//
// Each module maintains its own bounded view, made of node identifiers that
// refer to the profiles held by the shared profile.Store. Additional modules
// can be plugged in by registering a Factory with a Registry.
//
// The Manager drives one gossip round at a time. For every module it asks for
// the targets of the round, exchanges an envelope with each of them through an
// Exchanger (usually a net.Transport), and merges the reply back into the
// module. When every module is done, the merged view, the de-duplicated union
// of the module views, is recomputed. A failed exchange only abandons that
// module-target pair: it never aborts the round.
package topology
