// Package node implements the reactive component of a PolderCast node.
//
// This is the part of PolderCast that drives the gossip rounds of the topology
// manager and answers the exchanges initiated by other nodes. Node implements a
// small state machine with three states: Gossiping, Suspended and Shutdown.
//
// Gossip
//
// A control timer ticks once per heartbeat, with a random jitter so that the
// nodes of an overlay do not gossip in lockstep. On every tick, a Gossiping
// node runs one round of the topology manager: every selection module (random
// membership, interest proximity, topic rings) picks a target from its own
// view and exchanges a subset of profiles with it. Rounds are run one at a
// time, on the goroutine that called Run.
//
// Exchanges initiated by other nodes arrive through the Consumer channel of
// the transport. Each one is answered on its own goroutine, and the number of
// such goroutines is bounded. When the bound is reached, the exchange is
// rejected and the initiator treats it as a failed exchange.
//
// Suspend
//
// A Suspended node stops initiating rounds but keeps answering exchanges, so
// the other nodes can still learn about it and use it as a bridge.
//
// Snapshots
//
// When a ProfileStore is attached, the profiles known to the manager are
// saved every SnapshotInterval rounds, and once more on Shutdown. Init loads
// the last snapshot and feeds it to the selection modules, so a restarted node
// does not depend on its seeds alone.
package node
