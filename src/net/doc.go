// Package net implements the transports used by PolderCast nodes to exchange
// gossip envelopes.
//
// A Transport carries one kind of request: an exchange, where the initiator
// sends a gossip.Envelope and receives the envelope of the responder in
// return. The receiving side consumes requests from the channel returned by
// Consumer and answers them with RPC.Respond. There are two implementations:
//
// - Inmem: in-memory transport used for testing and simulations
//
// - TCP: communicating over plain TCP
//
// TCP
//
// The TCP transport is suitable when nodes are in the same local network, or
// when users are able to configure their connections appropriately to avoid NAT
// issues. Envelopes are framed in msgpack.
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes in
// the profile of the local node. If BindAddr is a local address not reachable
// by other peers, it is usefull to set AdvertiseAddr to the reachable public
// address.
//
// Every failure of an exchange is reported as a common.Transport error.
package net
