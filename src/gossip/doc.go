// Package gossip defines the Envelope exchanged between two nodes during a
// gossip exchange, and its encodings.
//
// An Envelope always carries the full profile of its sender, followed by one
// candidate list per selection module, keyed by the module name. A receiving
// node hands every list to the module of the same name and silently ignores
// lists addressed to modules it does not run.
//
// Envelopes travel in msgpack on the wire. A canonical JSON encoding is also
// available for logging and for the HTTP service.
package gossip
