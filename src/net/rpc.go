package net

import "github.com/mosaicnetworks/poldercast/src/gossip"

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response *gossip.Envelope
	Error    error
}

// RPC encapsulates an RPC request and provides a response mechanism.
type RPC struct {
	Command  *gossip.Envelope
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp *gossip.Envelope, err error) {
	r.RespChan <- RPCResponse{resp, err}
}
