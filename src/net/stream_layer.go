package net

import (
	"context"
	"net"
)

// StreamLayer carries the connections of a NetworkTransport. It accepts the
// inbound exchanges and dials the outbound ones.
type StreamLayer interface {
	net.Listener

	// Dial opens a connection to address. It gives up when ctx is done.
	Dial(ctx context.Context, address string) (net.Conn, error)

	// AdvertiseAddr returns the address other nodes can dial to reach us. It
	// is the address published in our profile.
	AdvertiseAddr() string
}
