package net

import (
	"context"

	"github.com/mosaicnetworks/poldercast/src/gossip"
	"github.com/mosaicnetworks/poldercast/src/profile"
)

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Exchange sends an envelope to the node at target.Address and returns
	// its reply. It gives up when ctx is done.
	Exchange(ctx context.Context, target profile.Profile, env *gossip.Envelope) (*gossip.Envelope, error)

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
