package net

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/gossip"
	"github.com/mosaicnetworks/poldercast/src/profile"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return uuid.NewString()
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		shutdownCh: make(chan struct{}),
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Exchange implements the Transport interface.
func (i *InmemTransport) Exchange(ctx context.Context, target profile.Profile, env *gossip.Envelope) (*gossip.Envelope, error) {
	i.RLock()
	peer, ok := i.peers[target.Address]
	i.RUnlock()

	if !ok {
		return nil, common.NewErr(target.Address, common.Transport, "failed to connect to peer")
	}

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{Command: env, RespChan: respCh}:
	case <-peer.shutdownCh:
		return nil, common.WrapErr(target.Address, common.Transport, ErrTransportShutdown)
	case <-ctx.Done():
		return nil, common.WrapErr(target.Address, common.Transport, ctx.Err())
	}

	// Wait for a response
	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, common.WrapErr(target.Address, common.Transport, resp.Error)
		}
		return resp.Response, nil
	case <-ctx.Done():
		return nil, common.WrapErr(target.Address, common.Transport, ctx.Err())
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	i.closeOnce.Do(func() { close(i.shutdownCh) })
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}
