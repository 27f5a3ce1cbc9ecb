package net

import (
	"time"

	"github.com/sirupsen/logrus"
)

// NewTCPTransport returns a NetworkTransport over a TCPStreamLayer bound to
// bindAddr. See NewTCPStreamLayer for the meaning of advertise.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	stream, err := NewTCPStreamLayer(bindAddr, advertise)
	if err != nil {
		return nil, err
	}

	return NewNetworkTransport(stream, maxPool, timeout, logger), nil
}
