// Package keys implements the node identities used throughout the overlay.
//
// Every node owns a secp256k1 key-pair. The node identifier that other nodes
// store in their profiles and exchange in gossip envelopes is the base58
// encoding of the compressed public key, which makes it opaque, unique and
// stable across sessions as long as the key file is kept in the data
// directory.
package keys
