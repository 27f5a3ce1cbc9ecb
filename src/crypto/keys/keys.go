package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mr-tron/base58"
)

// privateKeyLen is the length of a serialized secp256k1 scalar.
const privateKeyLen = 32

var errEmptyID = errors.New("empty node id")

// Curve returns the secp256k1 curve from btcsuite.
func Curve() *btcec.KoblitzCurve {
	return btcec.S256()
}

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey(Curve())
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// DumpPrivateKey exports the D value of a private key, padded to 32 bytes.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey rebuilds a private key from the output of DumpPrivateKey.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != privateKeyLen {
		return nil, fmt.Errorf("invalid length, need %d bytes", privateKeyLen)
	}

	n := new(big.Int).SetBytes(d)
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("invalid private key, zero or negative")
	}
	if n.Cmp(Curve().N) >= 0 {
		return nil, fmt.Errorf("invalid private key, >=N")
	}

	priv, _ := btcec.PrivKeyFromBytes(Curve(), d)
	return priv.ToECDSA(), nil
}

// PublicKeyBytes returns the compressed form of the public key.
func PublicKeyBytes(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeCompressed()
}

// PublicKeyHex returns the compressed public key as uppercase hex with a 0X
// prefix.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return fmt.Sprintf("0X%X", PublicKeyBytes(pub))
}

// NodeID derives the textual node identifier of a public key.
func NodeID(pub *ecdsa.PublicKey) string {
	return base58.Encode(PublicKeyBytes(pub))
}

// ParseNodeID decodes a node identifier back into the public key it was
// derived from.
func ParseNodeID(id string) (*ecdsa.PublicKey, error) {
	if id == "" {
		return nil, errEmptyID
	}

	raw, err := base58.Decode(id)
	if err != nil {
		return nil, err
	}

	pub, err := btcec.ParsePubKey(raw, Curve())
	if err != nil {
		return nil, err
	}

	return pub.ToECDSA(), nil
}
