package handshake

import (
	"crypto/rand"

	"golang.org/x/crypto/ed25519"
)

// IdentityKeyPair is the long-lived, per-node Ed25519 signing keypair used
// to authenticate the client side of every handshake this node initiates.
type IdentityKeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

func GenerateIdentityKeyPair() (IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return IdentityKeyPair{}, err
	}
	return IdentityKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}
