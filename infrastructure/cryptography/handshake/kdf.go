package handshake

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sessionKeySize = 32 // 256 bits

var kdfInfo = []byte("swarm-session-key")

// deriveSessionKey derives the single symmetric SessionKey from the ECDH
// shared secret, salted with both sides' ephemeral public keys so the key is independent
// per connection even when the same long-lived identities reconnect.
func deriveSessionKey(sharedSecret, salt []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, sharedSecret, salt, kdfInfo)
	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// zeroize overwrites b in place. Used on ephemeral private keys and
// derived secrets immediately after they are no longer needed so a later
// heap scan can't recover them.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
