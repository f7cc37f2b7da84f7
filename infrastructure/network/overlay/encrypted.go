package overlay

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encrypted is the authenticated-encryption overlay a PeerConnection
// upgrades to after EnableEncryption, keyed by the handshake's session
// key. Read and Write directions use distinct sub-keys derived via HKDF
// from the single shared session key, with separate directional info
// strings, so the two directions never reuse a nonce sequence against the
// same key.
//
// Nonces are not sent on the wire: each direction keeps a monotonic
// counter instead, since a PeerConnection serializes all I/O for a given
// direction through its per-connection lock and TCP delivers in order.
type Encrypted struct {
	conn net.Conn

	sendAEAD  sendCipher
	recvAEAD  recvCipher
	sendNonce uint64
	recvNonce atomic.Uint64
}

type sendCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	NonceSize() int
	Overhead() int
}

type recvCipher interface {
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

const (
	infoClientToServer = "client-to-server"
	infoServerToClient = "server-to-client"
)

// NewEncrypted builds the encrypted overlay for one PeerConnection.
// isServer selects which directional sub-key is used for sending vs.
// receiving, so the two ends of the same connection never reuse a nonce
// sequence against the same key.
func NewEncrypted(conn net.Conn, sessionKey []byte, isServer bool) (*Encrypted, error) {
	sendInfo, recvInfo := infoClientToServer, infoServerToClient
	if isServer {
		sendInfo, recvInfo = infoServerToClient, infoClientToServer
	}

	sendKey, err := directionKey(sessionKey, sendInfo)
	if err != nil {
		return nil, err
	}
	recvKey, err := directionKey(sessionKey, recvInfo)
	if err != nil {
		return nil, err
	}

	sendAEAD, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return nil, fmt.Errorf("overlay: build send cipher: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return nil, fmt.Errorf("overlay: build recv cipher: %w", err)
	}

	return &Encrypted{conn: conn, sendAEAD: sendAEAD, recvAEAD: recvAEAD}, nil
}

func directionKey(sessionKey []byte, info string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, sessionKey, nil, []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("overlay: derive %s key: %w", info, err)
	}
	return key, nil
}

func (e *Encrypted) Write(plaintext []byte) (int, error) {
	nonce := make([]byte, e.sendAEAD.NonceSize())
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], e.sendNonce)
	e.sendNonce++

	sealed := e.sendAEAD.Seal(nil, nonce, plaintext, nil)

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(sealed)))
	if _, err := e.conn.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("overlay: write length prefix: %w", err)
	}
	if _, err := e.conn.Write(sealed); err != nil {
		return 0, fmt.Errorf("overlay: write ciphertext: %w", err)
	}
	return len(plaintext), nil
}

func (e *Encrypted) Read(buf []byte) (int, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(e.conn, hdr[:]); err != nil {
		return 0, fmt.Errorf("overlay: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int(n) > maxFrameLength {
		return 0, fmt.Errorf("overlay: frame exceeds limit: %d bytes", n)
	}

	sealed := make([]byte, n)
	if _, err := io.ReadFull(e.conn, sealed); err != nil {
		return 0, fmt.Errorf("overlay: read ciphertext: %w", err)
	}

	nonce := make([]byte, e.recvAEAD.NonceSize())
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], e.recvNonce.Add(1)-1)

	plaintext, err := e.recvAEAD.Open(nil, nonce, sealed, nil)
	if err != nil {
		return 0, fmt.Errorf("overlay: decrypt frame: %w", err)
	}
	if len(plaintext) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	copy(buf, plaintext)
	return len(plaintext), nil
}
