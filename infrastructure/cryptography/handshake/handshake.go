package handshake

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/ed25519"

	"github.com/nordicnode/swarm/application"
)

// SecureHandshake implements application.Handshake: ephemeral-ECDH key
// agreement authenticated, client-side, by an Ed25519 identity signature.
// The server response carries no identity signature of its own; trust
// enforcement for the server's identity, and for an unrecognized client
// key, is left to the connection pool and its caller rather than failed
// hard inside the handshake.
type SecureHandshake struct {
	identity    IdentityKeyPair
	trustedKeys map[string][]byte
	logger      application.Logger
}

func NewSecureHandshake(identity IdentityKeyPair, trustedKeys map[string][]byte, logger application.Logger) *SecureHandshake {
	return &SecureHandshake{
		identity:    identity,
		trustedKeys: trustedKeys,
		logger:      logger,
	}
}

type clientHelloFields struct {
	peerID          string
	deviceName      string
	ephemeralPublic []byte
	identityPublic  []byte
	signature       []byte
}

func (h *SecureHandshake) ServerSideHandshake(ctx context.Context, conn net.Conn) (application.HandshakeResult, error) {
	fields, err := h.readClientHello(ctx, conn)
	if err != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	if !ed25519.Verify(fields.identityPublic, signedMessage(fields.peerID, fields.ephemeralPublic), fields.signature) {
		h.writeFailure(ctx, conn, codeInvalidSig)
		return application.HandshakeResult{}, ErrInvalidSignature
	}

	isTrusted := h.isTrustedPeer(fields.peerID, fields.identityPublic)
	if !isTrusted {
		h.logger.Printf("handshake: peer %q is not in the trusted-keys table or its key does not match", fields.peerID)
	}

	serverPrivate, serverPublic, genErr := newEphemeralKeyPair()
	if genErr != nil {
		h.writeFailure(ctx, conn, codeGenericError)
		return application.HandshakeResult{}, fmt.Errorf("%w: generate server ephemeral key: %v", ErrProtocol, genErr)
	}
	defer zeroize(serverPrivate)

	sharedSecret, ecdhErr := curve25519.X25519(serverPrivate, fields.ephemeralPublic)
	if ecdhErr != nil {
		h.writeFailure(ctx, conn, codeGenericError)
		return application.HandshakeResult{}, fmt.Errorf("%w: compute shared secret: %v", ErrProtocol, ecdhErr)
	}
	defer zeroize(sharedSecret)

	if err := h.writeSuccess(ctx, conn, serverPublic); err != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: write server hello: %v", ErrProtocol, err)
	}

	sessionKey, deriveErr := deriveSessionKey(sharedSecret, handshakeSalt(fields.ephemeralPublic, serverPublic))
	if deriveErr != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: derive session key: %v", ErrProtocol, deriveErr)
	}

	return application.HandshakeResult{
		PeerID:     fields.peerID,
		PeerName:   fields.deviceName,
		IsTrusted:  isTrusted,
		SessionKey: sessionKey,
	}, nil
}

func (h *SecureHandshake) ClientSideHandshake(ctx context.Context, conn net.Conn, localPeerID, deviceName string) (application.HandshakeResult, error) {
	clientPrivate, clientPublic, genErr := newEphemeralKeyPair()
	if genErr != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: generate client ephemeral key: %v", ErrProtocol, genErr)
	}
	defer zeroize(clientPrivate)

	signature := ed25519.Sign(h.identity.PrivateKey, signedMessage(localPeerID, clientPublic))

	if err := h.writeClientHello(ctx, conn, localPeerID, deviceName, clientPublic, signature); err != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: write client hello: %v", ErrProtocol, err)
	}

	status, err := readString(ctx, conn)
	if err != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: read server response: %v", ErrProtocol, err)
	}

	if status != handshakeOK {
		if code, ok := strings.CutPrefix(status, handshakeFailedPfx); ok && code == codeInvalidSig {
			return application.HandshakeResult{}, ErrInvalidSignature
		}
		return application.HandshakeResult{}, ErrServerRejected
	}

	serverPublic, err := readBytes(ctx, conn)
	if err != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: read server ephemeral key: %v", ErrProtocol, err)
	}

	sharedSecret, ecdhErr := curve25519.X25519(clientPrivate, serverPublic)
	if ecdhErr != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: compute shared secret: %v", ErrProtocol, ecdhErr)
	}
	defer zeroize(sharedSecret)

	sessionKey, deriveErr := deriveSessionKey(sharedSecret, handshakeSalt(clientPublic, serverPublic))
	if deriveErr != nil {
		return application.HandshakeResult{}, fmt.Errorf("%w: derive session key: %v", ErrProtocol, deriveErr)
	}

	return application.HandshakeResult{
		PeerID:     localPeerID,
		PeerName:   deviceName,
		SessionKey: sessionKey,
	}, nil
}

func (h *SecureHandshake) isTrustedPeer(peerID string, presented []byte) bool {
	trusted, ok := h.trustedKeys[peerID]
	return ok && bytes.Equal(trusted, presented)
}

func (h *SecureHandshake) readClientHello(ctx context.Context, conn net.Conn) (clientHelloFields, error) {
	magic, err := readString(ctx, conn)
	if err != nil {
		return clientHelloFields{}, err
	}
	if magic != header {
		return clientHelloFields{}, fmt.Errorf("unexpected handshake header %q", magic)
	}

	peerID, err := readString(ctx, conn)
	if err != nil {
		return clientHelloFields{}, err
	}
	deviceName, err := readString(ctx, conn)
	if err != nil {
		return clientHelloFields{}, err
	}
	ephemeralPublic, err := readBytes(ctx, conn)
	if err != nil {
		return clientHelloFields{}, err
	}
	identityPublic, err := readBytes(ctx, conn)
	if err != nil {
		return clientHelloFields{}, err
	}
	signature, err := readBytes(ctx, conn)
	if err != nil {
		return clientHelloFields{}, err
	}

	return clientHelloFields{
		peerID:          peerID,
		deviceName:      deviceName,
		ephemeralPublic: ephemeralPublic,
		identityPublic:  identityPublic,
		signature:       signature,
	}, nil
}

func (h *SecureHandshake) writeClientHello(ctx context.Context, conn net.Conn, peerID, deviceName string, ephemeralPublic, signature []byte) error {
	if err := writeString(ctx, conn, header); err != nil {
		return err
	}
	if err := writeString(ctx, conn, peerID); err != nil {
		return err
	}
	if err := writeString(ctx, conn, deviceName); err != nil {
		return err
	}
	if err := writeBytes(ctx, conn, ephemeralPublic); err != nil {
		return err
	}
	if err := writeBytes(ctx, conn, h.identity.PublicKey); err != nil {
		return err
	}
	return writeBytes(ctx, conn, signature)
}

func (h *SecureHandshake) writeSuccess(ctx context.Context, conn net.Conn, serverEphemeralPublic []byte) error {
	if err := writeString(ctx, conn, handshakeOK); err != nil {
		return err
	}
	return writeBytes(ctx, conn, serverEphemeralPublic)
}

func (h *SecureHandshake) writeFailure(ctx context.Context, conn net.Conn, code string) {
	_ = writeString(ctx, conn, handshakeFailedPfx+code)
}

func newEphemeralKeyPair() (private, public []byte, err error) {
	private = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, private); err != nil {
		return nil, nil, err
	}
	public, err = curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return private, public, nil
}

func handshakeSalt(clientEphemeralPublic, serverEphemeralPublic []byte) []byte {
	sum := sha256.Sum256(append(append([]byte{}, clientEphemeralPublic...), serverEphemeralPublic...))
	return sum[:]
}

var _ application.Handshake = (*SecureHandshake)(nil)
