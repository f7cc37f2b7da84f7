package handshake

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"golang.org/x/crypto/ed25519"

	"github.com/nordicnode/swarm/application"
)

type capturingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *capturingLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, format)
}

func newTestIdentity(t *testing.T) IdentityKeyPair {
	t.Helper()
	id, err := GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	return id
}

// TestSecureHandshake_HappyPath checks that matching identities complete
// the handshake and derive byte-identical session keys on both ends.
func TestSecureHandshake_HappyPath(t *testing.T) {
	clientIdentity := newTestIdentity(t)
	serverIdentity := newTestIdentity(t)

	trusted := map[string][]byte{"P1": clientIdentity.PublicKey}
	serverHS := NewSecureHandshake(serverIdentity, trusted, &capturingLogger{})
	clientHS := NewSecureHandshake(clientIdentity, nil, &capturingLogger{})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var serverResult HandshakeResultHolder
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := serverHS.ServerSideHandshake(context.Background(), serverConn)
		serverResult = HandshakeResultHolder{res: res, err: err}
	}()

	clientRes, clientErr := clientHS.ClientSideHandshake(context.Background(), clientConn, "P1", "laptop")
	wg.Wait()

	if clientErr != nil {
		t.Fatalf("ClientSideHandshake: %v", clientErr)
	}
	if serverResult.err != nil {
		t.Fatalf("ServerSideHandshake: %v", serverResult.err)
	}

	if serverResult.res.PeerID != "P1" {
		t.Errorf("PeerID = %q, want P1", serverResult.res.PeerID)
	}
	if serverResult.res.PeerName != "laptop" {
		t.Errorf("PeerName = %q, want laptop", serverResult.res.PeerName)
	}
	if !serverResult.res.IsTrusted {
		t.Error("expected server to trust the client's presented identity key")
	}
	if !bytes.Equal(clientRes.SessionKey, serverResult.res.SessionKey) {
		t.Fatal("client and server derived different session keys")
	}
	if len(clientRes.SessionKey) != sessionKeySize {
		t.Fatalf("session key length = %d, want %d", len(clientRes.SessionKey), sessionKeySize)
	}
}

type HandshakeResultHolder struct {
	res application.HandshakeResult
	err error
}

// TestSecureHandshake_TamperedSignature checks that a tampered signature
// yields INVALID_SIGNATURE and no session key.
func TestSecureHandshake_TamperedSignature(t *testing.T) {
	clientIdentity := newTestIdentity(t)
	serverIdentity := newTestIdentity(t)
	serverHS := NewSecureHandshake(serverIdentity, nil, &capturingLogger{})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan HandshakeResultHolder, 1)
	go func() {
		res, err := serverHS.ServerSideHandshake(context.Background(), serverConn)
		done <- HandshakeResultHolder{res: res, err: err}
	}()

	ephemeralPrivate, ephemeralPublic, err := newEphemeralKeyPair()
	if err != nil {
		t.Fatalf("newEphemeralKeyPair: %v", err)
	}
	defer zeroize(ephemeralPrivate)

	badSignature := ed25519.Sign(clientIdentity.PrivateKey, []byte("not-what-gets-verified"))

	writeErr := (&SecureHandshake{identity: clientIdentity}).writeClientHello(context.Background(), clientConn, "P1", "laptop", ephemeralPublic, badSignature)
	if writeErr != nil {
		t.Fatalf("writeClientHello: %v", writeErr)
	}

	status, readErr := readString(context.Background(), clientConn)
	if readErr != nil {
		t.Fatalf("readString: %v", readErr)
	}
	if status != handshakeFailedPfx+codeInvalidSig {
		t.Fatalf("status = %q, want failure/INVALID_SIGNATURE", status)
	}

	result := <-done
	if !errors.Is(result.err, ErrInvalidSignature) {
		t.Fatalf("server error = %v, want ErrInvalidSignature", result.err)
	}
	if result.res.SessionKey != nil {
		t.Fatal("expected no session key on signature failure")
	}
}

func TestSecureHandshake_UntrustedPeerStillCompletes(t *testing.T) {
	clientIdentity := newTestIdentity(t)
	serverIdentity := newTestIdentity(t)
	logger := &capturingLogger{}
	serverHS := NewSecureHandshake(serverIdentity, map[string][]byte{"P1": []byte("wrong-key")}, logger)
	clientHS := NewSecureHandshake(clientIdentity, nil, logger)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan HandshakeResultHolder, 1)
	go func() {
		res, err := serverHS.ServerSideHandshake(context.Background(), serverConn)
		done <- HandshakeResultHolder{res: res, err: err}
	}()

	if _, err := clientHS.ClientSideHandshake(context.Background(), clientConn, "P1", "laptop"); err != nil {
		t.Fatalf("ClientSideHandshake: %v", err)
	}

	result := <-done
	if result.err != nil {
		t.Fatalf("ServerSideHandshake: %v", result.err)
	}
	if result.res.IsTrusted {
		t.Fatal("expected untrusted peer to complete without being marked trusted")
	}
	if result.res.SessionKey == nil {
		t.Fatal("expected session key to still be derived for an untrusted peer")
	}
}
