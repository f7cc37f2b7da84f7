package overlay

import (
	"bytes"
	"net"
	"testing"
)

func TestPlain_WriteRead_RoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewPlain(clientConn)
	server := NewPlain(serverConn)

	msg := []byte("hello overlay")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = client.Write(msg)
	}()

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	<-done
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("Read() = %q, want %q", buf[:n], msg)
	}
}

func TestEncrypted_WriteRead_RoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sessionKey := bytes.Repeat([]byte{0x42}, 32)

	client, err := NewEncrypted(clientConn, sessionKey, false)
	if err != nil {
		t.Fatalf("NewEncrypted(client): %v", err)
	}
	server, err := NewEncrypted(serverConn, sessionKey, true)
	if err != nil {
		t.Fatalf("NewEncrypted(server): %v", err)
	}

	msg := []byte("secret payload")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := client.Write(msg); err != nil {
			t.Errorf("client.Write: %v", err)
		}
	}()

	buf := make([]byte, 256)
	n, err := server.Read(buf)
	<-done
	if err != nil {
		t.Fatalf("server.Read: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("server.Read() = %q, want %q", buf[:n], msg)
	}
}

func TestEncrypted_MultipleMessagesInOrder(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sessionKey := bytes.Repeat([]byte{0x07}, 32)
	client, _ := NewEncrypted(clientConn, sessionKey, false)
	server, _ := NewEncrypted(serverConn, sessionKey, true)

	messages := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	go func() {
		for _, m := range messages {
			if _, err := client.Write(m); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 64)
	for _, want := range messages {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("server.Read: %v", err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Fatalf("server.Read() = %q, want %q", buf[:n], want)
		}
	}
}

func TestEncrypted_WrongKeyFailsToDecrypt(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client, _ := NewEncrypted(clientConn, bytes.Repeat([]byte{0x01}, 32), false)
	server, _ := NewEncrypted(serverConn, bytes.Repeat([]byte{0x02}, 32), true)

	go func() { _, _ = client.Write([]byte("payload")) }()

	buf := make([]byte, 64)
	if _, err := server.Read(buf); err == nil {
		t.Fatal("expected decrypt failure with mismatched keys")
	}
}
