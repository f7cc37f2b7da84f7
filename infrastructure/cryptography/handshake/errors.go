package handshake

import "errors"

var (
	ErrInvalidSignature = errors.New("handshake: invalid signature")
	ErrProtocol         = errors.New("handshake: protocol error")
	ErrServerRejected   = errors.New("handshake: server rejected handshake")
)
