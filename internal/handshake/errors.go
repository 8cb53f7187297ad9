package handshake

import "errors"

// ErrHandshakeFormat is returned for malformed wire messages: bad prefix,
// checksum mismatch, or a declared body length that disagrees with the
// bytes actually present.
var ErrHandshakeFormat = errors.New("handshake: format")

// ErrHandshakeSequence is returned when a message arrives in a state the
// engine's current role/phase doesn't expect.
var ErrHandshakeSequence = errors.New("handshake: sequence")

// ErrHandshakeAuth is returned when an ECDSA signature fails verification.
var ErrHandshakeAuth = errors.New("handshake: auth")

// ErrHandshakeRejected is returned when a states-3/6 acceptance body is
// non-zero.
var ErrHandshakeRejected = errors.New("handshake: rejected")
