package crypto

import "errors"

// ErrCipherFormat is returned when an AES-CBC transport frame is too
// short to contain even the length prefix.
var ErrCipherFormat = errors.New("crypto: cipher format")

// ErrCipherAuth is returned when the underlying AES-CBC decrypt fails
// (truncated ciphertext, wrong key, or corrupted block).
var ErrCipherAuth = errors.New("crypto: cipher auth")
