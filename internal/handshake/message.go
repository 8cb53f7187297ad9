package handshake

import "fmt"

// States, numbered 1-6 per spec §4.2.
const (
	StateChallenge         byte = 1
	StateChallengeResponse byte = 2
	StateChallengeAccepted byte = 3
	StateServerPublicKey   byte = 4
	StateClientPublicKey   byte = 5
	StateECDHAccepted      byte = 6
)

var prefix = [2]byte{0x2A, 0x2A}

// MarshalMessage builds the wire layout
// [0x2A 0x2A][state][body_len][body][sum_hi sum_lo]. len(body) must fit
// in one byte (≤255).
func MarshalMessage(state byte, body []byte) ([]byte, error) {
	if len(body) > 255 {
		return nil, fmt.Errorf("handshake: body too long (%d bytes)", len(body))
	}
	frame := make([]byte, 0, 4+len(body)+2)
	frame = append(frame, prefix[0], prefix[1], state, byte(len(body)))
	frame = append(frame, body...)
	sum := checksum(state, byte(len(body)), body)
	frame = append(frame, byte(sum>>8), byte(sum))
	return frame, nil
}

// UnmarshalMessage parses a wire message, validating the prefix, declared
// body length, and checksum.
func UnmarshalMessage(frame []byte) (state byte, body []byte, err error) {
	if len(frame) < 6 {
		return 0, nil, ErrHandshakeFormat
	}
	if frame[0] != prefix[0] || frame[1] != prefix[1] {
		return 0, nil, ErrHandshakeFormat
	}
	state = frame[2]
	bodyLen := int(frame[3])
	if len(frame) != 4+bodyLen+2 {
		return 0, nil, ErrHandshakeFormat
	}
	body = frame[4 : 4+bodyLen]
	want := checksum(state, byte(bodyLen), body)
	got := uint16(frame[4+bodyLen])<<8 | uint16(frame[4+bodyLen+1])
	if want != got {
		return 0, nil, ErrHandshakeFormat
	}
	return state, body, nil
}

// checksum computes the big-endian unsigned 16-bit sum of state, bodyLen,
// and body, wrapping modulo 65536.
func checksum(state, bodyLen byte, body []byte) uint16 {
	var sum uint32
	sum += uint32(state)
	sum += uint32(bodyLen)
	for _, b := range body {
		sum += uint32(b)
	}
	return uint16(sum)
}
