// Package scanner implements the adaptive bisecting register scanner: it
// discovers, for a set of address ranges, which holding registers a
// power station actually answers reads for, persisting every
// determination through a ResultStore.
package scanner

import "time"

// DeviceRecord identifies one scanned device. Recognizing a device
// (assigning it an ID, name, protocol version, and type) is an external
// collaborator's job; this struct just gives ResultStore implementations
// and callers a concrete type to key scans by.
type DeviceRecord struct {
	ID              string
	Name            string
	ProtocolVersion uint16
	DeviceType      string
}

// RegisterResult is one register's discovered readability, optionally
// carrying the 2-byte value observed while probing it.
type RegisterResult struct {
	Address  uint16
	Readable bool
	Value    *[2]byte
}

// StoredResult is what a ResultStore persists per (DeviceID, Register).
type StoredResult struct {
	Readable  bool
	ScannedAt time.Time
	Value     *[2]byte
}
