// Package memstore is an in-memory scanner.ResultStore, used by tests and
// by cmd/pwrscan when no external persistence is configured.
package memstore

import (
	"sort"
	"sync"

	"github.com/fieldwire-iot/pwrscan-ble/internal/scanner"
)

type key struct {
	deviceID string
	register uint16
}

// Store is a map-backed scanner.ResultStore. The zero value is ready to
// use.
type Store struct {
	mu   sync.Mutex
	data map[key]scanner.StoredResult
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[key]scanner.StoredResult)}
}

// Upsert records result for (deviceID, register), never overwriting a
// stored Readable=true with a later Readable=false.
func (s *Store) Upsert(deviceID string, register uint16, result scanner.StoredResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[key]scanner.StoredResult)
	}
	k := key{deviceID, register}
	if existing, ok := s.data[k]; ok && existing.Readable && !result.Readable {
		return nil
	}
	s.data[k] = result
	return nil
}

// ScannedRegisters returns the sorted registers already recorded for
// deviceID within [start, end).
func (s *Store) ScannedRegisters(deviceID string, start, end uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint16
	for k := range s.data {
		if k.deviceID != deviceID {
			continue
		}
		if k.register < start || k.register >= end {
			continue
		}
		out = append(out, k.register)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Get returns the stored result for (deviceID, register), if any —
// a test/inspection convenience not part of the ResultStore contract.
func (s *Store) Get(deviceID string, register uint16) (scanner.StoredResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key{deviceID, register}]
	return v, ok
}
