package scanner

import (
	"context"
	"time"
)

// ChunkSize is the protocol's per-request register ceiling (spec §6);
// no chunk the scanner issues ever exceeds it.
const ChunkSize = 7

// RegisterReader is the read surface the scanner needs from a
// connected device. *ble.Client satisfies it.
type RegisterReader interface {
	ReadRegisters(ctx context.Context, start uint16, count uint8) ([]byte, error)
}

// Progress reports scan advancement. Scanned only increases when a chunk
// is fully resolved — either every register in it came back readable, or
// it was bisected down to individually-determined registers.
type Progress struct {
	Scanned int
	Total   int
}

// Scanner runs the bisecting register-discovery algorithm (spec §4.5)
// over Device's Ranges, reading through Reader and persisting every
// determination through Store.
type Scanner struct {
	Device DeviceRecord
	Ranges []ScanRange
	Reader RegisterReader
	Store  ResultStore

	queue   []ScanRange
	total   int
	scanned int
	started bool
}

func (s *Scanner) init() {
	if s.started {
		return
	}
	s.started = true
	for _, r := range s.Ranges {
		s.total += r.size()
		s.queue = append(s.queue, chunksOf(r, ChunkSize)...)
	}
}

// chunksOf splits r into consecutive pieces of at most size registers.
func chunksOf(r ScanRange, size int) []ScanRange {
	var out []ScanRange
	for start := r.Start; start < r.End; {
		end := start + uint16(size)
		if end > r.End || end < start { // guard uint16 overflow at the top of the address space
			end = r.End
		}
		out = append(out, ScanRange{Start: start, End: end})
		start = end
	}
	return out
}

// Step processes at most one chunk off the work queue. It returns
// done=true once the queue is empty (nothing left to process) and
// should be called in a loop until done or an error occurs.
//
// A failed chunk read bisects: chunks of size 1 are recorded
// unreadable; larger chunks split at floor(n/2) and the two halves are
// pushed to the FRONT of the queue, ahead of whatever was already
// queued — the "subdivisions before the queued tail" stack discipline
// spec §4.5 requires.
func (s *Scanner) Step(ctx context.Context) (bool, error) {
	s.init()
	if len(s.queue) == 0 {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	chunk := s.queue[0]
	s.queue = s.queue[1:]
	n := chunk.size()
	if n == 0 {
		return len(s.queue) == 0, nil
	}

	data, err := s.Reader.ReadRegisters(ctx, chunk.Start, uint8(n))
	if err == nil {
		if putErr := s.recordChunkReadable(chunk, data); putErr != nil {
			return false, putErr
		}
		s.scanned += n
		return len(s.queue) == 0, nil
	}

	if n == 1 {
		if putErr := s.Store.Upsert(s.Device.ID, chunk.Start, StoredResult{Readable: false, ScannedAt: time.Now()}); putErr != nil {
			return false, putErr
		}
		s.scanned++
		return len(s.queue) == 0, nil
	}

	mid := n / 2
	left := ScanRange{Start: chunk.Start, End: chunk.Start + uint16(mid)}
	right := ScanRange{Start: chunk.Start + uint16(mid), End: chunk.End}
	s.queue = append([]ScanRange{left, right}, s.queue...)
	return len(s.queue) == 0, nil
}

func (s *Scanner) recordChunkReadable(chunk ScanRange, data []byte) error {
	now := time.Now()
	for i := 0; i < chunk.size(); i++ {
		addr := chunk.Start + uint16(i)
		value := [2]byte{data[2*i], data[2*i+1]}
		if err := s.Store.Upsert(s.Device.ID, addr, StoredResult{
			Readable:  true,
			ScannedAt: now,
			Value:     &value,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Run drives Step to completion (or to the first error, or until ctx is
// cancelled), emitting a Progress event after every resolved chunk. Both
// channels are closed when the scan ends; a final Progress event is
// always emitted even on cancellation, per spec §4.5.
func (s *Scanner) Run(ctx context.Context) (<-chan Progress, <-chan error) {
	progressCh := make(chan Progress, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(progressCh)
		defer close(errCh)
		for {
			done, err := s.Step(ctx)
			progressCh <- Progress{Scanned: s.scanned, Total: s.total}
			if err != nil {
				errCh <- err
				return
			}
			if done {
				return
			}
		}
	}()

	return progressCh, errCh
}
