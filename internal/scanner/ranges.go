package scanner

import "fmt"

// ScanRange is a half-open register address range [Start, End). End must
// be greater than Start; empty ranges at the boundary (Start == End) are
// permitted and simply contribute no work.
type ScanRange struct {
	Start, End uint16
}

func (r ScanRange) size() int { return int(r.End) - int(r.Start) }

// DefaultRange returns the register range to scan when the caller
// doesn't know the device's register map extent, sized by protocol
// generation.
func DefaultRange(protocolVersion uint16) ScanRange {
	if protocolVersion < 2000 {
		return ScanRange{Start: 0, End: 8000}
	}
	return ScanRange{Start: 0, End: 20000}
}

// CalculatePendingRanges returns the minimal contiguous ranges within
// [start, end) whose addresses are not present in scannedSorted (which
// must already be sorted ascending and hold values in [start, end)).
func CalculatePendingRanges(start, end uint16, scannedSorted []uint16) ([]ScanRange, error) {
	if end < start {
		return nil, fmt.Errorf("scanner: invalid range [%d, %d)", start, end)
	}
	if start == end {
		return nil, nil
	}

	var pending []ScanRange
	cursor := start
	for _, addr := range scannedSorted {
		if addr < cursor || addr >= end {
			continue
		}
		if addr > cursor {
			pending = append(pending, ScanRange{Start: cursor, End: addr})
		}
		cursor = addr + 1
	}
	if cursor < end {
		pending = append(pending, ScanRange{Start: cursor, End: end})
	}
	return pending, nil
}
