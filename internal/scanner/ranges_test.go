package scanner

import "testing"

func TestDefaultRange(t *testing.T) {
	tests := []struct {
		protocolVersion uint16
		want            ScanRange
	}{
		{1999, ScanRange{0, 8000}},
		{0, ScanRange{0, 8000}},
		{2000, ScanRange{0, 20000}},
		{5000, ScanRange{0, 20000}},
	}
	for _, tt := range tests {
		if got := DefaultRange(tt.protocolVersion); got != tt.want {
			t.Errorf("DefaultRange(%d) = %v, want %v", tt.protocolVersion, got, tt.want)
		}
	}
}

func assertRanges(t *testing.T, got []ScanRange, want []ScanRange) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCalculatePendingRangesEmptyScanned(t *testing.T) {
	got, err := CalculatePendingRanges(0, 10, nil)
	if err != nil {
		t.Fatalf("CalculatePendingRanges() error = %v", err)
	}
	assertRanges(t, got, []ScanRange{{0, 10}})
}

func TestCalculatePendingRangesFullyScanned(t *testing.T) {
	scanned := make([]uint16, 10)
	for i := range scanned {
		scanned[i] = uint16(i)
	}
	got, err := CalculatePendingRanges(0, 10, scanned)
	if err != nil {
		t.Fatalf("CalculatePendingRanges() error = %v", err)
	}
	assertRanges(t, got, nil)
}

func TestCalculatePendingRangesGapInMiddle(t *testing.T) {
	got, err := CalculatePendingRanges(0, 10, []uint16{0, 1, 2, 7, 8, 9})
	if err != nil {
		t.Fatalf("CalculatePendingRanges() error = %v", err)
	}
	assertRanges(t, got, []ScanRange{{3, 7}})
}

func TestCalculatePendingRangesMultipleGaps(t *testing.T) {
	got, err := CalculatePendingRanges(0, 20, []uint16{0, 5, 6, 7, 15})
	if err != nil {
		t.Fatalf("CalculatePendingRanges() error = %v", err)
	}
	assertRanges(t, got, []ScanRange{{1, 5}, {8, 15}, {16, 20}})
}

func TestCalculatePendingRangesEmptyRange(t *testing.T) {
	got, err := CalculatePendingRanges(5, 5, nil)
	if err != nil {
		t.Fatalf("CalculatePendingRanges() error = %v", err)
	}
	assertRanges(t, got, nil)
}

func TestCalculatePendingRangesInvalid(t *testing.T) {
	_, err := CalculatePendingRanges(10, 5, nil)
	if err == nil {
		t.Error("expected an error for end < start")
	}
}
