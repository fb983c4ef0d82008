package servo

import (
	"math"
	"testing"
)

func TestRange_Percent(t *testing.T) {
	r := Range{
		Min: 1000,
		Max: 3000,
	}

	tests := []struct {
		raw      int
		expected float64
	}{
		{1000, 0.0},   // min -> 0
		{3000, 100.0}, // max -> 100
		{2000, 50.0},  // mid -> 50
		{1500, 25.0},  // quarter
		{2500, 75.0},  // three-quarter
	}

	for _, tt := range tests {
		got := r.Percent(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Percent(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestRange_PercentEmpty(t *testing.T) {
	r := Range{Min: 7, Max: 7}
	if got := r.Percent(7); got != 0 {
		t.Errorf("Percent on empty range = %f, want 0", got)
	}
}

func TestRange_FromPercent(t *testing.T) {
	r := Range{
		Min: 1000,
		Max: 3000,
	}

	tests := []struct {
		pct      float64
		expected int
	}{
		{0.0, 1000},
		{100.0, 3000},
		{50.0, 2000},
		{25.0, 1500},
		{75.0, 2500},
	}

	for _, tt := range tests {
		got := r.FromPercent(tt.pct)
		if got != tt.expected {
			t.Errorf("FromPercent(%f) = %d, want %d", tt.pct, got, tt.expected)
		}
	}
}

func TestRange_RoundTrip(t *testing.T) {
	r := PositionRange

	// raw -> percent -> raw
	for raw := r.Min; raw <= r.Max; raw += 97 {
		pct := r.Percent(raw)
		back := r.FromPercent(pct)
		if back != raw {
			t.Errorf("Round-trip failed: %d -> %f -> %d", raw, pct, back)
		}
	}
}

func TestRange_ContainsClamp(t *testing.T) {
	tests := []struct {
		r        Range
		v        int
		contains bool
		clamped  int
	}{
		{PositionRange, 0, true, 0},
		{PositionRange, 4095, true, 4095},
		{PositionRange, 4096, false, 4095},
		{SpeedRange, -1, false, 0},
		{SpeedRange, 3400, true, 3400},
		{AccelerationRange, 255, false, 254},
		{AddressRange, 253, true, 253},
		{AddressRange, 254, false, 253},
	}

	for _, tt := range tests {
		if got := tt.r.Contains(tt.v); got != tt.contains {
			t.Errorf("%+v.Contains(%d) = %v, want %v", tt.r, tt.v, got, tt.contains)
		}
		if got := tt.r.Clamp(tt.v); got != tt.clamped {
			t.Errorf("%+v.Clamp(%d) = %d, want %d", tt.r, tt.v, got, tt.clamped)
		}
	}
}

func TestRange_Check(t *testing.T) {
	if err := SpeedRange.Check("speed", 500); err != nil {
		t.Errorf("Check(500) returned %v", err)
	}
	if err := SpeedRange.Check("speed", 5000); err == nil {
		t.Error("Check(5000) should fail")
	}
}

func TestUnits(t *testing.T) {
	if got := VoltsFromRaw(74); math.Abs(got-7.4) > 0.001 {
		t.Errorf("VoltsFromRaw(74) = %f, want 7.4", got)
	}
	if got := MilliampsFromRaw(40); math.Abs(got-260) > 0.001 {
		t.Errorf("MilliampsFromRaw(40) = %f, want 260", got)
	}
	if got := LoadPercentFromRaw(-125); got != -12 {
		t.Errorf("LoadPercentFromRaw(-125) = %d, want -12", got)
	}
}
