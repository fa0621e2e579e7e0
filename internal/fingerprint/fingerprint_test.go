package fingerprint

import (
	"math"
	"testing"
)

func TestEncodeWidth(t *testing.T) {
	e := NewEncoder(0)
	if e.Dim() != DefaultDim {
		t.Fatalf("default dim = %d, want %d", e.Dim(), DefaultDim)
	}
	got := e.Encode([]float64{1, 2, 3})
	if len(got) != DefaultDim {
		t.Fatalf("fingerprint length = %d, want %d", len(got), DefaultDim)
	}
}

func TestEncodeEmptySeries(t *testing.T) {
	got := NewEncoder(16).Encode(nil)
	for i, v := range got {
		if v != 0 {
			t.Fatalf("slot %d = %v, want 0", i, v)
		}
	}
}

func TestEncodeSummarySlots(t *testing.T) {
	e := NewEncoder(16)
	got := e.Encode([]float64{1, 2, 3, 4})

	if mean := got[12]; math.Abs(float64(mean)-2.5) > 1e-6 {
		t.Errorf("mean slot = %v, want 2.5", mean)
	}
	if min := got[14]; min != 1 {
		t.Errorf("min slot = %v, want 1", min)
	}
	if max := got[15]; max != 4 {
		t.Errorf("max slot = %v, want 4", max)
	}
}

func TestEncodeConstantSeries(t *testing.T) {
	got := NewEncoder(16).Encode([]float64{2, 2, 2, 2, 2})
	// A flat series has no shape: z-scoring must not divide by zero.
	for i := 0; i < 12; i++ {
		if got[i] != 0 {
			t.Fatalf("shape slot %d = %v, want 0", i, got[i])
		}
	}
	if got[13] != 0 {
		t.Errorf("std slot = %v, want 0", got[13])
	}
}

func TestEncodeLengthInvariantShape(t *testing.T) {
	e := NewEncoder(32)
	short := e.Encode([]float64{0, 1, 2, 3})
	long := e.Encode([]float64{0, 0.5, 1, 1.5, 2, 2.5, 3})

	// Both series trace the same ramp, so the resampled shapes agree.
	for i := 0; i < 28; i++ {
		if math.Abs(float64(short[i]-long[i])) > 1e-5 {
			t.Fatalf("shape slot %d differs: %v vs %v", i, short[i], long[i])
		}
	}
}

func TestEncodeSingleSample(t *testing.T) {
	got := NewEncoder(16).Encode([]float64{3.5})
	if got[12] != 3.5 || got[14] != 3.5 || got[15] != 3.5 {
		t.Fatalf("summary slots = %v %v %v, want 3.5", got[12], got[14], got[15])
	}
	if got[13] != 0 {
		t.Errorf("std of single sample = %v, want 0", got[13])
	}
}
