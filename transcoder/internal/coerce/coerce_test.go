package coerce

import (
	"math"
	"testing"
)

func TestWrapInt32(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  int32
	}{
		{"zero", 0, 0},
		{"positive", 42, 42},
		{"negative", -42, -42},
		{"max", math.MaxInt32, math.MaxInt32},
		{"min", math.MinInt32, math.MinInt32},
		{"max plus one wraps", math.MaxInt32 + 1, math.MinInt32},
		{"two pow 32 wraps to zero", 4294967296, 0},
		{"two pow 32 plus five", 4294967301, 5},
		{"uint32 max is minus one", math.MaxUint32, -1},
		{"fraction truncates", 3.9, 3},
		{"negative fraction truncates", -3.9, -3},
		{"large negative", -4294967297, -1},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
		{"-inf", math.Inf(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapInt32(tt.input); got != tt.want {
				t.Errorf("WrapInt32(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestWrapUint32(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  uint32
	}{
		{"zero", 0, 0},
		{"max", math.MaxUint32, math.MaxUint32},
		{"max plus one wraps", math.MaxUint32 + 1, 0},
		{"minus one", -1, math.MaxUint32},
		{"minus two pow 32", -4294967296, 0},
		{"fraction", 7.5, 7},
		{"nan", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapUint32(tt.input); got != tt.want {
				t.Errorf("WrapUint32(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestStrict(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		int32OK  bool
		uint32OK bool
	}{
		{"zero", 0, true, true},
		{"negative", -1, true, false},
		{"int32 max", math.MaxInt32, true, true},
		{"beyond int32", math.MaxInt32 + 1, false, true},
		{"uint32 max", math.MaxUint32, false, true},
		{"beyond uint32", math.MaxUint32 + 1, false, false},
		{"fraction", 1.5, false, false},
		{"nan", math.NaN(), false, false},
		{"inf", math.Inf(1), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := StrictInt32(tt.input); ok != tt.int32OK {
				t.Errorf("StrictInt32(%v) ok = %v, want %v", tt.input, ok, tt.int32OK)
			}
			if _, ok := StrictUint32(tt.input); ok != tt.uint32OK {
				t.Errorf("StrictUint32(%v) ok = %v, want %v", tt.input, ok, tt.uint32OK)
			}
		})
	}
}

func TestFloat32(t *testing.T) {
	if Float32(1.5) != 1.5 {
		t.Error("exact value changed")
	}
	if !FitsFloat32(0.5) || FitsFloat32(0.1) {
		t.Error("FitsFloat32 misreports")
	}
	if !math.IsInf(float64(Float32(1e300)), 1) {
		t.Error("overflow should become +Inf")
	}
}
