package formulas

import (
	"math"
	"testing"
)

func TestCalculateReturns(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		want      []float64
		tolerance float64
	}{
		{
			name:      "empty prices",
			prices:    []float64{},
			want:      []float64{},
			tolerance: 0.0,
		},
		{
			name:      "single price",
			prices:    []float64{2000.0},
			want:      []float64{},
			tolerance: 0.0,
		},
		{
			name:      "up then down",
			prices:    []float64{100.0, 110.0, 99.0},
			want:      []float64{0.10, -0.10},
			tolerance: 0.0001,
		},
		{
			name:      "zero price yields zero return",
			prices:    []float64{200.0, 0.0, 150.0},
			want:      []float64{-1.0, 0.0},
			tolerance: 0.0001,
		},
		{
			name:      "flat series",
			prices:    []float64{2000.0, 2000.0, 2000.0},
			want:      []float64{0.0, 0.0},
			tolerance: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateReturns(tt.prices)

			if len(result) != len(tt.want) {
				t.Fatalf("CalculateReturns() length = %v, want %v", len(result), len(tt.want))
			}
			for i := range result {
				if math.Abs(result[i]-tt.want[i]) > tt.tolerance {
					t.Errorf("CalculateReturns()[%d] = %v, want %v (±%v)",
						i, result[i], tt.want[i], tt.tolerance)
				}
			}
		})
	}
}

func TestMeanStdDevVariance(t *testing.T) {
	data := []float64{2.0, 4.0, 6.0}

	if got := Mean(data); math.Abs(got-4.0) > 1e-9 {
		t.Errorf("Mean() = %v, want 4.0", got)
	}
	if got := StdDev(data); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("StdDev() = %v, want 2.0", got)
	}
	if got := Variance(data); math.Abs(got-4.0) > 1e-9 {
		t.Errorf("Variance() = %v, want 4.0", got)
	}

	// Empty inputs collapse to zero rather than NaN
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := StdDev(nil); got != 0 {
		t.Errorf("StdDev(nil) = %v, want 0", got)
	}
}

func TestPercentile(t *testing.T) {
	data := []float64{5.0, 1.0, 3.0, 2.0, 4.0}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"median", 0.5, 3.0},
		{"top", 1.0, 5.0},
		{"bottom", 0.0, 1.0},
		{"clamped below", -0.5, 1.0},
		{"clamped above", 1.5, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentile(data, tt.p); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}

	// Input must not be reordered
	if data[0] != 5.0 || data[4] != 4.0 {
		t.Errorf("Percentile() mutated its input: %v", data)
	}

	if got := Percentile(nil, 0.5); got != 0 {
		t.Errorf("Percentile(nil) = %v, want 0", got)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	tests := []struct {
		name      string
		returns   []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty returns",
			returns:   []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "constant returns have no volatility",
			returns:   []float64{0.001, 0.001, 0.001, 0.001},
			expected:  0.0,
			tolerance: 0.0001,
		},
		{
			name:      "mixed returns",
			returns:   []float64{0.012, -0.008, 0.02, -0.02, 0.01, -0.014},
			expected:  0.256,
			tolerance: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AnnualizedVolatility(tt.returns)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("AnnualizedVolatility() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}
