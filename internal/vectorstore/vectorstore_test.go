package vectorstore

import (
	"math"
	"testing"
)

func TestCosineSelfSimilarity(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 0},
		{0.5, 0.5, 0.5},
		{-0.3, 0.7, 0.1, 0.9},
		{2, -4, 8},
	}

	for _, v := range vectors {
		got := Cosine(v, v)
		if math.Abs(got-1.0) > 1e-9 {
			t.Errorf("Cosine(v, v) = %f for %v, want 1.0", got, v)
		}
	}
}

func TestCosineZeroVectorGuard(t *testing.T) {
	zero := []float64{0, 0, 0}
	other := []float64{1, 2, 3}

	if got := Cosine(zero, other); got != 0 {
		t.Errorf("Cosine(zero, v) = %f, want 0", got)
	}
	if got := Cosine(zero, zero); got != 0 {
		t.Errorf("Cosine(zero, zero) = %f, want 0", got)
	}
}

func TestCosineLengthMismatch(t *testing.T) {
	if got := Cosine([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("Cosine with mismatched lengths = %f, want 0", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("Cosine(nil, nil) = %f, want 0", got)
	}
}

func TestCosineOpposedVectors(t *testing.T) {
	a := []float64{1, 1}
	b := []float64{-1, -1}

	got := Cosine(a, b)
	if math.Abs(got-(-1.0)) > 1e-9 {
		t.Errorf("Cosine(v, -v) = %f, want -1.0", got)
	}
}

func TestCosineOrthogonalVectors(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}

	if got := Cosine(a, b); math.Abs(got) > 1e-9 {
		t.Errorf("Cosine of orthogonal vectors = %f, want 0", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vector := []float64{0.125, -0.5, 3, 0}

	for _, capability := range []Capability{CapabilityNative, CapabilityJSONFallback} {
		s := &Store{capability: capability, dims: len(vector)}

		encoded, err := s.encode(vector)
		if err != nil {
			t.Fatalf("encode failed for %s: %v", capability, err)
		}

		decoded, err := s.decode(encoded)
		if err != nil {
			t.Fatalf("decode failed for %s: %v", capability, err)
		}

		if len(decoded) != len(vector) {
			t.Fatalf("%s round trip changed length: got %d, want %d", capability, len(decoded), len(vector))
		}
		for i := range vector {
			if math.Abs(decoded[i]-vector[i]) > 1e-12 {
				t.Errorf("%s round trip changed element %d: got %f, want %f", capability, i, decoded[i], vector[i])
			}
		}
	}
}

func TestFormatVector(t *testing.T) {
	got := formatVector([]float64{0.5, -1, 2})
	want := "[0.5,-1,2]"
	if got != want {
		t.Errorf("formatVector = %q, want %q", got, want)
	}
}

func TestCapabilityString(t *testing.T) {
	tests := []struct {
		capability Capability
		want       string
	}{
		{CapabilityNative, "native"},
		{CapabilityJSONFallback, "json"},
		{CapabilityUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.capability.String(); got != tt.want {
			t.Errorf("Capability.String() = %q, want %q", got, tt.want)
		}
	}
}
