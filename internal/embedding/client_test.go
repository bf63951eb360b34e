package embedding

import (
	"math"
	"testing"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	t.Parallel()

	input := []float64{0.25, -1.5, 0, 3}
	literal, err := toVectorLiteral(input, len(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if literal != "[0.25,-1.5,0,3]" {
		t.Fatalf("unexpected literal: %q", literal)
	}

	parsed, err := parseVectorLiteral(literal)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(parsed) != len(input) {
		t.Fatalf("expected %d components, got %d", len(input), len(parsed))
	}
	for i := range input {
		if parsed[i] != input[i] {
			t.Fatalf("component %d changed: %f != %f", i, parsed[i], input[i])
		}
	}
}

func TestToVectorLiteralRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := toVectorLiteral([]float64{1, 2}, 3); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	if _, err := toVectorLiteral([]float64{math.NaN()}, 1); err == nil {
		t.Fatalf("expected non-finite value error")
	}
	if _, err := toVectorLiteral([]float64{math.Inf(1)}, 1); err == nil {
		t.Fatalf("expected non-finite value error")
	}
}

func TestParseVectorLiteralRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, literal := range []string{"", "1,2,3", "[]", "[1,,2]", "[a,b]"} {
		if _, err := parseVectorLiteral(literal); err == nil {
			t.Fatalf("expected error for %q", literal)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", "http://127.0.0.1:8844/embed"},
		{"http://embedder:9000", "http://embedder:9000/embed"},
		{"http://embedder:9000/", "http://embedder:9000/embed"},
		{"http://embedder:9000/v1/embeddings", "http://embedder:9000/v1/embeddings"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.in); got != tc.want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
