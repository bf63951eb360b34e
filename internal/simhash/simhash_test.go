package simhash

import "testing"

func TestFingerprint_EmptyText(t *testing.T) {
	t.Parallel()

	if _, ok := Fingerprint(""); ok {
		t.Fatalf("expected no fingerprint for empty text")
	}
	if _, ok := Fingerprint("<p>   </p>"); ok {
		t.Fatalf("expected no fingerprint for markup-only text")
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	first, ok := Fingerprint("quarterly earnings beat analyst expectations")
	if !ok {
		t.Fatalf("expected fingerprint for non-empty text")
	}
	second, _ := Fingerprint("quarterly earnings beat analyst expectations")
	if first != second {
		t.Fatalf("fingerprint not deterministic: %#x vs %#x", first, second)
	}
}

func TestFingerprint_FitsSigned32BitHeadroom(t *testing.T) {
	t.Parallel()

	h, ok := Fingerprint("some reasonably long text with several distinct tokens inside")
	if !ok {
		t.Fatalf("expected fingerprint")
	}
	if h>>31 != 0 {
		t.Fatalf("expected top bit masked off, got %#x", h)
	}
}

func TestSimilarity_ReflexiveAndSymmetric(t *testing.T) {
	t.Parallel()

	a, _ := Fingerprint("central bank raises interest rates")
	b, _ := Fingerprint("central bank raises rates again")

	if got := Similarity(a, a); got != 1.0 {
		t.Fatalf("expected reflexive similarity 1.0, got %f", got)
	}
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatalf("expected symmetric similarity")
	}
}

func TestSimilarity_NearDuplicatesScoreHigh(t *testing.T) {
	t.Parallel()

	base := "acme corp announces record quarterly profits amid strong cloud demand and rising subscription revenue across all regions"
	near := "acme corp announces record quarterly profits amid strong cloud demand and rising subscription revenue across most regions"
	unrelated := "local football team wins championship after dramatic penalty shootout on saturday evening"

	a, _ := Fingerprint(base)
	b, _ := Fingerprint(near)
	c, _ := Fingerprint(unrelated)

	nearScore := Similarity(a, b)
	farScore := Similarity(a, c)
	if nearScore <= farScore {
		t.Fatalf("expected near-duplicate to score above unrelated: near=%f far=%f", nearScore, farScore)
	}
	if nearScore < 0.8 {
		t.Fatalf("expected high near-duplicate similarity, got %f", nearScore)
	}
}
