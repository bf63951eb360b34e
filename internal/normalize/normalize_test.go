package normalize

import (
	"strings"
	"testing"
)

func TestNormalizeURL_StripsTrackingAndNormalizes(t *testing.T) {
	t.Parallel()

	got := NormalizeURL("https://WWW.Example.COM:443/news/path/?utm_source=abc&fbclid=123&b=2&a=1")
	if got != "https://example.com/news/path?a=1&b=2" {
		t.Fatalf("unexpected canonical url: %q", got)
	}
}

func TestNormalizeURL_TrackingOnlyVariantsCollapse(t *testing.T) {
	t.Parallel()

	variants := []string{
		"https://site.com/x?utm_source=y",
		"https://site.com/x?utm_medium=rss&utm_campaign=feed",
		"https://www.site.com/x",
		"https://site.com/x/",
		"https://site.com/x#section",
		"https://site.com/x?gclid=42",
	}

	want := NormalizeURL("https://site.com/x")
	for _, variant := range variants {
		if got := NormalizeURL(variant); got != want {
			t.Fatalf("variant %q normalized to %q, want %q", variant, got, want)
		}
	}
}

func TestNormalizeURL_IndexSuffixAndQueryOrdering(t *testing.T) {
	t.Parallel()

	if got := NormalizeURL("https://site.com/blog/index.html"); got != "https://site.com/blog" {
		t.Fatalf("unexpected index.html handling: %q", got)
	}
	if got := NormalizeURL("https://site.com/blog/index.php"); got != "https://site.com/blog" {
		t.Fatalf("unexpected index.php handling: %q", got)
	}

	left := NormalizeURL("https://site.com/x?b=2&a=1&a=0")
	right := NormalizeURL("https://site.com/x?a=0&a=1&b=2")
	if left != right {
		t.Fatalf("query ordering not canonical: %q vs %q", left, right)
	}
}

func TestNormalizeURL_MalformedFallsBack(t *testing.T) {
	t.Parallel()

	if got := NormalizeURL("  NOT A URL  "); got != "not a url" {
		t.Fatalf("expected lowercased trimmed fallback, got %q", got)
	}
	if got := NormalizeURL(""); got != "" {
		t.Fatalf("expected empty result for empty input, got %q", got)
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	got := CleanText("<p>Hello,   <b>World</b>!</p>")
	if got != "hello world" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}

	if got := CleanText(""); got != "" {
		t.Fatalf("expected empty output for empty input, got %q", got)
	}
	if got := CleanText("   \n\t "); got != "" {
		t.Fatalf("expected empty output for whitespace input, got %q", got)
	}
}

func TestCleanText_DropsPunctuationAndLowercases(t *testing.T) {
	t.Parallel()

	got := CleanText("Breaking: OpenAI's GPT-5 — launch!")
	if strings.ContainsAny(got, ":'—!-") {
		t.Fatalf("expected punctuation stripped, got %q", got)
	}
	if got != strings.ToLower(got) {
		t.Fatalf("expected lowercase output, got %q", got)
	}
}

func TestContentHash_DeterministicAndSensitive(t *testing.T) {
	t.Parallel()

	first := ContentHash("Title", "Body text")
	second := ContentHash("Title", "Body text")
	if first == "" || first != second {
		t.Fatalf("expected deterministic non-empty hash, got %q vs %q", first, second)
	}

	changed := ContentHash("Title", "Body text changed")
	if changed == first {
		t.Fatalf("expected hash to change with content")
	}
}

func TestContentHash_EmptyInputs(t *testing.T) {
	t.Parallel()

	if got := ContentHash("", ""); got != "" {
		t.Fatalf("expected empty hash for empty inputs, got %q", got)
	}
	if got := ContentHash("<p></p>", "   "); got != "" {
		t.Fatalf("expected empty hash for effectively empty inputs, got %q", got)
	}
	if got := ContentHash("Title only", ""); got == "" {
		t.Fatalf("expected non-empty hash when title is present")
	}
}

func TestContentHash_IgnoresMarkupDifferences(t *testing.T) {
	t.Parallel()

	plain := ContentHash("Title", "Body text here")
	markedUp := ContentHash("Title", "<div>Body   <em>text</em> here</div>")
	if plain != markedUp {
		t.Fatalf("expected markup-insensitive hash: %q vs %q", plain, markedUp)
	}
}
