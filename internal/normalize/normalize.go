// Package normalize holds the pure canonicalization functions used by the
// clustering engine: URL canonicalization, text cleaning and content
// hashing. Everything here is deterministic and side-effect free.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

var indexSuffixes = []string{"/index.html", "/index.php"}

// NormalizeURL canonicalizes a URL for exact-duplicate matching: lowercased
// scheme and host, no www. prefix, tracking parameters removed, no fragment,
// no trailing slash or index suffix, query re-serialized sorted by key with
// values sorted within each key. Malformed input falls back to a lowercased
// trimmed copy rather than failing, so ingestion never stalls on a bad URL.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			host = host + ":" + port
		}
	}
	parsed.Host = host

	parsed.Fragment = ""
	path := strings.TrimSpace(parsed.EscapedPath())
	for _, suffix := range indexSuffixes {
		if strings.HasSuffix(strings.ToLower(path), suffix) {
			path = path[:len(path)-len(suffix)]
			break
		}
	}
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}
	parsed.Path = path
	parsed.RawPath = ""

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String()
}

// CleanText strips HTML tags, drops non-alphanumeric characters, collapses
// whitespace and lowercases. Empty input yields an empty string.
func CleanText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	text := trimmed
	if strings.ContainsRune(trimmed, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed)); err == nil {
			text = doc.Text()
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ContentHash returns the SHA-1 hex digest of the cleaned title and content
// joined by a single space. Both inputs empty yields an empty string, which
// signals "no content to hash" rather than being a valid digest.
func ContentHash(title, content string) string {
	cleanTitle := CleanText(title)
	cleanContent := CleanText(content)
	if cleanTitle == "" && cleanContent == "" {
		return ""
	}

	sum := sha1.Sum([]byte(cleanTitle + " " + cleanContent))
	return hex.EncodeToString(sum[:])
}
