// Package simhash implements the 32-bit locality-sensitive fingerprint
// used for near-duplicate story matching. Similar texts produce
// fingerprints within a small Hamming distance, so candidate comparison is
// a popcount instead of a full-text diff.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"horse.fit/lens/internal/normalize"
)

const (
	// Bits is the fingerprint width used by Similarity.
	Bits = 32
	// mask drops the top bit so fingerprints fit a signed 64-bit column
	// with headroom.
	mask = (uint32(1) << 31) - 1
)

// Fingerprint computes the simhash of a text over its unigram and bigram
// feature set. The second return value is false when the cleaned text has
// no features.
func Fingerprint(text string) (uint32, bool) {
	features := extractFeatures(text)
	if len(features) == 0 {
		return 0, false
	}

	var bitWeights [Bits]int
	for feature := range features {
		h := hashFeature(feature)
		for bit := 0; bit < Bits; bit++ {
			if h&(uint32(1)<<bit) != 0 {
				bitWeights[bit]++
			} else {
				bitWeights[bit]--
			}
		}
	}

	var result uint32
	for bit := 0; bit < Bits; bit++ {
		if bitWeights[bit] > 0 {
			result |= uint32(1) << bit
		}
	}
	return result & mask, true
}

// Similarity is 1 - hamming(a,b)/32. Reflexive and symmetric.
func Similarity(a, b uint32) float64 {
	return 1 - float64(bits.OnesCount32(a^b))/float64(Bits)
}

func extractFeatures(text string) map[string]struct{} {
	tokens := strings.Fields(normalize.CleanText(text))
	if len(tokens) == 0 {
		return nil
	}

	features := make(map[string]struct{}, len(tokens)*2)
	for i, token := range tokens {
		features[token] = struct{}{}
		if i+1 < len(tokens) {
			features[token+" "+tokens[i+1]] = struct{}{}
		}
	}
	return features
}

func hashFeature(feature string) uint32 {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(feature))
	return hasher.Sum32()
}
