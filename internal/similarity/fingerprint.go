// Package similarity indexes committed requests by a lightweight text
// fingerprint and answers nearest-neighbor queries. The fingerprint is a
// deterministic hash-based vector, not a trained embedding: cheap, stable,
// and good enough to surface related requests.
package similarity

import (
	"math"
	"strings"
)

// DefaultDims is the fingerprint length.
const DefaultDims = 384

// Fingerprint maps text to a fixed-length unit vector. Each token is hashed
// character by character with positional weighting, the hash picks a slot by
// modular reduction, and the final vector is L2-normalized. Identical text
// always produces an identical vector.
func Fingerprint(text string, dims int) []float32 {
	if dims <= 0 {
		dims = DefaultDims
	}
	v := make([]float32, dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		v[tokenSlot(token, dims)]++
	}
	normalize(v)
	return v
}

// tokenSlot hashes the token's characters into a slot index. The polynomial
// accumulation weights each character by its position, so anagrams land in
// different slots.
func tokenSlot(token string, dims int) int {
	var h uint32
	for _, c := range token {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(dims))
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	mag := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= mag
	}
}

// dot is the similarity between two fingerprints. Both are unit vectors, so
// the dot product is their cosine similarity.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
