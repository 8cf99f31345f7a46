package nodeindex

import (
	"github.com/spaolacci/murmur3"
)

// HashFunc hashes the canonical byte form of a key.
type HashFunc func(b []byte) uint64

// RotatingHash is the default hash: h = (h << 4) + h + b for every byte,
// with no finalization. It is fast but diffuses poorly into the high bits,
// which is why table sizes should be prime.
func RotatingHash(b []byte) uint64 {
	var h uint64
	for _, c := range b {
		h = (h << 4) + h + uint64(c)
	}
	return h
}

// Murmur3 hashes with 64-bit murmur3. Use it for key sets known to cluster
// under the rotating hash.
func Murmur3(b []byte) uint64 {
	return murmur3.Sum64(b)
}

// Recommended table sizes. All are prime.
var recommendedSizes = []int{1009, 10007, 100003, 1000003, 10000019}

// RecommendedSizes returns the recommended prime table sizes in ascending order.
func RecommendedSizes() []int {
	out := make([]int, len(recommendedSizes))
	copy(out, recommendedSizes)
	return out
}

// RecommendedSize returns the smallest recommended prime that is at least
// the expected number of entries, or the largest one if none is.
func RecommendedSize(expected int) int {
	for _, p := range recommendedSizes {
		if p >= expected {
			return p
		}
	}
	return recommendedSizes[len(recommendedSizes)-1]
}

// IsRecommendedSize reports whether size is one of the recommended primes.
func IsRecommendedSize(size int) bool {
	for _, p := range recommendedSizes {
		if p == size {
			return true
		}
	}
	return false
}
