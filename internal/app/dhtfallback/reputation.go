package dhtfallback

import (
	"math"
	"math/bits"
)

// MaxReputation is the reputation of a participant that never downloaded.
const MaxReputation uint64 = math.MaxUint64

// CalculateReputation is the upload/download ratio scaled by 100.
// downloaded == 0 yields MaxReputation so seeders and newcomers are not
// locked out; results that do not fit in 64 bits saturate.
func CalculateReputation(uploaded, downloaded uint64) uint64 {
	if downloaded == 0 {
		return MaxReputation
	}
	hi, lo := bits.Mul64(uploaded, 100)
	if hi >= downloaded {
		return MaxReputation
	}
	q, _ := bits.Div64(hi, lo, downloaded)
	return q
}
