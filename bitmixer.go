package bisimulation

// Golden ratio bit mixer.
const phiC64 = uint64(0x9e3779b97f4a7c15)

// mix32 is the 32-bit finalization step of MurmurHash3.
func mix32(v int) int {
	k := uint32(v)
	k = (k ^ (k >> 16)) * 0x85ebca6b
	k = (k ^ (k >> 13)) * 0xc2b2ae35
	return int(k ^ (k >> 16))
}

// hashInts folds values into a 64-bit hash, order sensitive.
func hashInts(seed int, values []int) uint64 {
	h := uint64(mix32(seed))
	for _, v := range values {
		h = h*phiC64 + uint64(uint32(mix32(v)))
	}
	return h
}
