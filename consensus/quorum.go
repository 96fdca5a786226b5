package consensus

// NilCandidate is the tally key for votes cast for no block. Nil votes
// contribute to round bookkeeping but can never win a quorum.
const NilCandidate = ""

// Tally accumulates voting power per block hash for one (height,
// round, step) slot.
type Tally map[string]uint64

// Add credits power to the candidate.
func (t Tally) Add(candidate string, power uint64) {
	t[candidate] += power
}

// TwoThirdsThreshold returns the minimum power holding a strict
// greater-than-two-thirds share of totalPower. Computed by dividing
// first so the arithmetic cannot overflow for any uint64 total.
func TwoThirdsThreshold(totalPower uint64) uint64 {
	third := totalPower / 3
	twoThirds := third + third
	if totalPower%3 == 2 {
		twoThirds++
	}
	return twoThirds + 1
}

// Winner returns the candidate holding a strict greater-than-two-thirds
// share of totalPower, if any. The nil candidate is skipped: a quorum
// of nil votes means the round failed, not that "nothing" won. At most
// one candidate can satisfy the threshold, so the scan order does not
// matter. No quorum is a normal outcome, not an error.
func Winner(t Tally, totalPower uint64) (string, bool) {
	threshold := TwoThirdsThreshold(totalPower)
	for candidate, power := range t {
		if candidate == NilCandidate {
			continue
		}
		if power >= threshold {
			return candidate, true
		}
	}
	return "", false
}
