// Package progression derives experience and level from tracker activity.
// Both functions are pure: experience is the sum of per-tracker checked-day
// counts, and level is a monotonic step function of experience. Callers
// recompute from the full tracker set after every mutation, so the stored
// values never drift from tracker state.
package progression

// DefaultStep is the experience span of one level band.
const DefaultStep = 10

// Experience sums per-tracker checked-day counts. Negative counts are
// ignored rather than subtracted; the store never produces them.
func Experience(counts []int) int {
	total := 0
	for _, c := range counts {
		if c > 0 {
			total += c
		}
	}
	return total
}

// LevelFor maps experience onto a 1-based level using fixed bands of `step`
// experience each. A non-positive step falls back to DefaultStep.
func LevelFor(exp, step int) int {
	if step <= 0 {
		step = DefaultStep
	}
	if exp < 0 {
		exp = 0
	}
	return exp/step + 1
}
