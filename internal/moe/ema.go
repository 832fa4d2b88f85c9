package moe

const (
	// DefaultAlpha is the EMA smoothing factor, 2/(N+1) with an
	// effective window of N=100 battles. This mirrors the rolling
	// window the mark formula itself is understood to use.
	DefaultAlpha = 2.0 / 101.0

	// DefaultMaxBattles caps the battles-to-target search.
	DefaultMaxBattles = 500
)

// Update folds one battle's damage into the running average.
func Update(current, damage, alpha float64) float64 {
	return current*(1-alpha) + damage*alpha
}

// Project returns the average a hypothetical next battle would produce,
// leaving the committed value untouched. Same formula as Update; the
// separate name marks call sites that must not mutate.
func Project(current, damage, alpha float64) float64 {
	return Update(current, damage, alpha)
}

// BattlesToTarget reports how many consecutive battles averaging
// avgDamage it takes for the running average to reach target, counting
// from 1. The second return is false when the target is unreachable:
// avgDamage is non-positive, or maxBattles iterations were not enough
// (the average converges toward avgDamage and never passes a target
// above it).
func BattlesToTarget(current, target, avgDamage, alpha float64, maxBattles int) (int, bool) {
	if avgDamage <= 0 {
		return 0, false
	}
	ema := current
	for n := 1; n <= maxBattles; n++ {
		ema = Update(ema, avgDamage, alpha)
		if ema >= target {
			return n, true
		}
	}
	return 0, false
}
