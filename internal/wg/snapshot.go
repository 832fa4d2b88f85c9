package wg

// TankSnapshot is a point-in-time view of the authoritative cumulative
// counters for one vehicle. Immutable value type; two snapshots diff
// into a BattleDelta when exactly one battle separates them.
type TankSnapshot struct {
	TankID         int
	Battles        int
	MarksOnGun     int
	DamageDealt    int
	DamageAssisted int
}

// BattleDelta is what one battle contributed to the cumulative counters.
type BattleDelta struct {
	DamageDealt    int
	DamageAssisted int
	MarksBefore    int
	MarksAfter     int
}

// Combined is the server-side damage total used to correct the optical
// estimate. The HUD adds tracking and spotting assistance together while
// the service keeps them in separately-ruled counters, which is why the
// two sides disagree.
func (d BattleDelta) Combined() int { return d.DamageDealt + d.DamageAssisted }

// MarksChanged reports whether the mark level moved across the battle.
func (d BattleDelta) MarksChanged() bool { return d.MarksAfter != d.MarksBefore }

// DeltaTo returns the per-battle delta from s to after. The second
// return is false unless exactly one battle separates the snapshots:
// with zero battles there is nothing to attribute, with more than one
// the per-battle share cannot be isolated.
func (s TankSnapshot) DeltaTo(after TankSnapshot) (BattleDelta, bool) {
	if after.Battles-s.Battles != 1 {
		return BattleDelta{}, false
	}
	return BattleDelta{
		DamageDealt:    after.DamageDealt - s.DamageDealt,
		DamageAssisted: after.DamageAssisted - s.DamageAssisted,
		MarksBefore:    s.MarksOnGun,
		MarksAfter:     after.MarksOnGun,
	}, true
}
