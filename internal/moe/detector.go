package moe

import (
	"time"

	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// State is the battle lifecycle phase derived from the damage stream.
type State int

const (
	StateIdle State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "idle"
	}
}

// DetectorConfig tunes how a run of zero readings is confirmed as a
// battle end. Both gates must hold before Ended is emitted: the frame
// count absorbs single-frame misreads, the wall-clock gap absorbs
// sampling stalls where few frames cover a long stretch.
type DetectorConfig struct {
	// ZeroFramesRequired is the minimum run of consecutive zero
	// readings while in battle.
	ZeroFramesRequired int

	// ResetGap is the minimum time since the last nonzero reading.
	ResetGap time.Duration
}

// DefaultDetectorConfig matches sampling at roughly 2 Hz.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ZeroFramesRequired: 3,
		ResetGap:           3 * time.Second,
	}
}

// Detector is a state machine over combined-damage readings. The HUD
// counter holds its value during a battle and resets to zero when the
// battle screen goes away, so a confirmed zero run marks the boundary.
// Not safe for concurrent use; the tracker serializes access.
type Detector struct {
	cfg   DetectorConfig
	clock timeutil.Clock

	inBattle         bool
	lastNonzero      int
	lastNonzeroAt    time.Time
	consecutiveZeros int
	battleCount      int
}

// NewDetector builds a detector using the given clock.
func NewDetector(cfg DetectorConfig, clock timeutil.Clock) *Detector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Detector{cfg: cfg, clock: clock}
}

// Observe advances the state machine with one combined-damage reading.
// StateEnded is returned at most once per battle, on the reading that
// confirms the end; LastBattleDamage then holds the finalized total.
func (d *Detector) Observe(damage int) State {
	if damage > 0 {
		d.consecutiveZeros = 0
		d.lastNonzero = damage
		d.lastNonzeroAt = d.clock.Now()
		if !d.inBattle {
			d.inBattle = true
			d.battleCount++
		}
		return StateActive
	}

	if !d.inBattle {
		return StateIdle
	}

	d.consecutiveZeros++
	if d.consecutiveZeros >= d.cfg.ZeroFramesRequired && d.clock.Since(d.lastNonzeroAt) >= d.cfg.ResetGap {
		d.inBattle = false
		return StateEnded
	}
	return StateActive
}

// LastBattleDamage returns the last nonzero reading, which at the Ended
// transition is the finalized damage for the battle just confirmed.
func (d *Detector) LastBattleDamage() int { return d.lastNonzero }

// InBattle reports whether a battle is currently considered live.
func (d *Detector) InBattle() bool { return d.inBattle }

// BattleCount returns how many battles have started since the last Reset.
func (d *Detector) BattleCount() int { return d.battleCount }

// Reset clears all state, used when tracking switches vehicles.
func (d *Detector) Reset() {
	d.inBattle = false
	d.lastNonzero = 0
	d.lastNonzeroAt = time.Time{}
	d.consecutiveZeros = 0
	d.battleCount = 0
}
