package moe

import (
	"log"
	"sync"

	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// TrackerConfig bundles the estimation tunables.
type TrackerConfig struct {
	// Alpha is the EMA smoothing factor; zero selects DefaultAlpha.
	Alpha    float64
	Detector DetectorConfig
}

// DefaultTrackerConfig returns the production defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Alpha:    DefaultAlpha,
		Detector: DefaultDetectorConfig(),
	}
}

// pendingCorrection snapshots the estimate right before a battle was
// folded in, so the authoritative value can replace the optical one.
type pendingCorrection struct {
	emaBefore float64
	damage    int
}

// Tracker owns the estimate for the vehicle currently being tracked. It
// advances the lifecycle detector per reading, folds finished battles
// into the average, and keeps the snapshot needed to retroactively
// correct the last battle. The mutex serializes the sampling loop's
// OnReading against the correction task's CorrectLastBattle.
type Tracker struct {
	mu       sync.Mutex
	cfg      TrackerConfig
	detector *Detector
	logf     func(format string, args ...any)

	tankID             int
	tankName           string
	ema                float64
	targetDamage       float64
	sessionStartMoe    float64
	battlesThisSession int
	pending            *pendingCorrection
	lastReading        DamageReading
	lastState          State
}

// NewTracker builds a tracker. clock and logf may be nil for the real
// clock and the standard logger.
func NewTracker(cfg TrackerConfig, clock timeutil.Clock, logf func(string, ...any)) *Tracker {
	if cfg.Alpha <= 0 {
		cfg.Alpha = DefaultAlpha
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Tracker{
		cfg:      cfg,
		detector: NewDetector(cfg.Detector, clock),
		logf:     logf,
	}
}

// OnReading feeds one sampled reading through the detector and returns
// the resulting snapshot. The second return is true when this reading
// confirmed a battle end, meaning the damage was just folded into the
// average and a correction may now be scheduled.
func (t *Tracker) OnReading(r DamageReading) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastReading = r
	t.lastState = t.detector.Observe(r.Combined())

	ended := t.lastState == StateEnded
	if ended {
		damage := t.detector.LastBattleDamage()
		t.pending = &pendingCorrection{emaBefore: t.ema, damage: damage}
		t.ema = Update(t.ema, float64(damage), t.cfg.Alpha)
		t.battlesThisSession++
		t.logf("[Tracker] battle %d ended: damage=%d ema=%.1f moe=%.2f%%",
			t.battlesThisSession, damage, t.ema, t.moePercentLocked(t.ema))
	}
	return t.liveSnapshotLocked(), ended
}

// CorrectLastBattle replaces the last folded-in battle damage with the
// authoritative value, recomputing the average from the pre-battle
// snapshot. Returns false when no correction is pending: none was
// scheduled, it was already applied, or a vehicle switch discarded it.
func (t *Tracker) CorrectLastBattle(damage int) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		return Snapshot{}, false
	}
	p := t.pending
	t.pending = nil
	before := t.moePercentLocked(t.ema)
	t.ema = Update(p.emaBefore, float64(damage), t.cfg.Alpha)
	t.logf("[Tracker] corrected battle: optical=%d authoritative=%d moe %.2f%% -> %.2f%%",
		p.damage, damage, before, t.moePercentLocked(t.ema))
	return t.settledSnapshotLocked(), true
}

// SwitchTank points the tracker at a different vehicle, seeding the
// average from the given progress. Any pending correction belongs to the
// previous vehicle and is discarded.
func (t *Tracker) SwitchTank(tankID int, name string, targetDamage, moePercent float64) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tankID = tankID
	t.tankName = name
	t.targetDamage = targetDamage
	// Linear percent-to-damage mapping. The live ranking formula is not
	// public; this approximation is only used to seed and display.
	t.ema = targetDamage * moePercent / 100
	t.sessionStartMoe = moePercent
	t.battlesThisSession = 0
	t.pending = nil
	t.lastReading = DamageReading{}
	t.lastState = StateIdle
	t.detector.Reset()

	t.logf("[Tracker] tracking %s (id=%d) target=%.0f moe=%.2f%%", name, tankID, targetDamage, moePercent)
	return t.settledSnapshotLocked()
}

// SetTarget replaces the target damage threshold, for when thresholds
// arrive after tracking already started.
func (t *Tracker) SetTarget(targetDamage float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targetDamage = targetDamage
}

// SetMoePercent overrides the running average from an externally known
// progress percentage, using the same linear mapping as SwitchTank.
func (t *Tracker) SetMoePercent(moePercent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ema = t.targetDamage * moePercent / 100
	t.logf("[Tracker] moe set externally: %.2f%% (ema=%.1f)", moePercent, t.ema)
}

// Snapshot returns the current published state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveSnapshotLocked()
}

// EMA returns the unrounded running average for persistence.
func (t *Tracker) EMA() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ema
}

// MoePercent returns the unrounded progress percentage.
func (t *Tracker) MoePercent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moePercentLocked(t.ema)
}

// TankID returns the tracked vehicle id, zero before the first switch.
func (t *Tracker) TankID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tankID
}

// BattlesToTarget estimates how many battles at avgDamage reach the
// configured target from the current average.
func (t *Tracker) BattlesToTarget(avgDamage float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return BattlesToTarget(t.ema, t.targetDamage, avgDamage, t.cfg.Alpha, DefaultMaxBattles)
}

func (t *Tracker) moePercentLocked(ema float64) float64 {
	if t.targetDamage <= 0 {
		return 0
	}
	p := ema / t.targetDamage * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// liveSnapshotLocked projects the displayed percentage through the last
// reading, so the overlay shows what the estimate becomes if the battle
// ended right now; the session delta follows the projection.
func (t *Tracker) liveSnapshotLocked() Snapshot {
	projected := t.moePercentLocked(Project(t.ema, float64(t.lastReading.Combined()), t.cfg.Alpha))
	return t.buildSnapshotLocked(projected, projected-t.sessionStartMoe)
}

// settledSnapshotLocked reports the committed estimate with no projection,
// used right after a correction or a vehicle switch.
func (t *Tracker) settledSnapshotLocked() Snapshot {
	moe := t.moePercentLocked(t.ema)
	return t.buildSnapshotLocked(moe, moe-t.sessionStartMoe)
}

func (t *Tracker) buildSnapshotLocked(projected, delta float64) Snapshot {
	return Snapshot{
		TankID:              t.tankID,
		TankName:            t.tankName,
		MoePercent:          round2(t.moePercentLocked(t.ema)),
		ProjectedMoePercent: round2(projected),
		Delta:               round2(delta),
		EMA:                 round1(t.ema),
		TargetDamage:        t.targetDamage,
		DirectDamage:        t.lastReading.Direct,
		AssistedDamage:      t.lastReading.Assisted,
		CombinedDamage:      t.lastReading.Combined(),
		BattlesThisSession:  t.battlesThisSession,
		InBattle:            t.detector.InBattle(),
		Status:              t.lastState.String(),
	}
}
