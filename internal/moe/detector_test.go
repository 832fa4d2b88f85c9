package moe

import (
	"testing"
	"time"

	"github.com/gunmark-data/marks.report/internal/timeutil"
)

func newTestDetector(cfg DetectorConfig) (*Detector, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	return NewDetector(cfg, clock), clock
}

func TestDetector_IdleWithoutDamage(t *testing.T) {
	d, clock := newTestDetector(DefaultDetectorConfig())
	for i := 0; i < 5; i++ {
		if got := d.Observe(0); got != StateIdle {
			t.Fatalf("Observe(0) #%d = %v, want idle", i, got)
		}
		clock.Advance(500 * time.Millisecond)
	}
	if d.InBattle() || d.BattleCount() != 0 {
		t.Errorf("InBattle = %v, BattleCount = %d; want false, 0", d.InBattle(), d.BattleCount())
	}
}

func TestDetector_DamageStartsBattle(t *testing.T) {
	d, _ := newTestDetector(DefaultDetectorConfig())
	if got := d.Observe(500); got != StateActive {
		t.Fatalf("Observe(500) = %v, want active", got)
	}
	if !d.InBattle() || d.BattleCount() != 1 {
		t.Errorf("InBattle = %v, BattleCount = %d; want true, 1", d.InBattle(), d.BattleCount())
	}
}

func TestDetector_FullLifecycle(t *testing.T) {
	d, clock := newTestDetector(DefaultDetectorConfig())

	d.Observe(1000)

	// Zero run at 2 Hz: the frame gate clears after 3 zeros but the
	// time gate holds the battle open until 3 s have passed.
	for i := 1; i <= 5; i++ {
		clock.Advance(500 * time.Millisecond)
		if got := d.Observe(0); got != StateActive {
			t.Fatalf("zero #%d = %v, want active (cooldown)", i, got)
		}
	}
	clock.Advance(500 * time.Millisecond) // 3.0 s since last damage
	if got := d.Observe(0); got != StateEnded {
		t.Fatalf("zero #6 = %v, want ended", got)
	}
	if got := d.LastBattleDamage(); got != 1000 {
		t.Errorf("LastBattleDamage = %d, want 1000", got)
	}
	if d.InBattle() {
		t.Error("InBattle = true after end")
	}

	// Once ended, further zeros are plain idle.
	clock.Advance(500 * time.Millisecond)
	if got := d.Observe(0); got != StateIdle {
		t.Errorf("post-end zero = %v, want idle", got)
	}
}

func TestDetector_SingleZeroGlitchDoesNotEnd(t *testing.T) {
	d, clock := newTestDetector(DefaultDetectorConfig())

	d.Observe(1000)
	clock.Advance(10 * time.Second)
	if got := d.Observe(0); got != StateActive {
		t.Fatalf("lone zero = %v, want active despite long gap", got)
	}
	clock.Advance(500 * time.Millisecond)
	if got := d.Observe(1200); got != StateActive {
		t.Fatalf("recovered reading = %v, want active", got)
	}
	if d.BattleCount() != 1 {
		t.Errorf("BattleCount = %d, want 1 (same battle)", d.BattleCount())
	}
}

func TestDetector_FrameGateWithoutTimeGate(t *testing.T) {
	d, clock := newTestDetector(DefaultDetectorConfig())

	d.Observe(900)
	// Five rapid zeros satisfy the frame count long before 3 s elapse.
	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		if got := d.Observe(0); got != StateActive {
			t.Fatalf("rapid zero #%d = %v, want active", i, got)
		}
	}
}

func TestDetector_FinalizesLatestNonzeroReading(t *testing.T) {
	// The HUD counter is cumulative but a misread can go backwards; the
	// detector trusts the most recent nonzero value, not the maximum.
	cfg := DetectorConfig{ZeroFramesRequired: 2, ResetGap: 0}
	d, clock := newTestDetector(cfg)

	d.Observe(1200)
	clock.Advance(time.Second)
	d.Observe(900)
	clock.Advance(time.Second)
	d.Observe(0)
	clock.Advance(time.Second)
	if got := d.Observe(0); got != StateEnded {
		t.Fatalf("second zero = %v, want ended", got)
	}
	if got := d.LastBattleDamage(); got != 900 {
		t.Errorf("LastBattleDamage = %d, want 900", got)
	}
}

func TestDetector_TwoZerosFiveSecondsApart(t *testing.T) {
	cfg := DetectorConfig{ZeroFramesRequired: 2, ResetGap: 0}
	d, clock := newTestDetector(cfg)

	d.Observe(1000)
	clock.Advance(5 * time.Second)
	if got := d.Observe(0); got != StateActive {
		t.Fatalf("first zero = %v, want active", got)
	}
	clock.Advance(5 * time.Second)
	if got := d.Observe(0); got != StateEnded {
		t.Fatalf("second zero = %v, want ended", got)
	}
	if got := d.LastBattleDamage(); got != 1000 {
		t.Errorf("LastBattleDamage = %d, want 1000", got)
	}
}

func TestDetector_CountsConsecutiveBattles(t *testing.T) {
	cfg := DetectorConfig{ZeroFramesRequired: 1, ResetGap: 0}
	d, clock := newTestDetector(cfg)

	for battle := 1; battle <= 3; battle++ {
		d.Observe(battle * 1000)
		clock.Advance(time.Second)
		if got := d.Observe(0); got != StateEnded {
			t.Fatalf("battle %d end = %v, want ended", battle, got)
		}
		if got := d.LastBattleDamage(); got != battle*1000 {
			t.Errorf("battle %d damage = %d, want %d", battle, got, battle*1000)
		}
		clock.Advance(time.Second)
	}
	if got := d.BattleCount(); got != 3 {
		t.Errorf("BattleCount = %d, want 3", got)
	}
}

func TestDetector_Reset(t *testing.T) {
	d, clock := newTestDetector(DefaultDetectorConfig())

	d.Observe(1500)
	clock.Advance(time.Second)
	d.Reset()

	if d.InBattle() || d.BattleCount() != 0 || d.LastBattleDamage() != 0 {
		t.Errorf("after Reset: InBattle=%v BattleCount=%d LastBattleDamage=%d, want all zero",
			d.InBattle(), d.BattleCount(), d.LastBattleDamage())
	}
	if got := d.Observe(0); got != StateIdle {
		t.Errorf("Observe(0) after Reset = %v, want idle", got)
	}
}
