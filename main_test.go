package main

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"

	"github.com/gunmark-data/marks.report/internal/config"
	"github.com/gunmark-data/marks.report/internal/moe"
	"github.com/gunmark-data/marks.report/internal/store"
	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// testConfig returns a config whose database lives in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.EmptyConfig()
	dbPath := filepath.Join(t.TempDir(), "tracker.db")
	cfg.DBPath = &dbPath
	return cfg
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch("bogus", testConfig(t))
	if err == nil {
		t.Fatal("Expected an error for an unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Expected unknown-command error, got %v", err)
	}
}

func TestDispatchVersion(t *testing.T) {
	if err := dispatch("version", testConfig(t)); err != nil {
		t.Errorf("version command failed: %v", err)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	cfg := testConfig(t)
	if err := runMigrate(cfg); err != nil {
		t.Fatalf("migrate command failed: %v", err)
	}
	// Running again against the migrated database must be a no-op.
	if err := runMigrate(cfg); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestRunSessionsCommandEmpty(t *testing.T) {
	if err := runSessions(testConfig(t)); err != nil {
		t.Errorf("sessions command failed on empty database: %v", err)
	}
}

func TestCropFrame(t *testing.T) {
	frame := imaging.New(100, 50, color.NRGBA{R: 10, A: 255})
	marked := imaging.Paste(frame, imaging.New(20, 10, color.NRGBA{R: 200, A: 255}), image.Pt(30, 20))

	cropped := cropFrame(marked, config.Region{X: 30, Y: 20, Width: 20, Height: 10})
	if got := cropped.Bounds(); got.Dx() != 20 || got.Dy() != 10 {
		t.Fatalf("Expected 20x10 crop, got %dx%d", got.Dx(), got.Dy())
	}
	c := color.NRGBAModel.Convert(cropped.At(cropped.Bounds().Min.X, cropped.Bounds().Min.Y)).(color.NRGBA)
	if c.R != 200 {
		t.Errorf("Expected marked region in crop, got R=%d", c.R)
	}

	// An empty region leaves the frame untouched.
	same := cropFrame(marked, config.Region{})
	if same.Bounds() != marked.Bounds() {
		t.Errorf("Expected identity crop for empty region, got %v", same.Bounds())
	}
}

func TestRecordBattle(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	st, err := store.Open(filepath.Join(t.TempDir(), "tracker.db"), clock)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	if err := st.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	tracker := moe.NewTracker(moe.DefaultTrackerConfig(), clock, func(string, ...any) {})
	tracker.SwitchTank(42, "T110E5", 3800, 65.8)
	sessionID, err := st.StartSession(42, "T110E5", tracker.MoePercent(), tracker.EMA())
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	emaBefore, moeBefore := tracker.EMA(), tracker.MoePercent()
	battle := moe.DamageReading{Direct: 3000, Assisted: 0}

	// Drive the tracker through a full battle so the session counter
	// and estimate match what the loop would see.
	tracker.OnReading(battle)
	var snap moe.Snapshot
	ended := false
	for i := 0; i < 10 && !ended; i++ {
		clock.Advance(5 * time.Second)
		snap, ended = tracker.OnReading(moe.DamageReading{})
	}
	if !ended {
		t.Fatal("Expected the zero run to end the battle")
	}

	recordBattle(st, tracker, sessionID, snap, battle, emaBefore, moeBefore)

	history, err := st.BattleHistory(42, 0)
	if err != nil {
		t.Fatalf("BattleHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 battle, got %d", len(history))
	}
	// The battle ended on the third zero frame, 15 s after the clock seed.
	expected := store.BattleRecord{
		ID:             1,
		SessionID:      sessionID,
		TankID:         42,
		DirectDamage:   3000,
		AssistedDamage: 0,
		CombinedDamage: 3000,
		EmaBefore:      emaBefore,
		EmaAfter:       tracker.EMA(),
		MoeBefore:      moeBefore,
		MoeAfter:       tracker.MoePercent(),
		PlayedAt:       1700000015.0,
	}
	if diff := cmp.Diff(expected, history[0]); diff != "" {
		t.Errorf("Battle record mismatch (-want +got):\n%s", diff)
	}

	state, ok, err := st.LoadEma(42)
	if err != nil || !ok {
		t.Fatalf("LoadEma failed: ok=%v err=%v", ok, err)
	}
	if state.Ema != tracker.EMA() {
		t.Errorf("Expected checkpoint ema %.4f, got %.4f", tracker.EMA(), state.Ema)
	}

	sessions, err := st.TankSessions(42, 0)
	if err != nil {
		t.Fatalf("TankSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Battles != 1 {
		t.Errorf("Expected 1 session with 1 battle, got %+v", sessions)
	}
}
