package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/gunmark-data/marks.report/internal/moe"
	"github.com/gunmark-data/marks.report/internal/store"
	"github.com/gunmark-data/marks.report/internal/timeutil"
	"github.com/gunmark-data/marks.report/internal/vision"
)

func newTestServer(t *testing.T) (*Server, *moe.Tracker, *store.Store, *timeutil.MockClock) {
	t.Helper()

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	st, err := store.Open(filepath.Join(t.TempDir(), "tracker.db"), clock)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := st.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tracker := moe.NewTracker(moe.DefaultTrackerConfig(), clock, silentLogf)
	srv := NewServer(tracker, st, NewHub(silentLogf))
	return srv, tracker, st, clock
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	mux := srv.ServeMux(nil)

	rec := get(t, mux, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("Expected ok, got %q", rec.Body.String())
	}
}

func TestStateEndpoint(t *testing.T) {
	srv, tracker, _, _ := newTestServer(t)
	mux := srv.ServeMux(nil)
	tracker.SwitchTank(42, "T110E5", 3800, 65.8)

	rec := get(t, mux, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var snap moe.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if snap.TankID != 42 || snap.TankName != "T110E5" {
		t.Errorf("Expected tank 42 T110E5, got %d %q", snap.TankID, snap.TankName)
	}
	if snap.MoePercent != 65.8 {
		t.Errorf("Expected moe 65.8, got %v", snap.MoePercent)
	}
	if snap.TargetDamage != 3800 {
		t.Errorf("Expected target 3800, got %v", snap.TargetDamage)
	}
	if snap.Status != "idle" {
		t.Errorf("Expected idle status, got %q", snap.Status)
	}
}

func TestStateMethodNotAllowed(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	mux := srv.ServeMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	srv, _, st, clock := newTestServer(t)
	mux := srv.ServeMux(nil)

	// An empty store must serve an empty array, not null.
	rec := get(t, mux, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("Expected empty array, got %q", body)
	}

	if _, err := st.StartSession(42, "T110E5", 65.8, 2500.4); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := st.StartSession(17, "Object 140", 40.0, 1400.0); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	var sessions []store.SessionRecord
	rec = get(t, mux, "/api/sessions")
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].TankID != 17 {
		t.Errorf("Expected newest session first, got tank %d", sessions[0].TankID)
	}

	rec = get(t, mux, "/api/sessions?tank_id=42")
	sessions = nil
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].TankID != 42 {
		t.Errorf("Expected only tank 42, got %+v", sessions)
	}

	rec = get(t, mux, "/api/sessions?limit=1")
	sessions = nil
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("Expected limit to apply, got %d sessions", len(sessions))
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, tracker, st, _ := newTestServer(t)
	mux := srv.ServeMux(nil)

	// No active tank and no tank_id leaves nothing to query.
	rec := get(t, mux, "/api/history")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without tank_id, got %d", rec.Code)
	}

	_, err := st.LogBattle(store.BattleRecord{
		TankID:         42,
		DirectDamage:   2000,
		AssistedDamage: 500,
		CombinedDamage: 2500,
		EmaBefore:      2500.4,
		EmaAfter:       2500.39,
		MoeBefore:      65.8,
		MoeAfter:       65.79,
	})
	if err != nil {
		t.Fatalf("LogBattle failed: %v", err)
	}

	var battles []store.BattleRecord
	rec = get(t, mux, "/api/history?tank_id=42")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&battles); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(battles) != 1 || battles[0].CombinedDamage != 2500 {
		t.Errorf("Expected 1 battle with 2500 damage, got %+v", battles)
	}

	// The active tank fills in when the query omits tank_id.
	tracker.SwitchTank(42, "T110E5", 3800, 65.8)
	rec = get(t, mux, "/api/history")
	battles = nil
	if err := json.NewDecoder(rec.Body).Decode(&battles); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(battles) != 1 {
		t.Errorf("Expected active-tank history, got %d battles", len(battles))
	}

	rec = get(t, mux, "/api/history?tank_id=999")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("Expected empty array for unknown tank, got %q", body)
	}
}

func TestStorelessEndpoints(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	tracker := moe.NewTracker(moe.DefaultTrackerConfig(), clock, silentLogf)
	srv := NewServer(tracker, nil, NewHub(silentLogf))
	mux := srv.ServeMux(nil)

	for _, path := range []string{"/api/sessions", "/api/history", "/charts/sessions", "/charts/history", "/plots/history.png"} {
		rec := get(t, mux, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for %s without a store, got %d", path, rec.Code)
		}
		var errBody map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
			t.Fatalf("Decode failed for %s: %v", path, err)
		}
		if errBody["error"] != "no session store" {
			t.Errorf("Expected store error for %s, got %q", path, errBody["error"])
		}
	}
}

func TestHubStatsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	mux := srv.ServeMux(nil)
	srv.hub.Publish(moe.Snapshot{TankID: 42})

	rec := get(t, mux, "/api/hub/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var stats HubStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if stats.Published != 1 {
		t.Errorf("Expected 1 published, got %d", stats.Published)
	}
}

func TestSessionsChartEndpoint(t *testing.T) {
	srv, _, st, _ := newTestServer(t)
	mux := srv.ServeMux(nil)
	if _, err := st.StartSession(42, "T110E5", 65.8, 2500.4); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	rec := get(t, mux, "/charts/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Expected html content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("Expected rendered page to reference echarts")
	}
}

func TestHistoryChartEndpoint(t *testing.T) {
	srv, tracker, st, _ := newTestServer(t)
	mux := srv.ServeMux(nil)
	tracker.SwitchTank(42, "T110E5", 3800, 65.8)
	if _, err := st.LogBattle(store.BattleRecord{TankID: 42, CombinedDamage: 2500, EmaAfter: 2500.39}); err != nil {
		t.Fatalf("LogBattle failed: %v", err)
	}

	rec := get(t, mux, "/charts/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "damage average") {
		t.Error("Expected average series in chart")
	}
	if !strings.Contains(body, "target") {
		t.Error("Expected target series for the active tank")
	}
}

func TestHistoryPlotEndpoint(t *testing.T) {
	srv, _, st, _ := newTestServer(t)
	mux := srv.ServeMux(nil)
	for i := 0; i < 3; i++ {
		rec := store.BattleRecord{TankID: 42, CombinedDamage: 2400 + i*100, EmaAfter: 2500 + float64(i)}
		if _, err := st.LogBattle(rec); err != nil {
			t.Fatalf("LogBattle failed: %v", err)
		}
	}

	rec := get(t, mux, "/plots/history.png?tank_id=42")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("Expected PNG magic bytes in response")
	}
}

func TestPreviewNotConfigured(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	mux := srv.ServeMux(nil)

	for _, path := range []string{"/api/frames", "/api/frames/file?name=x.png", "/api/preview"} {
		rec := get(t, mux, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for %s, got %d", path, rec.Code)
		}
	}
}

func TestPreviewEndpoints(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	framesDir := t.TempDir()
	pipeline := vision.NewPipeline(vision.EmptyLibrary(), vision.DefaultConfig())
	srv.EnablePreview(framesDir, pipeline, image.Rectangle{})
	mux := srv.ServeMux(nil)

	// Empty directory: the listing is an empty array, the preview 404s.
	rec := get(t, mux, "/api/frames")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("Expected empty array, got %q", body)
	}
	rec = get(t, mux, "/api/preview")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with no frames, got %d", rec.Code)
	}

	frame := imaging.New(40, 20, color.NRGBA{A: 255})
	if err := imaging.Save(frame, filepath.Join(framesDir, "frame_001.png")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var frames []frameInfo
	rec = get(t, mux, "/api/frames")
	if err := json.NewDecoder(rec.Body).Decode(&frames); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(frames) != 1 || frames[0].Name != "frame_001.png" {
		t.Fatalf("Expected frame_001.png listed, got %+v", frames)
	}

	rec = get(t, mux, "/api/frames/file?name=frame_001.png")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for frame download, got %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("Expected PNG bytes in download")
	}

	// Traversal attempts must not leave the frame directory.
	rec = get(t, mux, "/api/frames/file?name=..%2Fsecret.png")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d", rec.Code)
	}

	// A black frame yields no glyphs, so the diagnostic reports no
	// reading with an empty glyph list.
	var result previewResult
	rec = get(t, mux, "/api/preview")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if result.Frame != "frame_001.png" {
		t.Errorf("Expected newest frame picked, got %q", result.Frame)
	}
	if result.OK || len(result.Glyphs) != 0 {
		t.Errorf("Expected no reading from a black frame, got %+v", result)
	}
}

func TestStaticHandlerServesOverlay(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	mux := srv.ServeMux(StaticHandler(false))

	rec := get(t, mux, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "overlay") {
		t.Error("Expected overlay markup at root")
	}

	rec = get(t, mux, "/overlay.js")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for overlay.js, got %d", rec.Code)
	}
}
