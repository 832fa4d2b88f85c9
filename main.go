package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/disintegration/imaging"

	"github.com/gunmark-data/marks.report/internal/capture"
	"github.com/gunmark-data/marks.report/internal/config"
	"github.com/gunmark-data/marks.report/internal/moe"
	"github.com/gunmark-data/marks.report/internal/server"
	"github.com/gunmark-data/marks.report/internal/store"
	"github.com/gunmark-data/marks.report/internal/vision"
	"github.com/gunmark-data/marks.report/internal/wg"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode: loop replayed frames and serve static files from disk")
	listen     = flag.String("listen", "", "Listen address (overrides the configured http_addr)")
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	framesDir  = flag.String("frames", "frames", "Directory the frame feeder writes captures to")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := dispatch(flag.Arg(0), cfg); err != nil {
		log.Fatal(err)
	}
}

// snapshotSource binds the resolved account id so the corrector can ask
// for one vehicle's counters.
type snapshotSource struct {
	client    *wg.Client
	accountID int
}

func (s snapshotSource) TankSnapshot(ctx context.Context, tankID int, forceFresh bool) (wg.TankSnapshot, bool, error) {
	return s.client.GetTankSnapshot(ctx, s.accountID, tankID, forceFresh)
}

// startupData is everything resolved before tracking starts.
type startupData struct {
	client    *wg.Client
	accountID int
	tankID    int
	tankName  string
	target    float64
	moe       float64
	baseline  wg.TankSnapshot
	haveBase  bool
}

// resolveStartupData figures out what to track. Without a gamertag the
// daemon runs offline on the configured target and progress; with one it
// resolves the account, picks the most recently played vehicle, and
// seeds the estimate from the persisted checkpoint or the earned marks.
func resolveStartupData(ctx context.Context, cfg *config.Config, st *store.Store) (startupData, error) {
	data := startupData{
		target: float64(cfg.GetTargetDamage()),
		moe:    cfg.GetCurrentMoePercent(),
	}

	gamertag := cfg.GetGamertag()
	if gamertag == "" {
		log.Printf("no gamertag configured, running offline (target=%.0f moe=%.2f%%)", data.target, data.moe)
		return data, nil
	}

	client, err := wg.NewClient(cfg.GetAppID(), cfg.GetPlatform(), nil, nil, nil)
	if err != nil {
		return startupData{}, err
	}
	data.client = client

	accountID, found, err := client.ResolveGamertag(ctx, gamertag)
	if err != nil {
		return startupData{}, fmt.Errorf("failed to resolve gamertag %q: %w", gamertag, err)
	}
	if !found {
		return startupData{}, fmt.Errorf("gamertag %q not found on %s", gamertag, cfg.GetPlatform())
	}
	data.accountID = accountID

	tank, ok, err := client.DetectActiveTank(ctx, accountID)
	if err != nil {
		return startupData{}, fmt.Errorf("failed to detect active tank: %w", err)
	}
	if !ok {
		log.Printf("no recent battles for %s, starting with configured values", gamertag)
		return data, nil
	}
	data.tankID = tank.TankID
	data.tankName = lookupTankName(ctx, client, tank.TankID)

	if data.target <= 0 {
		data.target = resolveTargetDamage(ctx, cfg, tank, data.tankName)
	}

	// A persisted checkpoint beats the configured starting progress;
	// failing that, the earned marks give a coarse floor.
	if state, ok, err := st.LoadEma(tank.TankID); err == nil && ok {
		data.moe = state.MoePercent
		log.Printf("restored estimate for tank %d: ema=%.1f moe=%.2f%%", tank.TankID, state.Ema, state.MoePercent)
	} else if data.moe <= 0 {
		switch tank.MarksOnGun {
		case 1:
			data.moe = 65
		case 2:
			data.moe = 85
		case 3:
			data.moe = 95
		}
	}

	if snap, ok, err := client.GetTankSnapshot(ctx, accountID, tank.TankID, false); err == nil && ok {
		data.baseline = snap
		data.haveBase = true
	} else if err != nil {
		log.Printf("no baseline snapshot, corrections disabled until one arrives: %v", err)
	}
	return data, nil
}

// resolveTargetDamage asks the community threshold source for the damage
// behind the next mark level.
func resolveTargetDamage(ctx context.Context, cfg *config.Config, tank wg.TankStats, tankName string) float64 {
	provider := wg.NewThresholdProvider(cfg.GetCacheDir(), nil, nil, nil)
	thresholds, ok := provider.Get(ctx, tank.TankID, tankName)
	if !ok {
		log.Printf("no thresholds for tank %d, target stays unset", tank.TankID)
		return 0
	}
	level := tank.MarksOnGun + 1
	if level > 3 {
		level = 3
	}
	target, err := thresholds.TargetForMark(level)
	if err != nil || target <= 0 {
		return 0
	}
	log.Printf("target for mark %d on %s: %.0f combined damage", level, tankName, target)
	return target
}

func lookupTankName(ctx context.Context, client *wg.Client, tankID int) string {
	vehicles, err := client.GetVehicles(ctx, tankID)
	if err == nil {
		if info, ok := vehicles[strconv.Itoa(tankID)]; ok && info.Name != "" {
			return info.Name
		}
	}
	return fmt.Sprintf("Tank %d", tankID)
}

// cropFrame cuts the damage readout region out of a full frame. An empty
// region means the feeder already delivers cropped frames.
func cropFrame(frame image.Image, region config.Region) image.Image {
	if region.Empty() {
		return frame
	}
	return imaging.Crop(frame, image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height))
}

// recordBattle persists one finished battle: the estimate checkpoint,
// the battle log row, and the running session totals.
func recordBattle(st *store.Store, tracker *moe.Tracker, sessionID int64, snap moe.Snapshot, battle moe.DamageReading, emaBefore, moeBefore float64) {
	if snap.TankID != 0 {
		if err := st.SaveEma(snap.TankID, tracker.EMA(), tracker.MoePercent()); err != nil {
			log.Printf("failed to save estimate: %v", err)
		}
	}
	if _, err := st.LogBattle(store.BattleRecord{
		SessionID:      sessionID,
		TankID:         snap.TankID,
		DirectDamage:   battle.Direct,
		AssistedDamage: battle.Assisted,
		CombinedDamage: battle.Combined(),
		EmaBefore:      emaBefore,
		EmaAfter:       tracker.EMA(),
		MoeBefore:      moeBefore,
		MoeAfter:       tracker.MoePercent(),
	}); err != nil {
		log.Printf("failed to log battle: %v", err)
	}
	if sessionID != 0 {
		if err := st.UpdateSession(sessionID, tracker.MoePercent(), tracker.EMA(), snap.BattlesThisSession); err != nil {
			log.Printf("failed to update session: %v", err)
		}
	}
}

func runDaemon(cfg *config.Config) error {
	addr := *listen
	if addr == "" {
		addr = cfg.GetHTTPAddr()
	}
	if addr == "" {
		return fmt.Errorf("listen address is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	lib, err := vision.LoadLibrary(cfg.GetTemplatesDir(), uint8(cfg.GetBinarizeThreshold()))
	if err != nil {
		// Degraded mode: the pipeline yields no readings until
		// templates exist, but the server and overlay still run.
		log.Printf("template library unavailable, readings disabled: %v", err)
		lib = vision.EmptyLibrary()
	}
	pipeline := vision.NewPipeline(lib, vision.Config{
		Threshold:           uint8(cfg.GetBinarizeThreshold()),
		Upscale:             cfg.GetUpscaleFactor(),
		MinGlyphArea:        cfg.GetMinGlyphArea(),
		ConfidenceThreshold: cfg.GetConfidenceThreshold(),
	})

	var source capture.Source
	if *devMode {
		replay, err := capture.NewReplaySource(*framesDir, true, nil)
		if err != nil {
			return fmt.Errorf("failed to open replay source: %v", err)
		}
		source = replay
	} else {
		watch, err := capture.NewWatchSource(*framesDir, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to watch frame directory: %v", err)
		}
		defer watch.Close()
		source = watch
	}

	tracker := moe.NewTracker(moe.TrackerConfig{
		Alpha: cfg.GetEmaAlpha(),
		Detector: moe.DetectorConfig{
			ZeroFramesRequired: cfg.GetZeroFrames(),
			ResetGap:           cfg.GetResetGap(),
		},
	}, nil, nil)
	hub := server.NewHub(nil)

	var wgrp sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := resolveStartupData(ctx, cfg, st)
	if err != nil {
		return err
	}

	var sessionID int64
	if data.tankID != 0 {
		tracker.SwitchTank(data.tankID, data.tankName, data.target, data.moe)
		sessionID, err = st.StartSession(data.tankID, data.tankName, tracker.MoePercent(), tracker.EMA())
		if err != nil {
			log.Printf("failed to start session: %v", err)
		}
	} else {
		tracker.SetTarget(data.target)
		if data.moe > 0 {
			tracker.SetMoePercent(data.moe)
		}
	}

	var corrSource moe.SnapshotSource
	if data.client != nil {
		corrSource = snapshotSource{client: data.client, accountID: data.accountID}
	}
	corrector := moe.NewCorrector(tracker, corrSource, nil, moe.CorrectorConfig{
		MaxAttempts: cfg.GetCorrectionAttempts(),
		BaseDelay:   cfg.GetCorrectionBaseDelay(),
	}, moe.CorrectorHooks{
		Corrected: func(snap moe.Snapshot, delta wg.BattleDelta) {
			if snap.TankID != 0 {
				if err := st.SaveEma(snap.TankID, tracker.EMA(), tracker.MoePercent()); err != nil {
					log.Printf("failed to save corrected estimate: %v", err)
				}
			}
			if sessionID != 0 {
				if err := st.UpdateSession(sessionID, tracker.MoePercent(), tracker.EMA(), snap.BattlesThisSession); err != nil {
					log.Printf("failed to update session: %v", err)
				}
			}
			hub.Publish(snap)
		},
		MarkChange: func(before, after int) {
			log.Printf("marks on gun changed: %d -> %d", before, after)
		},
	}, nil)
	if data.haveBase {
		corrector.SetBaseline(data.baseline)
	}

	// Sampling loop: capture, read, feed the tracker, broadcast. A
	// confirmed battle end also persists the battle and kicks off a
	// correction task.
	wgrp.Add(1)
	go func() {
		defer wgrp.Done()
		ticker := time.NewTicker(cfg.GetSampleInterval())
		defer ticker.Stop()

		ocrRegion := cfg.GetOCRRegion()
		var lastBattle moe.DamageReading
		for {
			select {
			case <-ctx.Done():
				log.Printf("sampling loop terminated")
				return
			case <-ticker.C:
				frame, ok := source.Grab()
				if !ok {
					continue
				}
				value, ok := pipeline.Read(cropFrame(frame, ocrRegion))
				if !ok {
					continue
				}
				reading := moe.DamageReading{Direct: value}
				if reading.Combined() > 0 {
					lastBattle = reading
				}
				emaBefore, moeBefore := tracker.EMA(), tracker.MoePercent()
				snap, ended := tracker.OnReading(reading)
				hub.Publish(snap)
				if ended {
					recordBattle(st, tracker, sessionID, snap, lastBattle, emaBefore, moeBefore)
					corrector.OnBattleEnd(ctx)
					lastBattle = moe.DamageReading{}
				}
			}
		}
	}()

	// HTTP server goroutine
	wgrp.Add(1)
	go func() {
		defer wgrp.Done()

		srv := server.NewServer(tracker, st, hub)
		ocr := cfg.GetOCRRegion()
		srv.EnablePreview(*framesDir, pipeline, image.Rect(ocr.X, ocr.Y, ocr.X+ocr.Width, ocr.Y+ocr.Height))
		mux := srv.ServeMux(server.StaticHandler(*devMode))

		// mount the admin debugging routes (accessible only in dev
		// mode or over Tailscale)
		st.AttachAdminRoutes(mux)

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		httpServer := &http.Server{
			Addr:    addr,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("overlay running, add a Browser Source in OBS: http://%s/", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		hub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wgrp.Wait()
	corrector.Shutdown()

	// Final checkpoint so a restart picks up where this run left off.
	if sessionID != 0 {
		if err := st.UpdateSession(sessionID, tracker.MoePercent(), tracker.EMA(), tracker.Snapshot().BattlesThisSession); err != nil {
			log.Printf("failed to finalize session: %v", err)
		}
	}
	if id := tracker.TankID(); id != 0 {
		if err := st.SaveEma(id, tracker.EMA(), tracker.MoePercent()); err != nil {
			log.Printf("failed to save estimate: %v", err)
		}
	}

	log.Printf("Graceful shutdown complete")
	return nil
}
