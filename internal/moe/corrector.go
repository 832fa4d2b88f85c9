package moe

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gunmark-data/marks.report/internal/timeutil"
	"github.com/gunmark-data/marks.report/internal/wg"
)

// SnapshotSource supplies cumulative service counters for one vehicle.
// forceFresh must bypass any caching layer in front of the service.
type SnapshotSource interface {
	TankSnapshot(ctx context.Context, tankID int, forceFresh bool) (wg.TankSnapshot, bool, error)
}

// Correction polling defaults, sized around how far the console API lags
// a finished battle.
const (
	DefaultCorrectionAttempts  = 5
	DefaultCorrectionBaseDelay = 10 * time.Second
)

// CorrectorConfig bounds the polling loop. Attempt n sleeps
// BaseDelay * 2^n before fetching.
type CorrectorConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultCorrectorConfig returns the production polling schedule.
func DefaultCorrectorConfig() CorrectorConfig {
	return CorrectorConfig{
		MaxAttempts: DefaultCorrectionAttempts,
		BaseDelay:   DefaultCorrectionBaseDelay,
	}
}

// CorrectorHooks observe the outcome of a correction task. Both are
// optional and run on the polling goroutine before the task finishes, so
// a corrected snapshot is persisted and broadcast before a newer battle
// can supersede it.
type CorrectorHooks struct {
	// Corrected fires after the estimate is rewritten with service data.
	Corrected func(snap Snapshot, delta wg.BattleDelta)
	// MarkChange fires when the service reports a different mark count.
	MarkChange func(before, after int)
}

// Corrector reconciles screen-read battle damage against the stats
// service. Each battle end starts one background polling task; a newer
// battle end cancels and awaits the previous task, so at most one runs.
type Corrector struct {
	tracker *Tracker
	source  SnapshotSource
	clock   timeutil.Clock
	cfg     CorrectorConfig
	hooks   CorrectorHooks
	logf    func(format string, args ...any)

	mu       sync.Mutex
	baseline wg.TankSnapshot
	haveBase bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCorrector wires a corrector for the given tracker and service
// source. A nil clock uses real time; a nil logf uses the standard
// logger.
func NewCorrector(tracker *Tracker, source SnapshotSource, clock timeutil.Clock, cfg CorrectorConfig, hooks CorrectorHooks, logf func(string, ...any)) *Corrector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultCorrectionAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultCorrectionBaseDelay
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Corrector{
		tracker: tracker,
		source:  source,
		clock:   clock,
		cfg:     cfg,
		hooks:   hooks,
		logf:    logf,
	}
}

// SetBaseline records the pre-battle service counters the next task will
// diff against. Called at startup and on vehicle switch.
func (c *Corrector) SetBaseline(snap wg.TankSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseline = snap
	c.haveBase = true
}

// Baseline returns the current baseline snapshot, if one is set.
func (c *Corrector) Baseline() (wg.TankSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseline, c.haveBase
}

// OnBattleEnd starts a correction task for the battle that just ended.
// Any in-flight task is cancelled and awaited first. Returns the task id
// for log correlation, or "" when no baseline exists to diff against.
func (c *Corrector) OnBattleEnd(ctx context.Context) string {
	c.abortInFlight()

	c.mu.Lock()
	if !c.haveBase {
		c.mu.Unlock()
		c.logf("[Corrector] no baseline snapshot, skipping correction")
		return ""
	}
	before := c.baseline
	taskID := fmt.Sprintf("corr_%s", uuid.NewString())
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, taskID, before, done)
	return taskID
}

// Shutdown cancels any in-flight task and waits for it to finish.
func (c *Corrector) Shutdown() {
	c.abortInFlight()
}

// Wait blocks until the current task, if any, finishes on its own.
func (c *Corrector) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Corrector) abortInFlight() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Corrector) run(ctx context.Context, taskID string, before wg.TankSnapshot, done chan struct{}) {
	newBase, adopt := c.poll(ctx, taskID, before)

	c.mu.Lock()
	if adopt {
		c.baseline = newBase
		c.haveBase = true
	}
	if c.done == done {
		c.cancel = nil
		c.done = nil
	}
	c.mu.Unlock()
	close(done)
}

// poll fetches fresh snapshots with exponential backoff until the
// service shows the finished battle. The second return reports whether
// the returned snapshot should replace the baseline.
func (c *Corrector) poll(ctx context.Context, taskID string, before wg.TankSnapshot) (wg.TankSnapshot, bool) {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		delay := c.cfg.BaseDelay * (1 << attempt)
		select {
		case <-ctx.Done():
			c.logf("[Corrector] %s cancelled", taskID)
			return before, false
		case <-c.clock.After(delay):
		}

		after, ok, err := c.source.TankSnapshot(ctx, before.TankID, true)
		if err != nil {
			c.logf("[Corrector] %s attempt %d/%d: %v", taskID, attempt+1, c.cfg.MaxAttempts, err)
			continue
		}
		if !ok || after.Battles == before.Battles {
			continue
		}

		delta, ok := before.DeltaTo(after)
		if !ok {
			// More than one battle landed since the baseline; there is
			// no way to attribute damage to the one that just ended.
			c.logf("[Corrector] %s: battle count moved %d -> %d, skipping correction",
				taskID, before.Battles, after.Battles)
			return after, true
		}

		snap, applied := c.tracker.CorrectLastBattle(delta.Combined())
		if !applied {
			c.logf("[Corrector] %s: no battle pending correction", taskID)
			return after, true
		}
		c.logf("[Corrector] %s: corrected with %d combined damage (dealt %d, assisted %d)",
			taskID, delta.Combined(), delta.DamageDealt, delta.DamageAssisted)
		if delta.MarksChanged() && c.hooks.MarkChange != nil {
			c.hooks.MarkChange(delta.MarksBefore, delta.MarksAfter)
		}
		if c.hooks.Corrected != nil {
			c.hooks.Corrected(snap, delta)
		}
		return after, true
	}

	c.logf("[Corrector] %s: service never showed the battle after %d attempts",
		taskID, c.cfg.MaxAttempts)
	return before, false
}
