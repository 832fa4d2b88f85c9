package wg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gunmark-data/marks.report/internal/httputil"
	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// The official API does not expose the damage thresholds behind the
// 65/85/95 percent marks; community sites tracking server population
// data do. Primary source is wotconsole.info, with manual entry as the
// fallback of last resort.
const (
	marksBaseURL = "https://wotconsole.info/marks"

	// ThresholdCacheTTL is how long fetched thresholds stay fresh.
	ThresholdCacheTTL = 24 * time.Hour

	thresholdCacheFile = "moe_thresholds.json"
	fetchTimeout       = 10 * time.Second
)

// MoeThresholds holds the combined-damage thresholds for one vehicle's
// marks. FetchedAt is unix seconds so the disk cache stays a plain
// portable JSON file.
type MoeThresholds struct {
	TankID    int     `json:"tank_id"`
	TankName  string  `json:"tank_name"`
	Mark65    float64 `json:"mark_65"`
	Mark85    float64 `json:"mark_85"`
	Mark95    float64 `json:"mark_95"`
	FetchedAt float64 `json:"fetched_at"`
}

// TargetForMark returns the damage threshold for mark level 1, 2 or 3.
func (m MoeThresholds) TargetForMark(level int) (float64, error) {
	switch level {
	case 1:
		return m.Mark65, nil
	case 2:
		return m.Mark85, nil
	case 3:
		return m.Mark95, nil
	}
	return 0, fmt.Errorf("invalid mark level %d, must be 1, 2 or 3", level)
}

// Stale reports whether the data is past its TTL at the given time.
func (m MoeThresholds) Stale(now time.Time) bool {
	return now.Sub(time.Unix(int64(m.FetchedAt), 0)) > ThresholdCacheTTL
}

// ManualThresholds approximates a full threshold set from the single
// target the user knows, scaling the lower marks proportionally.
func ManualThresholds(tankID int, tankName string, targetDamage float64, now time.Time) MoeThresholds {
	return MoeThresholds{
		TankID:    tankID,
		TankName:  tankName,
		Mark65:    targetDamage * (65.0 / 95.0),
		Mark85:    targetDamage * (85.0 / 95.0),
		Mark95:    targetDamage,
		FetchedAt: float64(now.Unix()),
	}
}

// ThresholdProvider resolves thresholds through a memory cache, a disk
// cache, the community site, and finally any stale disk data.
type ThresholdProvider struct {
	mu    sync.Mutex
	mem   map[int]MoeThresholds
	dir   string
	http  httputil.Client
	clock timeutil.Clock
	logf  func(format string, args ...any)
}

// NewThresholdProvider builds a provider caching under dir.
func NewThresholdProvider(dir string, httpClient httputil.Client, clock timeutil.Clock, logf func(string, ...any)) *ThresholdProvider {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logf == nil {
		logf = log.Printf
	}
	return &ThresholdProvider{
		mem:   map[int]MoeThresholds{},
		dir:   dir,
		http:  httpClient,
		clock: clock,
		logf:  logf,
	}
}

func (p *ThresholdProvider) cachePath() string {
	return filepath.Join(p.dir, thresholdCacheFile)
}

// Cached returns fresh thresholds from memory or disk, promoting disk
// hits into memory. The second return is false on a miss or stale data.
func (p *ThresholdProvider) Cached(tankID int) (MoeThresholds, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cachedLocked(tankID)
}

func (p *ThresholdProvider) cachedLocked(tankID int) (MoeThresholds, bool) {
	now := p.clock.Now()
	if m, ok := p.mem[tankID]; ok && !m.Stale(now) {
		return m, true
	}
	disk := p.loadDisk()
	if m, ok := disk[strconv.Itoa(tankID)]; ok && !m.Stale(now) {
		p.mem[tankID] = m
		return m, true
	}
	return MoeThresholds{}, false
}

// All returns every cached entry, fresh or stale, sorted by tank id.
func (p *ThresholdProvider) All() []MoeThresholds {
	p.mu.Lock()
	defer p.mu.Unlock()

	merged := p.loadDisk()
	for id, m := range p.mem {
		merged[strconv.Itoa(id)] = m
	}
	out := make([]MoeThresholds, 0, len(merged))
	for _, m := range merged {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TankID < out[j].TankID })
	return out
}

// Get resolves thresholds for a vehicle, fetching from the community
// site when no fresh cache exists. Stale disk data is returned as a last
// resort. The second return is false when nothing at all is known.
func (p *ThresholdProvider) Get(ctx context.Context, tankID int, tankName string) (MoeThresholds, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.cachedLocked(tankID); ok {
		return m, true
	}

	if m, ok := p.fetch(ctx, tankID, tankName); ok {
		p.storeLocked(m)
		return m, true
	}

	disk := p.loadDisk()
	if m, ok := disk[strconv.Itoa(tankID)]; ok {
		p.logf("[Thresholds] using stale cache for tank %d", tankID)
		return m, true
	}
	return MoeThresholds{}, false
}

// SetManual stores user-provided thresholds derived from one target.
func (p *ThresholdProvider) SetManual(tankID int, tankName string, targetDamage float64) MoeThresholds {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := ManualThresholds(tankID, tankName, targetDamage, p.clock.Now())
	p.storeLocked(m)
	return m
}

func (p *ThresholdProvider) fetch(ctx context.Context, tankID int, tankName string) (MoeThresholds, bool) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%d", marksBaseURL, tankID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MoeThresholds{}, false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		p.logf("[Thresholds] fetch failed for tank %d: %v", tankID, err)
		return MoeThresholds{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.logf("[Thresholds] wotconsole.info returned %d for tank %d", resp.StatusCode, tankID)
		return MoeThresholds{}, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return MoeThresholds{}, false
	}

	m, ok := parseMarksPage(tankID, tankName, string(body), p.clock.Now())
	if !ok {
		p.logf("[Thresholds] no threshold data in page for tank %d", tankID)
		return MoeThresholds{}, false
	}
	return m, true
}

// markValuePattern finds a percent label followed, within a short run of
// markup, by a damage figure (possibly with thousands separators). The
// leading non-digit guard keeps "165%" from reading as "65%".
var markValuePattern = regexp.MustCompile(`(?:^|[^\d])(\d{2})\s*%\D{0,120}?(\d[\d,]*)`)

// parseMarksPage pulls the 65/85/95 damage values out of the marks page.
// Best effort: the page layout is not ours, so any missing value fails
// the whole parse and the caller falls back to cached or manual data.
func parseMarksPage(tankID int, tankName, page string, now time.Time) (MoeThresholds, bool) {
	values := map[string]float64{}
	for _, match := range markValuePattern.FindAllStringSubmatch(page, -1) {
		label := match[1]
		if label != "65" && label != "85" && label != "95" {
			continue
		}
		if _, seen := values[label]; seen {
			continue
		}
		raw := strings.ReplaceAll(match[2], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			continue
		}
		values[label] = v
	}
	if len(values) != 3 {
		return MoeThresholds{}, false
	}
	return MoeThresholds{
		TankID:    tankID,
		TankName:  tankName,
		Mark65:    values["65"],
		Mark85:    values["85"],
		Mark95:    values["95"],
		FetchedAt: float64(now.Unix()),
	}, true
}

// storeLocked writes thresholds to both cache layers.
func (p *ThresholdProvider) storeLocked(m MoeThresholds) {
	p.mem[m.TankID] = m
	disk := p.loadDisk()
	disk[strconv.Itoa(m.TankID)] = m
	p.saveDisk(disk)
}

func (p *ThresholdProvider) loadDisk() map[string]MoeThresholds {
	data := map[string]MoeThresholds{}
	raw, err := os.ReadFile(p.cachePath())
	if err != nil {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		p.logf("[Thresholds] corrupt cache file, ignoring: %v", err)
		return map[string]MoeThresholds{}
	}
	return data
}

func (p *ThresholdProvider) saveDisk(data map[string]MoeThresholds) {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.logf("[Thresholds] cache dir: %v", err)
		return
	}
	if err := os.WriteFile(p.cachePath(), raw, 0o644); err != nil {
		p.logf("[Thresholds] write cache: %v", err)
	}
}
