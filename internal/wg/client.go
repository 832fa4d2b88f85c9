// Package wg is a client for the Wargaming World of Tanks Console API
// and the community sources that carry the data the official API lacks.
package wg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gunmark-data/marks.report/internal/httputil"
	"github.com/gunmark-data/marks.report/internal/timeutil"
)

// DemoAppID works for development with tight rate limits. Users register
// their own key at developers.wargaming.net.
const DemoAppID = "demo"

// Console API hosts per platform.
var baseURLs = map[string]string{
	"xbox": "https://api-xbox-console.worldoftanks.com/wotx",
	"ps":   "https://api-ps4-console.worldoftanks.com/wotx",
}

// snapshotCacheTTL bounds how long a tank snapshot is served from memory
// when the caller does not force a fresh fetch.
const snapshotCacheTTL = 60 * time.Second

// APIError is a non-ok envelope from the service.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wargaming api error %d: %s", e.Code, e.Message)
}

// PlayerResult is one account search hit.
type PlayerResult struct {
	AccountID int    `json:"account_id"`
	Nickname  string `json:"nickname"`
}

// PlayerInfo is the subset of account details the tracker uses.
type PlayerInfo struct {
	AccountID      int    `json:"account_id"`
	Nickname       string `json:"nickname"`
	LastBattleTime int64  `json:"last_battle_time"`
}

// TankStats is one per-vehicle entry from /tanks/stats/.
type TankStats struct {
	TankID         int   `json:"tank_id"`
	MarksOnGun     int   `json:"marks_on_gun"`
	LastBattleTime int64 `json:"last_battle_time"`
	All            struct {
		Battles        int `json:"battles"`
		DamageDealt    int `json:"damage_dealt"`
		DamageAssisted int `json:"damage_assisted"`
	} `json:"all"`
}

// VehicleInfo is one encyclopedia entry.
type VehicleInfo struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Tier      int    `json:"tier"`
	Type      string `json:"type"`
	Nation    string `json:"nation"`
}

type envelope struct {
	Status string `json:"status"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

// Client calls the console API. Safe for concurrent use; the snapshot
// cache is the only mutable state.
type Client struct {
	appID   string
	baseURL string
	http    httputil.Client
	clock   timeutil.Clock
	logf    func(format string, args ...any)

	mu        sync.Mutex
	snapCache map[int]cachedSnapshot
}

type cachedSnapshot struct {
	snap TankSnapshot
	at   time.Time
}

// NewClient builds a client for the given platform ("xbox" or "ps").
// A nil httpClient uses the default transport; an empty appID uses the
// demo key.
func NewClient(appID, platform string, httpClient httputil.Client, clock timeutil.Clock, logf func(string, ...any)) (*Client, error) {
	base, ok := baseURLs[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q, must be xbox or ps", platform)
	}
	if appID == "" {
		appID = DemoAppID
	}
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Client{
		appID:     appID,
		baseURL:   base,
		http:      httpClient,
		clock:     clock,
		logf:      logf,
		snapCache: map[int]cachedSnapshot{},
	}, nil
}

// request performs a GET and unwraps the data field of the envelope.
func (c *Client) request(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	params.Set("application_id", c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if env.Status != "ok" {
		apiErr := &APIError{Message: "unknown API error"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}
	return env.Data, nil
}

// SearchPlayer looks up accounts by gamertag. With exact set only a
// perfect nickname match is returned.
func (c *Client) SearchPlayer(ctx context.Context, gamertag string, exact bool) ([]PlayerResult, error) {
	params := url.Values{"search": {gamertag}}
	if exact {
		params.Set("type", "exact")
	}
	data, err := c.request(ctx, "/account/list/", params)
	if err != nil {
		return nil, err
	}
	var results []PlayerResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode account list: %w", err)
	}
	return results, nil
}

// ResolveGamertag maps a gamertag to its account id. The second return
// is false when no account matches.
func (c *Client) ResolveGamertag(ctx context.Context, gamertag string) (int, bool, error) {
	results, err := c.SearchPlayer(ctx, gamertag, true)
	if err != nil {
		return 0, false, err
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	return results[0].AccountID, true, nil
}

// GetPlayerInfo fetches account details. The second return is false when
// the account id is unknown to the service.
func (c *Client) GetPlayerInfo(ctx context.Context, accountID int) (PlayerInfo, bool, error) {
	params := url.Values{"account_id": {strconv.Itoa(accountID)}}
	data, err := c.request(ctx, "/account/info/", params)
	if err != nil {
		return PlayerInfo{}, false, err
	}
	var byID map[string]*PlayerInfo
	if err := json.Unmarshal(data, &byID); err != nil {
		return PlayerInfo{}, false, fmt.Errorf("decode account info: %w", err)
	}
	info := byID[strconv.Itoa(accountID)]
	if info == nil {
		return PlayerInfo{}, false, nil
	}
	return *info, true, nil
}

// GetPlayerTanks fetches per-vehicle statistics. tankID zero fetches all
// vehicles the player has ever driven.
func (c *Client) GetPlayerTanks(ctx context.Context, accountID, tankID int) ([]TankStats, error) {
	params := url.Values{"account_id": {strconv.Itoa(accountID)}}
	if tankID != 0 {
		params.Set("tank_id", strconv.Itoa(tankID))
	}
	data, err := c.request(ctx, "/tanks/stats/", params)
	if err != nil {
		return nil, err
	}
	var byAccount map[string][]TankStats
	if err := json.Unmarshal(data, &byAccount); err != nil {
		return nil, fmt.Errorf("decode tank stats: %w", err)
	}
	return byAccount[strconv.Itoa(accountID)], nil
}

// GetVehicles fetches the encyclopedia, keyed by stringified tank id.
// tankID zero fetches the whole vehicle tree.
func (c *Client) GetVehicles(ctx context.Context, tankID int) (map[string]VehicleInfo, error) {
	params := url.Values{}
	if tankID != 0 {
		params.Set("tank_id", strconv.Itoa(tankID))
	}
	data, err := c.request(ctx, "/encyclopedia/vehicles/", params)
	if err != nil {
		return nil, err
	}
	vehicles := map[string]VehicleInfo{}
	if err := json.Unmarshal(data, &vehicles); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	return vehicles, nil
}

// GetTankSnapshot fetches the cumulative counters for one vehicle. The
// result is cached briefly; forceFresh bypasses the cache, which the
// correction poller needs because the service lags the battle by tens of
// seconds. The second return is false when the player has no record for
// the vehicle.
func (c *Client) GetTankSnapshot(ctx context.Context, accountID, tankID int, forceFresh bool) (TankSnapshot, bool, error) {
	if !forceFresh {
		c.mu.Lock()
		cached, ok := c.snapCache[tankID]
		c.mu.Unlock()
		if ok && c.clock.Since(cached.at) < snapshotCacheTTL {
			return cached.snap, true, nil
		}
	}

	stats, err := c.GetPlayerTanks(ctx, accountID, tankID)
	if err != nil {
		return TankSnapshot{}, false, err
	}
	if len(stats) == 0 {
		return TankSnapshot{}, false, nil
	}
	entry := stats[0]
	snap := TankSnapshot{
		TankID:         entry.TankID,
		Battles:        entry.All.Battles,
		MarksOnGun:     entry.MarksOnGun,
		DamageDealt:    entry.All.DamageDealt,
		DamageAssisted: entry.All.DamageAssisted,
	}

	c.mu.Lock()
	c.snapCache[tankID] = cachedSnapshot{snap: snap, at: c.clock.Now()}
	c.mu.Unlock()
	return snap, true, nil
}

// DetectActiveTank returns the vehicle with the most recent battle, for
// picking what to track at startup. The second return is false when the
// player has no battles at all.
func (c *Client) DetectActiveTank(ctx context.Context, accountID int) (TankStats, bool, error) {
	stats, err := c.GetPlayerTanks(ctx, accountID, 0)
	if err != nil {
		return TankStats{}, false, err
	}
	if len(stats) == 0 {
		return TankStats{}, false, nil
	}
	best := stats[0]
	for _, s := range stats[1:] {
		if s.LastBattleTime > best.LastBattleTime {
			best = s
		}
	}
	return best, true, nil
}
