// Package config loads the tracker's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the daemon looks for settings when no
// -config flag is given. A missing file means all defaults.
const DefaultConfigPath = "marks.json"

// Region is a screen rectangle in pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the region selects no pixels.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Config represents the root configuration. All fields are optional;
// the Get* methods provide fallback defaults for any fields not
// specified in the JSON, so partial configs are safe.
type Config struct {
	// Stats API params
	AppID    *string `json:"app_id,omitempty"`
	Platform *string `json:"platform,omitempty"` // "xbox" or "ps"
	Gamertag *string `json:"gamertag,omitempty"`

	// Capture params
	OCRRegion          *Region  `json:"ocr_region,omitempty"`
	GarageRegion       *Region  `json:"garage_region,omitempty"`
	SampleRate         *float64 `json:"sample_rate,omitempty"` // readings per second
	GaragePollInterval *string  `json:"garage_poll_interval,omitempty"`

	// Vision params
	BinarizeThreshold   *int     `json:"binarize_threshold,omitempty"`
	UpscaleFactor       *int     `json:"upscale_factor,omitempty"`
	MinGlyphArea        *int     `json:"min_glyph_area,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	TemplatesDir        *string  `json:"templates_dir,omitempty"`

	// Estimate params
	CurrentMoePercent *float64 `json:"current_moe_percent,omitempty"`
	TargetDamage      *int     `json:"target_damage,omitempty"`
	EmaAlpha          *float64 `json:"ema_alpha,omitempty"`
	EmaPeriod         *int     `json:"ema_period,omitempty"`

	// Battle detection params
	ZeroFrames *int    `json:"zero_frames,omitempty"`
	ResetGap   *string `json:"reset_gap,omitempty"` // duration string like "3s"

	// Correction params
	CorrectionAttempts  *int    `json:"correction_attempts,omitempty"`
	CorrectionBaseDelay *string `json:"correction_base_delay,omitempty"` // duration string like "10s"

	// Server and storage params
	HTTPAddr *string `json:"http_addr,omitempty"`
	DBPath   *string `json:"db_path,omitempty"`
	CacheDir *string `json:"cache_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyConfig returns a Config with all fields set to nil, meaning all
// defaults.
func EmptyConfig() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and stay under the max file size.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns an all-defaults
// config when it does not.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(filepath.Clean(path)); os.IsNotExist(err) {
		return EmptyConfig(), nil
	}
	return Load(path)
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Platform != nil {
		switch *c.Platform {
		case "xbox", "ps":
		default:
			return fmt.Errorf("platform must be xbox or ps, got %q", *c.Platform)
		}
	}
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %f", *c.SampleRate)
	}
	if c.BinarizeThreshold != nil {
		if *c.BinarizeThreshold < 0 || *c.BinarizeThreshold > 255 {
			return fmt.Errorf("binarize_threshold must be between 0 and 255, got %d", *c.BinarizeThreshold)
		}
	}
	if c.UpscaleFactor != nil && *c.UpscaleFactor < 1 {
		return fmt.Errorf("upscale_factor must be at least 1, got %d", *c.UpscaleFactor)
	}
	if c.MinGlyphArea != nil && *c.MinGlyphArea < 0 {
		return fmt.Errorf("min_glyph_area must be non-negative, got %d", *c.MinGlyphArea)
	}
	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}
	if c.CurrentMoePercent != nil {
		if *c.CurrentMoePercent < 0 || *c.CurrentMoePercent > 100 {
			return fmt.Errorf("current_moe_percent must be between 0 and 100, got %f", *c.CurrentMoePercent)
		}
	}
	if c.TargetDamage != nil && *c.TargetDamage < 0 {
		return fmt.Errorf("target_damage must be non-negative, got %d", *c.TargetDamage)
	}
	if c.EmaAlpha != nil {
		if *c.EmaAlpha <= 0 || *c.EmaAlpha > 1 {
			return fmt.Errorf("ema_alpha must be in (0, 1], got %f", *c.EmaAlpha)
		}
	}
	if c.EmaPeriod != nil && *c.EmaPeriod < 1 {
		return fmt.Errorf("ema_period must be at least 1, got %d", *c.EmaPeriod)
	}
	if c.ZeroFrames != nil && *c.ZeroFrames < 1 {
		return fmt.Errorf("zero_frames must be at least 1, got %d", *c.ZeroFrames)
	}
	if c.CorrectionAttempts != nil && *c.CorrectionAttempts < 1 {
		return fmt.Errorf("correction_attempts must be at least 1, got %d", *c.CorrectionAttempts)
	}
	for name, value := range map[string]*string{
		"garage_poll_interval":  c.GaragePollInterval,
		"reset_gap":             c.ResetGap,
		"correction_base_delay": c.CorrectionBaseDelay,
	} {
		if value != nil && *value != "" {
			if _, err := time.ParseDuration(*value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *value, err)
			}
		}
	}
	for name, region := range map[string]*Region{
		"ocr_region":    c.OCRRegion,
		"garage_region": c.GarageRegion,
	} {
		if region != nil && (region.Width < 0 || region.Height < 0 || region.X < 0 || region.Y < 0) {
			return fmt.Errorf("%s must not be negative: %+v", name, *region)
		}
	}
	return nil
}

// GetAppID returns the app_id value or the default (empty, meaning the
// shared demo key).
func (c *Config) GetAppID() string {
	if c.AppID == nil {
		return ""
	}
	return *c.AppID
}

// GetPlatform returns the platform value or the default.
func (c *Config) GetPlatform() string {
	if c.Platform == nil {
		return "xbox"
	}
	return *c.Platform
}

// GetGamertag returns the gamertag value or the default (empty, meaning
// offline mode).
func (c *Config) GetGamertag() string {
	if c.Gamertag == nil {
		return ""
	}
	return *c.Gamertag
}

// GetOCRRegion returns the ocr_region value or the default.
func (c *Config) GetOCRRegion() Region {
	if c.OCRRegion == nil {
		return Region{X: 0, Y: 0, Width: 300, Height: 100}
	}
	return *c.OCRRegion
}

// GetGarageRegion returns the garage_region value or the default
// (empty, meaning garage detection off).
func (c *Config) GetGarageRegion() Region {
	if c.GarageRegion == nil {
		return Region{}
	}
	return *c.GarageRegion
}

// GetSampleInterval converts the sample_rate (readings per second) into
// the sampling ticker period.
func (c *Config) GetSampleInterval() time.Duration {
	rate := 2.0 // default
	if c.SampleRate != nil && *c.SampleRate > 0 {
		rate = *c.SampleRate
	}
	return time.Duration(float64(time.Second) / rate)
}

// GetGaragePollInterval parses and returns the garage_poll_interval as
// a time.Duration.
func (c *Config) GetGaragePollInterval() time.Duration {
	if c.GaragePollInterval == nil || *c.GaragePollInterval == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.GaragePollInterval)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetBinarizeThreshold returns the binarize_threshold value or the
// default.
func (c *Config) GetBinarizeThreshold() int {
	if c.BinarizeThreshold == nil {
		return 200 // default
	}
	return *c.BinarizeThreshold
}

// GetUpscaleFactor returns the upscale_factor value or the default.
func (c *Config) GetUpscaleFactor() int {
	if c.UpscaleFactor == nil {
		return 2 // default
	}
	return *c.UpscaleFactor
}

// GetMinGlyphArea returns the min_glyph_area value or the default.
func (c *Config) GetMinGlyphArea() int {
	if c.MinGlyphArea == nil {
		return 50 // default
	}
	return *c.MinGlyphArea
}

// GetConfidenceThreshold returns the confidence_threshold value or the
// default.
func (c *Config) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.8 // default
	}
	return *c.ConfidenceThreshold
}

// GetTemplatesDir returns the templates_dir value or the default.
func (c *Config) GetTemplatesDir() string {
	if c.TemplatesDir == nil {
		return "templates"
	}
	return *c.TemplatesDir
}

// GetCurrentMoePercent returns the current_moe_percent value or the
// default.
func (c *Config) GetCurrentMoePercent() float64 {
	if c.CurrentMoePercent == nil {
		return 0
	}
	return *c.CurrentMoePercent
}

// GetTargetDamage returns the target_damage value or the default (zero,
// meaning unknown until thresholds resolve).
func (c *Config) GetTargetDamage() int {
	if c.TargetDamage == nil {
		return 0
	}
	return *c.TargetDamage
}

// GetEmaAlpha returns the smoothing factor: ema_alpha when set,
// otherwise 2/(ema_period+1).
func (c *Config) GetEmaAlpha() float64 {
	if c.EmaAlpha != nil {
		return *c.EmaAlpha
	}
	period := 100 // default
	if c.EmaPeriod != nil {
		period = *c.EmaPeriod
	}
	return 2.0 / (float64(period) + 1.0)
}

// GetZeroFrames returns the zero_frames value or the default.
func (c *Config) GetZeroFrames() int {
	if c.ZeroFrames == nil {
		return 3 // default
	}
	return *c.ZeroFrames
}

// GetResetGap parses and returns the reset_gap as a time.Duration.
func (c *Config) GetResetGap() time.Duration {
	if c.ResetGap == nil || *c.ResetGap == "" {
		return 3 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ResetGap)
	if err != nil {
		return 3 * time.Second // default on parse error
	}
	return d
}

// GetCorrectionAttempts returns the correction_attempts value or the
// default.
func (c *Config) GetCorrectionAttempts() int {
	if c.CorrectionAttempts == nil {
		return 5 // default
	}
	return *c.CorrectionAttempts
}

// GetCorrectionBaseDelay parses and returns the correction_base_delay
// as a time.Duration.
func (c *Config) GetCorrectionBaseDelay() time.Duration {
	if c.CorrectionBaseDelay == nil || *c.CorrectionBaseDelay == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CorrectionBaseDelay)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetHTTPAddr returns the http_addr value or the default. The overlay
// and the websocket feed share one listener.
func (c *Config) GetHTTPAddr() string {
	if c.HTTPAddr == nil {
		return "127.0.0.1:5173"
	}
	return *c.HTTPAddr
}

// GetDBPath returns the db_path value or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "marks.db"
	}
	return *c.DBPath
}

// GetCacheDir returns the cache_dir value or the default.
func (c *Config) GetCacheDir() string {
	if c.CacheDir == nil {
		return "cache"
	}
	return *c.CacheDir
}
