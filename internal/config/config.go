// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv      = "WAYBARLOCATE"
	DefaultTextTpl = "{{.StatusIcon}} {{.StatusText}}"
	DefaultTooltipTpl = "Address: {{.Address.DisplayName}}\nCoordinates: {{floatFormat .Latitude 5}}, " +
		"{{floatFormat .Longitude 5}}\nAccuracy: {{floatFormat .Accuracy 0}}m ({{.Source}})\n" +
		"Last fix: {{localizedTime .FixTime}}\nSunrise: {{timeFormat .SunriseTime \"15:04\"}}\n" +
		"Sunset: {{timeFormat .SunsetTime \"15:04\"}}"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Acquire struct {
		// Acquisition stops once a reading is at least this accurate (meters)
		TargetAccuracy float64       `fig:"target_accuracy" default:"100"`
		Deadline       time.Duration `fig:"deadline" default:"60s"`
		MaxReadingAge  time.Duration `fig:"max_reading_age" default:"5s"`
		SettleDistance float64       `fig:"settle_distance" default:"1"`
		SettleAfter    time.Duration `fig:"settle_after" default:"10s"`
		DisableOnStart bool          `fig:"disable_on_start"`
	} `fig:"acquire"`

	Intervals struct {
		Render time.Duration `fig:"render" default:"30s"`
		// 0 disables periodic re-acquisition
		Refresh time.Duration `fig:"refresh"`
	} `fig:"intervals"`

	Position struct {
		// Allowed values: gpsd, ichnaea, file
		Provider    string        `fig:"provider" default:"gpsd"`
		GPSDAddress string        `fig:"gpsd_address" default:"localhost:2947"`
		ScanPeriod  time.Duration `fig:"scan_period" default:"10s"`
		File        string        `fig:"file"`
	} `fig:"position"`

	GeoCoder struct {
		// Allowed values: nominatim, google, opencage, geocode-earth
		Provider string `fig:"provider" default:"nominatim"`
		APIKey   string `fig:"api_key"`
		Language string `fig:"language"`
	} `fig:"geocoder"`

	Authorization struct {
		// Allowed values: geoclue, always
		Mode string `fig:"mode" default:"geoclue"`
	} `fig:"authorization"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Acquire.TargetAccuracy <= 0 {
		return fmt.Errorf("invalid target accuracy: %f", c.Acquire.TargetAccuracy)
	}
	if c.Acquire.Deadline <= 0 {
		return fmt.Errorf("invalid acquisition deadline: %s", c.Acquire.Deadline)
	}
	if c.Acquire.MaxReadingAge <= 0 {
		return fmt.Errorf("invalid max reading age: %s", c.Acquire.MaxReadingAge)
	}
	if c.Acquire.SettleDistance <= 0 {
		return fmt.Errorf("invalid settle distance: %f", c.Acquire.SettleDistance)
	}
	if c.Acquire.SettleAfter <= 0 {
		return fmt.Errorf("invalid settle after duration: %s", c.Acquire.SettleAfter)
	}
	if c.Intervals.Render <= 0 {
		return fmt.Errorf("invalid render interval: %s", c.Intervals.Render)
	}
	if c.Intervals.Refresh < 0 {
		return fmt.Errorf("invalid refresh interval: %s", c.Intervals.Refresh)
	}
	switch strings.ToLower(c.Position.Provider) {
	case "gpsd", "ichnaea", "file":
	default:
		return fmt.Errorf("invalid position provider: %s", c.Position.Provider)
	}
	switch strings.ToLower(c.GeoCoder.Provider) {
	case "nominatim":
	case "google", "opencage", "geocode-earth":
		if c.GeoCoder.APIKey == "" {
			return fmt.Errorf("geocoder provider %s requires an API key", c.GeoCoder.Provider)
		}
	default:
		return fmt.Errorf("invalid geocoder provider: %s", c.GeoCoder.Provider)
	}
	switch strings.ToLower(c.Authorization.Mode) {
	case "geoclue", "always":
	default:
		return fmt.Errorf("invalid authorization mode: %s", c.Authorization.Mode)
	}
	if c.GeoCoder.Language == "" {
		c.GeoCoder.Language = c.Locale
	}
	if c.Position.File == "" {
		home, _ := os.UserHomeDir()
		c.Position.File = filepath.Join(home, ".config", "waybar-locate", "position")
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
