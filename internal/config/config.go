// Package config loads run settings from an optional YAML file and overlays the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/referral-pipeline/internal/browser"
	"github.com/shpitdev/referral-pipeline/internal/classify"
	"github.com/shpitdev/referral-pipeline/internal/extract"
	"github.com/shpitdev/referral-pipeline/internal/harvest"
	"github.com/shpitdev/referral-pipeline/internal/store"
)

// DefaultPath is read when no path is given and the file exists.
const DefaultPath = "referrals.yml"

type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Files    store.Files    `yaml:"files"`
	Logging  LoggingConfig  `yaml:"logging"`
	Browser  browser.Config `yaml:"browser"`
	Session  SessionConfig  `yaml:"session"`
	Extract  ExtractConfig  `yaml:"extract"`
	Harvest  HarvestConfig  `yaml:"harvest"`
	Classify ClassifyConfig `yaml:"classify"`
	Gemini   GeminiConfig   `yaml:"gemini"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"` // debug, info, warn, error
	NoColor bool   `yaml:"no_color"`
}

type SessionConfig struct {
	// Settle is the post-login window for manual second-factor checks.
	Settle time.Duration `yaml:"settle"`
}

type ExtractConfig struct {
	// Cap is the per-session extraction limit.
	Cap        int               `yaml:"cap"`
	PaceMin    time.Duration     `yaml:"pace_min"`
	PaceMax    time.Duration     `yaml:"pace_max"`
	MarkerWait time.Duration     `yaml:"marker_wait"`
	Selectors  extract.Selectors `yaml:"selectors"`
}

type HarvestConfig struct {
	ConnectionsURL string            `yaml:"connections_url"`
	Selectors      harvest.Selectors `yaml:"selectors"`
	PauseMin       time.Duration     `yaml:"pause_min"`
	PauseMax       time.Duration     `yaml:"pause_max"`
	Stagnation     int               `yaml:"stagnation"`
	MaxIterations  int               `yaml:"max_iterations"`
}

type ClassifyConfig struct {
	// Cap limits one classification batch. Zero classifies every pending record.
	Cap            int              `yaml:"cap"`
	Pace           time.Duration    `yaml:"pace"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	MaxRetries     int              `yaml:"max_retries"`
	InitialBackoff time.Duration    `yaml:"initial_backoff"`
	MaxBackoff     time.Duration    `yaml:"max_backoff"`
	Blacklist      []string         `yaml:"blacklist"`
	Persona        classify.Persona `yaml:"persona"`
}

type GeminiConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Config {
	return Config{
		DataDir: ".",
		Files:   store.DefaultFiles(),
		Logging: LoggingConfig{Level: "info"},
		Browser: browser.Config{
			LoginURL:          browser.DefaultLoginURL,
			UserAgent:         browser.DefaultUserAgent,
			NavigationTimeout: 60 * time.Second,
			ScrollPause:       time.Second,
		},
		Session: SessionConfig{Settle: 30 * time.Second},
		Extract: ExtractConfig{
			Cap:        30,
			PaceMin:    5 * time.Second,
			PaceMax:    10 * time.Second,
			MarkerWait: 15 * time.Second,
			Selectors:  extract.DefaultSelectors(),
		},
		Harvest: HarvestConfig{
			ConnectionsURL: harvest.DefaultConnectionsURL,
			Selectors:      harvest.DefaultSelectors(),
			PauseMin:       2 * time.Second,
			PauseMax:       4 * time.Second,
			Stagnation:     5,
			MaxIterations:  500,
		},
		Classify: ClassifyConfig{
			Pace:           1500 * time.Millisecond,
			RequestTimeout: 60 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 2 * time.Second,
			Blacklist:      append([]string(nil), classify.DefaultBlacklist...),
		},
	}
}

// Load reads path over Defaults. An empty path falls back to DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate returns every problem at once.
func Validate(cfg Config) error {
	var errs []string

	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, "data_dir is required")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level))
	}
	if cfg.Session.Settle < 0 {
		errs = append(errs, "session.settle must be >= 0")
	}
	if cfg.Extract.Cap <= 0 {
		errs = append(errs, "extract.cap must be > 0")
	}
	if cfg.Extract.PaceMin < 0 || cfg.Extract.PaceMax < cfg.Extract.PaceMin {
		errs = append(errs, "extract.pace_min must be >= 0 and <= extract.pace_max")
	}
	if cfg.Extract.MarkerWait <= 0 {
		errs = append(errs, "extract.marker_wait must be > 0")
	}
	if cfg.Harvest.PauseMin < 0 || cfg.Harvest.PauseMax < cfg.Harvest.PauseMin {
		errs = append(errs, "harvest.pause_min must be >= 0 and <= harvest.pause_max")
	}
	if cfg.Harvest.Stagnation <= 0 {
		errs = append(errs, "harvest.stagnation must be > 0")
	}
	if cfg.Harvest.MaxIterations <= 0 {
		errs = append(errs, "harvest.max_iterations must be > 0")
	}
	if cfg.Classify.Cap < 0 {
		errs = append(errs, "classify.cap must be >= 0")
	}
	if cfg.Classify.Pace < 0 {
		errs = append(errs, "classify.pace must be >= 0")
	}
	if cfg.Classify.MaxRetries < 0 {
		errs = append(errs, "classify.max_retries must be >= 0")
	}
	if cfg.Classify.InitialBackoff <= 0 {
		errs = append(errs, "classify.initial_backoff must be > 0")
	}
	if cfg.Classify.MaxBackoff < 0 {
		errs = append(errs, "classify.max_backoff must be >= 0 (0 disables the cap)")
	}
	for i, term := range cfg.Classify.Blacklist {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Sprintf("classify.blacklist[%d] cannot be empty", i))
		}
	}
	if cfg.Browser.NavigationTimeout < 0 {
		errs = append(errs, "browser.navigation_timeout must be >= 0")
	}

	if len(errs) > 0 {
		return errors.New("invalid config:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}
