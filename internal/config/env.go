package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment values onto cfg. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	e := env{getenv: getenv}

	e.str("DATA_DIR", &cfg.DataDir)
	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("RESUME_LINK", &cfg.Classify.Persona.ResumeLink)
	e.str("GEMINI_MODEL", &cfg.Gemini.Model)
	e.str("GEMINI_BASE_URL", &cfg.Gemini.BaseURL)
	e.boolean("HEADLESS", &cfg.Browser.Headless)
	e.integer("SESSION_CAP", &cfg.Extract.Cap)
	e.integer("MAX_RETRIES", &cfg.Classify.MaxRetries)
	e.duration("SETTLE_DELAY", &cfg.Session.Settle)
	e.duration("PACE_MIN", &cfg.Extract.PaceMin)
	e.duration("PACE_MAX", &cfg.Extract.PaceMax)
	e.duration("REQUEST_TIMEOUT", &cfg.Classify.RequestTimeout)
	return e.err
}

type env struct {
	getenv func(string) string
	err    error
}

func (e *env) lookup(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v := strings.TrimSpace(e.getenv(name))
	return v, v != ""
}

func (e *env) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *env) integer(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}

func (e *env) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}

func (e *env) boolean(name string, dst *bool) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}
