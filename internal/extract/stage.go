// Package extract implements the extraction stage: navigate to a profile, wait for
// its content marker, pull structured fields and persist them as a RawRecord.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

// Browser is the extraction collaborator.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector is present or timeout elapses. A timeout must be
	// reported as (or wrap) core.ErrNavigationTimeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
}

// Options configures a Stage.
type Options struct {
	Selectors  Selectors
	MarkerWait time.Duration
}

// Stage drives one identifier through extraction.
type Stage struct {
	browser Browser
	raw     *store.Collection[profile.RawRecord]
	opts    Options
	logger  *slog.Logger
}

// NewStage wires a stage to its browser and the raw-record collection.
func NewStage(browser Browser, raw *store.Collection[profile.RawRecord], opts Options, logger *slog.Logger) *Stage {
	if opts.MarkerWait <= 0 {
		opts.MarkerWait = 15 * time.Second
	}
	opts.Selectors = opts.Selectors.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stage{browser: browser, raw: raw, opts: opts, logger: logger}
}

// Extract fetches and normalizes one profile without persisting it.
//
// Navigation and marker failures come back wrapping core.ErrNavigationTimeout;
// they are not retried here, the identifier simply stays pending.
func (s *Stage) Extract(ctx context.Context, id string) (profile.RawRecord, error) {
	if err := s.browser.Navigate(ctx, id); err != nil {
		if core.IsFatal(err) || errors.Is(err, context.Canceled) {
			return profile.RawRecord{}, err
		}
		return profile.RawRecord{}, fmt.Errorf("navigate %s: %w: %w", id, core.ErrNavigationTimeout, err)
	}
	if err := s.browser.WaitFor(ctx, s.opts.Selectors.Marker, s.opts.MarkerWait); err != nil {
		if core.IsFatal(err) || errors.Is(err, context.Canceled) {
			return profile.RawRecord{}, err
		}
		if errors.Is(err, core.ErrNavigationTimeout) {
			return profile.RawRecord{}, fmt.Errorf("wait for %q on %s: %w", s.opts.Selectors.Marker, id, err)
		}
		return profile.RawRecord{}, fmt.Errorf("wait for %q on %s: %w: %w", s.opts.Selectors.Marker, id, core.ErrNavigationTimeout, err)
	}
	html, err := s.browser.HTML(ctx)
	if err != nil {
		return profile.RawRecord{}, fmt.Errorf("read page %s: %w: %w", id, core.ErrNavigationTimeout, err)
	}
	fields, err := ParseProfile(html, s.opts.Selectors)
	if err != nil {
		return profile.RawRecord{}, err
	}
	return profile.RawRecord{
		URL:        id,
		Name:       fields.Name,
		Headline:   fields.Headline,
		Experience: fields.Experience,
	}.Normalize(), nil
}

// Process extracts one identifier and appends the record to the store.
// Store failures are fatal for the run.
func (s *Stage) Process(ctx context.Context, id string) (profile.RawRecord, error) {
	rec, err := s.Extract(ctx, id)
	if err != nil {
		s.logger.Warn("extract failed", "url", id, "error", err)
		return profile.RawRecord{}, err
	}
	if _, err := s.raw.Add(rec); err != nil {
		return rec, core.Fatal(fmt.Errorf("persist raw record %s: %w", id, err))
	}
	s.logger.Info("scraped", "url", id, "name", rec.DisplayName(), "experience", len(rec.Experience))
	return rec, nil
}

// Save persists rec, replacing any prior record for the same identifier.
func (s *Stage) Save(rec profile.RawRecord) error {
	return s.raw.Replace(rec)
}
