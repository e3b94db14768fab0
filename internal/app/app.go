// Package app wires stores, sessions and stages into the runs behind each command.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/extract"
	"github.com/shpitdev/referral-pipeline/internal/harvest"
	"github.com/shpitdev/referral-pipeline/internal/session"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

// Browser is everything a run needs from one remote session.
type Browser interface {
	session.Remote
	extract.Browser
	harvest.Page
}

// Opener acquires a fresh Browser.
type Opener func(ctx context.Context) (Browser, error)

// SessionOptions configures the sign-in and settle phase shared by browser runs.
type SessionOptions struct {
	Credentials session.Credentials
	Settle      time.Duration
	// Sleep defaults to core.Sleep.
	Sleep core.SleepFunc
}

func (o SessionOptions) driver(open Opener, logger *slog.Logger) *session.Driver[Browser] {
	return session.NewDriver(func(ctx context.Context) (Browser, error) {
		return open(ctx)
	}, o.Credentials, session.Options{Settle: o.Settle, Sleep: o.Sleep}, logger)
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Summary totals one batch run.
type Summary struct {
	// Processed counts items that got a real result in this run.
	Processed int
	Eligible  int
	// Skipped counts items that were already done before the run.
	Skipped int
	// Failed counts items that produced no record, or only the default outcome.
	// An item is counted in Processed or Failed, never both.
	Failed int
	// Pending is what the next run would pick up.
	Pending int
}

// Log writes the summary as one line.
func (s Summary) Log(logger *slog.Logger, msg string) {
	logger.Info(msg,
		"processed", s.Processed,
		"eligible", s.Eligible,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"pending", s.Pending,
	)
}

func discard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
