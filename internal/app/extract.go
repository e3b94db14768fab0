package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/extract"
	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/internal/workset"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/worker"
)

// ExtractOptions configures an extraction run.
type ExtractOptions struct {
	// Cap bounds one session. Zero means no cap.
	Cap     int
	Session SessionOptions
	Stage   extract.Options
	// Worker carries pacing and the failure policy.
	Worker worker.Options
}

func pendingExtractions(st *store.Store, limit int) []string {
	return workset.PendingBy(st.Universe.Load(), profile.MatchKey, st.Raw.Keys(st.Raw.Load()), limit)
}

// RunExtract extracts the next batch of pending identifiers in one session.
// A failed identifier is logged and left pending for the next run.
func RunExtract(ctx context.Context, st *store.Store, open Opener, opts ExtractOptions, logger *slog.Logger) (Summary, error) {
	logger = discard(logger)

	universe := st.Universe.Load()
	done := st.Raw.Keys(st.Raw.Load())
	batch := workset.PendingBy(universe, profile.MatchKey, done, opts.Cap)
	sum := Summary{Skipped: len(universe) - len(workset.PendingBy(universe, profile.MatchKey, done, 0))}
	logger.Info("extract run start", "universe", len(universe), "extracted", len(done), "batch", len(batch), "cap", opts.Cap)

	if len(universe) == 0 {
		logger.Warn("identifier universe is empty, run harvest or import first", "path", st.Universe.Path())
		return sum, nil
	}
	if len(batch) == 0 {
		logger.Info("all profiles extracted")
		return sum, nil
	}

	runStart := time.Now()
	err := opts.Session.driver(open, logger).Run(ctx, func(ctx context.Context, b Browser) error {
		stage := extract.NewStage(b, st.Raw, opts.Stage, logger)
		_, err := worker.ProcessAllWithCallback(ctx, batch, stage.Process, func(r worker.Result[string, profile.RawRecord]) error {
			if r.Err != nil {
				sum.Failed++
			} else {
				sum.Processed++
			}
			logger.Debug("extract progress", "done", r.Index+1, "of", len(batch))
			return nil
		}, opts.Worker)
		return err
	})

	sum.Pending = len(pendingExtractions(st, 0))
	sum.Log(logger, fmt.Sprintf("extract session done in %s", time.Since(runStart).Round(time.Millisecond)))
	return sum, err
}

// TestExtract extracts one identifier interactively: it shows any stored record,
// asks before re-extracting and asks again before saving. A save replaces the
// prior record.
func TestExtract(ctx context.Context, st *store.Store, open Opener, id string, opts ExtractOptions, ask Confirmer, out io.Writer, logger *slog.Logger) error {
	logger = discard(logger)
	id = profile.Canonicalize(id)
	if id == "" {
		return errors.New("profile url is required")
	}

	if prev, ok := st.Raw.Find(id); ok {
		_, _ = fmt.Fprintln(out, "This profile was already extracted:")
		printRaw(out, prev)
		again, err := ask.Confirm("Do you want to re-extract this profile?")
		if err != nil {
			return err
		}
		if !again {
			_, _ = fmt.Fprintln(out, "Skipping re-extraction")
			return nil
		}
	}

	return opts.Session.driver(open, logger).Run(ctx, func(ctx context.Context, b Browser) error {
		stage := extract.NewStage(b, st.Raw, opts.Stage, logger)
		rec, err := stage.Extract(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(out, "EXTRACTION FAILED: %v\n", err)
			_, _ = fmt.Fprintln(out, "Check that the URL is reachable, the session is signed in and the profile is not restricted.")
			return err
		}

		_, _ = fmt.Fprintln(out, "EXTRACTION SUCCESSFUL")
		printRaw(out, rec)
		save, err := ask.Confirm("Do you want to save this extracted profile?")
		if err != nil {
			return err
		}
		if !save {
			_, _ = fmt.Fprintln(out, "Profile not saved")
			return nil
		}
		if err := stage.Save(rec); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Profile saved to %s (%d total)\n", st.Raw.Path(), len(st.Raw.Load()))
		return nil
	})
}

func printRaw(w io.Writer, rec profile.RawRecord) {
	_, _ = fmt.Fprintf(w, "Name: %s\nHeadline: %s\nExperience entries: %d\n", rec.Name, rec.Headline, len(rec.Experience))
	for i, e := range rec.Experience {
		_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, e)
	}
}
