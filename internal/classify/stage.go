// Package classify implements the classification stage: local short-circuit rules,
// then a call to the reasoning service through the retry controller, mapped to a
// persisted DecisionRecord.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/retry"
)

// Options configures a Stage.
type Options struct {
	Blacklist Blacklist
	Persona   Persona
	Retry     retry.Options
	// Now defaults to time.Now.
	Now func() time.Time
}

// Stage classifies raw records.
type Stage struct {
	reasoner  core.Reasoner
	decisions *store.Collection[profile.DecisionRecord]
	opts      Options
	logger    *slog.Logger
}

// NewStage wires a stage to the reasoning collaborator and the decision collection.
func NewStage(reasoner core.Reasoner, decisions *store.Collection[profile.DecisionRecord], opts Options, logger *slog.Logger) *Stage {
	if opts.Blacklist == nil {
		opts.Blacklist = Blacklist(DefaultBlacklist)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stage{reasoner: reasoner, decisions: decisions, opts: opts, logger: logger}
}

// ShortCircuit applies the local rules. ok is false when the record needs a remote call.
func (s *Stage) ShortCircuit(rec profile.RawRecord) (profile.DecisionRecord, bool) {
	if term, hit := s.opts.Blacklist.Match(rec); hit {
		s.logger.Info("blacklisted", "url", rec.URL, "name", rec.DisplayName(), "term", term)
		return s.record(rec, Decision{}, profile.ReasonBlacklisted), true
	}
	if NoSignal(rec) {
		s.logger.Info("no experience listed", "url", rec.URL, "name", rec.DisplayName())
		return s.record(rec, Decision{}, profile.ReasonNoExperience), true
	}
	return profile.DecisionRecord{}, false
}

// Outcome is a decision plus, when the remote call failed, the cause that forced
// the default outcome.
type Outcome struct {
	Decision profile.DecisionRecord
	// RemoteErr is set when the reasoning service could not produce a decision.
	RemoteErr error
	// Skipped is true when a decision already existed and was left untouched.
	Skipped bool
}

// Consult asks the reasoning service about rec. Exhausted or permanent failures
// degrade to the safe default (not eligible, empty message) with the cause in
// Outcome.RemoteErr. Only ctx cancellation is returned as an error.
func (s *Stage) Consult(ctx context.Context, rec profile.RawRecord) (Outcome, error) {
	prompt := BuildPrompt(s.opts.Persona, rec)

	ropts := s.opts.Retry
	onRetry := ropts.OnRetry
	ropts.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("reasoning call failed, retrying",
			"url", rec.URL, "attempt", attempt, "delay", delay, "class", retry.Classify(err).String(), "error", err)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	decision, err := retry.Do(ctx, func(ctx context.Context) (Decision, error) {
		text, err := s.reasoner.Generate(ctx, prompt)
		if err != nil {
			return Decision{}, err
		}
		return ParseDecision(text)
	}, ropts)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		s.logger.Error("reasoning failed, using default outcome", "url", rec.URL, "name", rec.DisplayName(), "error", err)
		return Outcome{Decision: s.record(rec, Decision{}, profile.ReasonNotSuitable), RemoteErr: err}, nil
	}

	reason := profile.ReasonNotSuitable
	if decision.Eligible {
		reason = profile.ReasonEligible
	}
	return Outcome{Decision: s.record(rec, decision, reason)}, nil
}

// Decide runs the short-circuit rules and, if none applies, consults the reasoning service.
func (s *Stage) Decide(ctx context.Context, rec profile.RawRecord) (Outcome, error) {
	if d, ok := s.ShortCircuit(rec); ok {
		return Outcome{Decision: d}, nil
	}
	return s.Consult(ctx, rec)
}

// Process decides rec and persists the decision. An existing decision is kept
// unless replace is set, in which case it is removed before the new one is appended.
func (s *Stage) Process(ctx context.Context, rec profile.RawRecord, replace bool) (Outcome, error) {
	if !replace {
		if prev, ok := s.decisions.Find(rec.URL); ok {
			return Outcome{Decision: prev, Skipped: true}, nil
		}
	}

	out, err := s.Decide(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.Save(out.Decision, replace); err != nil {
		return out, core.Fatal(err)
	}
	return out, nil
}

// Decided returns the stored decision for id, if any.
func (s *Stage) Decided(id string) (profile.DecisionRecord, bool) {
	return s.decisions.Find(id)
}

// Save persists d, replacing a prior decision when replace is set.
func (s *Stage) Save(d profile.DecisionRecord, replace bool) error {
	if replace {
		if err := s.decisions.Replace(d); err != nil {
			return fmt.Errorf("persist decision %s: %w", d.URL, err)
		}
		return nil
	}
	if _, err := s.decisions.Add(d); err != nil {
		return fmt.Errorf("persist decision %s: %w", d.URL, err)
	}
	return nil
}

func (s *Stage) record(rec profile.RawRecord, d Decision, reason profile.Reason) profile.DecisionRecord {
	return profile.DecisionRecord{
		URL:       rec.URL,
		Name:      rec.Name,
		Eligible:  d.Eligible,
		Message:   d.Message,
		DecidedAt: s.opts.Now().UTC(),
		Reason:    reason,
	}
}
