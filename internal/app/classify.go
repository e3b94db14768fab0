package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/classify"
	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/internal/workset"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/worker"
)

// ClassifyOptions configures a classification run.
type ClassifyOptions struct {
	// Cap bounds one batch. Zero classifies every undecided record.
	Cap   int
	Stage classify.Options
	// Pace is the minimum gap between two reasoning calls.
	Pace time.Duration
	// RequestTimeout bounds one reasoning call. Zero disables.
	RequestTimeout time.Duration
	FailurePolicy  worker.FailurePolicy
	// Sleep defaults to core.Sleep.
	Sleep core.SleepFunc
	// Clock feeds the pacing limiter. Defaults to time.Now.
	Clock func() time.Time
}

func (o ClassifyOptions) stage(reasoner core.Reasoner, st *store.Store, logger *slog.Logger) *classify.Stage {
	if o.Sleep == nil {
		o.Sleep = core.Sleep
	}
	if o.Stage.Retry.Sleep == nil {
		o.Stage.Retry.Sleep = o.Sleep
	}
	paced := &pacedReasoner{
		next:    reasoner,
		limiter: worker.NewLimiter(o.Pace, o.Sleep, o.Clock),
		timeout: o.RequestTimeout,
	}
	return classify.NewStage(paced, st.Decisions, o.Stage, logger)
}

// pacedReasoner spaces reasoning calls and bounds each one.
type pacedReasoner struct {
	next    core.Reasoner
	limiter *worker.Limiter
	timeout time.Duration
}

func (p *pacedReasoner) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.next.Generate(ctx, prompt)
}

// RunClassify decides every raw record that has no decision yet, oldest first.
// Records decided by a local rule never reach the reasoning service.
func RunClassify(ctx context.Context, st *store.Store, reasoner core.Reasoner, opts ClassifyOptions, logger *slog.Logger) (Summary, error) {
	logger = discard(logger)

	raw := st.Raw.Load()
	decided := st.Decisions.Keys(st.Decisions.Load())
	undecided := workset.PendingBy(raw, profile.RawRecord.Key, decided, 0)
	batch := undecided
	if opts.Cap > 0 && len(batch) > opts.Cap {
		batch = batch[:opts.Cap]
	}
	sum := Summary{Skipped: len(raw) - len(undecided)}
	logger.Info("classify run start", "profiles", len(raw), "decided", len(decided), "batch", len(batch))
	if len(batch) == 0 {
		logger.Info("all profiles classified")
		return sum, nil
	}

	stage := opts.stage(reasoner, st, logger)
	runStart := time.Now()
	_, err := worker.ProcessAllWithCallback(ctx, batch, func(ctx context.Context, rec profile.RawRecord) (classify.Outcome, error) {
		return stage.Process(ctx, rec, false)
	}, func(r worker.Result[profile.RawRecord, classify.Outcome]) error {
		if r.Err != nil {
			sum.Failed++
			return nil
		}
		out := r.Output
		switch {
		case out.Skipped:
			sum.Skipped++
			return nil
		case out.RemoteErr != nil:
			sum.Failed++
		default:
			sum.Processed++
		}
		logDecision(logger, out.Decision)
		if out.Decision.Eligible {
			sum.Eligible++
		}
		logger.Info("progress", "processed", sum.Processed, "eligible", sum.Eligible, "skipped", sum.Skipped)
		return nil
	}, worker.Options{FailurePolicy: opts.FailurePolicy, Sleep: opts.Sleep})

	sum.Pending = len(workset.PendingBy(st.Raw.Load(), profile.RawRecord.Key, st.Decisions.Keys(st.Decisions.Load()), 0))
	sum.Log(logger, fmt.Sprintf("classification done in %s", time.Since(runStart).Round(time.Millisecond)))
	return sum, err
}

func logDecision(logger *slog.Logger, d profile.DecisionRecord) {
	switch d.Reason {
	case profile.ReasonEligible:
		logger.Info("referral approved", "url", d.URL, "name", d.Name, "message", d.Message)
	case profile.ReasonBlacklisted:
		logger.Info("skipped, blacklisted", "url", d.URL, "name", d.Name)
	case profile.ReasonNoExperience:
		logger.Info("skipped, no experience listed", "url", d.URL, "name", d.Name)
	default:
		logger.Info("not suitable for referral", "url", d.URL, "name", d.Name)
	}
}

// ErrNotExtracted is returned by TestClassify for an identifier with no raw record.
var ErrNotExtracted = errors.New("profile not found in extracted profiles")

// TestClassify decides one extracted profile interactively. Local-rule outcomes
// are printed but not saved; a confirmed save replaces any prior decision.
func TestClassify(ctx context.Context, st *store.Store, reasoner core.Reasoner, id string, opts ClassifyOptions, ask Confirmer, out io.Writer, logger *slog.Logger) error {
	logger = discard(logger)
	id = profile.Canonicalize(id)

	rec, ok := st.Raw.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s (%d available)", ErrNotExtracted, id, len(st.Raw.Load()))
	}
	_, _ = fmt.Fprintln(out, "Found profile:")
	printRaw(out, rec)

	stage := opts.stage(reasoner, st, logger)
	if prev, ok := stage.Decided(id); ok {
		_, _ = fmt.Fprintf(out, "Already classified at %s\n", prev.DecidedAt.Format(time.RFC3339))
		printDecision(out, prev)
		again, err := ask.Confirm("Do you want to classify this profile again?")
		if err != nil {
			return err
		}
		if !again {
			_, _ = fmt.Fprintln(out, "Skipping reclassification")
			return nil
		}
	}

	if d, ok := stage.ShortCircuit(rec); ok {
		printDecision(out, d)
		return nil
	}

	_, _ = fmt.Fprintln(out, "Asking the reasoning service...")
	res, err := stage.Consult(ctx, rec)
	if err != nil {
		return err
	}
	if res.RemoteErr != nil {
		_, _ = fmt.Fprintf(out, "Reasoning failed, default outcome applies: %v\n", res.RemoteErr)
	}
	printDecision(out, res.Decision)

	save, err := ask.Confirm("Do you want to save this result?")
	if err != nil {
		return err
	}
	if !save {
		_, _ = fmt.Fprintln(out, "Result not saved")
		return nil
	}
	if err := stage.Save(res.Decision, true); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Result saved to %s\n", st.Decisions.Path())
	return nil
}

func printDecision(w io.Writer, d profile.DecisionRecord) {
	verdict := "NOT ELIGIBLE"
	if d.Eligible {
		verdict = "ELIGIBLE"
	}
	_, _ = fmt.Fprintf(w, "Result: %s (%s)\n", verdict, d.Reason)
	if d.Message != "" {
		_, _ = fmt.Fprintf(w, "Message:\n%s\n", d.Message)
	}
}
