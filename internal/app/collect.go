package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shpitdev/referral-pipeline/internal/harvest"
	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/report"
	"github.com/shpitdev/referral-pipeline/internal/store"
	localio "github.com/shpitdev/referral-pipeline/pkg/pipeline/io/local"
)

// HarvestOptions configures a harvest run.
type HarvestOptions struct {
	Session   SessionOptions
	Harvester harvest.Options
}

// RunHarvest signs in, reveals the whole connections list and merges the
// identifiers it finds into the universe.
func RunHarvest(ctx context.Context, st *store.Store, open Opener, opts HarvestOptions, logger *slog.Logger) (harvest.Result, error) {
	logger = discard(logger)
	if opts.Harvester.Sleep == nil {
		opts.Harvester.Sleep = opts.Session.Sleep
	}
	h := harvest.New(st.Universe, opts.Harvester, logger)

	var res harvest.Result
	err := opts.Session.driver(open, logger).Run(ctx, func(ctx context.Context, b Browser) error {
		var err error
		res, err = h.Run(ctx, b)
		return err
	})
	logger.Info("harvest done",
		"iterations", res.Iterations,
		"discovered", res.Discovered,
		"added", res.Added,
		"stagnated", res.Stagnated,
		"universe", len(st.Universe.Load()),
	)
	return res, err
}

// ImportColumn is the connections export column holding profile URLs.
const ImportColumn = "URL"

// RunImport merges the profile URLs of a connections CSV export into the universe.
func RunImport(st *store.Store, csvPath string, logger *slog.Logger) (int, error) {
	logger = discard(logger)

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	values, err := localio.ReadColumnCSV(f, ImportColumn)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", csvPath, err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id := profile.Canonicalize(v); id != "" {
			ids = append(ids, id)
		}
	}
	added, err := st.Universe.Merge(ids)
	if err != nil {
		return 0, err
	}
	logger.Info("import done", "path", csvPath, "rows", len(values), "added", added, "universe", len(st.Universe.Load()))
	return added, nil
}

// RunExport writes stored decisions to csvPath.
func RunExport(st *store.Store, csvPath string, eligibleOnly bool, logger *slog.Logger) (int, error) {
	logger = discard(logger)

	rows := report.Rows(st.Decisions.Load(), eligibleOnly)
	f, err := os.Create(csvPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := report.WriteCSV(f, rows); err != nil {
		return 0, fmt.Errorf("export %s: %w", csvPath, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	logger.Info("export done", "path", csvPath, "rows", len(rows), "eligible_only", eligibleOnly)
	return len(rows), nil
}
