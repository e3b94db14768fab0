// Package harvest collects profile identifiers from the incrementally loaded
// connections list and merges them into the identifier universe.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/referral-pipeline/internal/profile"
	"github.com/shpitdev/referral-pipeline/internal/session"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/worker"
)

const DefaultConnectionsURL = "https://www.linkedin.com/mynetwork/invite-connect/connections/"

// Page is the browser surface the harvester needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	ScrollToLast(ctx context.Context, selector string) error
	ClickIfPresent(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
	HTML(ctx context.Context) (string, error)
}

// Selectors locate the connections list on the page.
type Selectors struct {
	List     string `yaml:"list"`
	Link     string `yaml:"link"`
	LoadMore string `yaml:"load_more"`
}

// DefaultSelectors match the connections page layout.
func DefaultSelectors() Selectors {
	return Selectors{
		List:     `div[componentkey="ConnectionsPage_ConnectionsList"]`,
		Link:     `a[href*="/in/"]`,
		LoadMore: `button[aria-label*="Load more"], button[aria-label*="See more"]`,
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.List == "" {
		s.List = d.List
	}
	if s.Link == "" {
		s.Link = d.Link
	}
	if s.LoadMore == "" {
		s.LoadMore = d.LoadMore
	}
	return s
}

// within scopes every comma-separated alternative of sel under the list selector.
func (s Selectors) within(sel string) string {
	parts := strings.Split(sel, ",")
	for i, p := range parts {
		parts[i] = s.List + " " + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Options configures a Harvester.
type Options struct {
	ConnectionsURL string
	Selectors      Selectors
	ListWait       time.Duration
	// PauseMin/PauseMax bound the randomized pause after each scroll and click.
	PauseMin   time.Duration
	PauseMax   time.Duration
	Stagnation session.StagnationOptions

	Sleep   core.SleepFunc
	Float64 func() float64
}

// Result summarizes one harvest.
type Result struct {
	Iterations int
	Discovered int
	Added      int
	Stagnated  bool
}

// Harvester runs the reveal loop against a Page.
type Harvester struct {
	universe *store.Collection[string]
	opts     Options
	logger   *slog.Logger
}

// New returns a Harvester that merges into universe.
func New(universe *store.Collection[string], opts Options, logger *slog.Logger) *Harvester {
	if opts.ConnectionsURL == "" {
		opts.ConnectionsURL = DefaultConnectionsURL
	}
	opts.Selectors = opts.Selectors.withDefaults()
	if opts.ListWait <= 0 {
		opts.ListWait = 60 * time.Second
	}
	if opts.PauseMin <= 0 && opts.PauseMax <= 0 {
		opts.PauseMin, opts.PauseMax = 2*time.Second, 4*time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = core.Sleep
	}
	if opts.Float64 == nil {
		opts.Float64 = rand.Float64
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harvester{universe: universe, opts: opts, logger: logger}
}

func (h *Harvester) pause(ctx context.Context) error {
	return h.opts.Sleep(ctx, worker.PaceDelay(h.opts.PauseMin, h.opts.PauseMax, h.opts.Float64))
}

// Run reveals the whole list, extracts identifiers and merges the new ones into
// the universe. Existing identifiers keep their position.
func (h *Harvester) Run(ctx context.Context, page Page) (Result, error) {
	sel := h.opts.Selectors
	links := sel.within(sel.Link)

	if err := page.Navigate(ctx, h.opts.ConnectionsURL); err != nil {
		return Result{}, fmt.Errorf("harvest: open connections: %w", err)
	}
	if err := page.WaitFor(ctx, sel.List, h.opts.ListWait); err != nil {
		return Result{}, fmt.Errorf("harvest: connections list: %w", err)
	}

	loop, err := session.UntilStagnant(ctx, h.opts.Stagnation, func(ctx context.Context, _ int) (int, error) {
		if err := page.ScrollToLast(ctx, links); err != nil {
			return 0, err
		}
		if err := h.pause(ctx); err != nil {
			return 0, err
		}
		clicked, err := page.ClickIfPresent(ctx, sel.within(sel.LoadMore))
		if err != nil {
			return 0, err
		}
		if clicked {
			if err := h.pause(ctx); err != nil {
				return 0, err
			}
		}
		return page.Count(ctx, links)
	}, func(iteration, count, stagnant int) {
		if stagnant == 0 {
			h.logger.Info("loaded connections", "count", count, "iteration", iteration)
		} else {
			h.logger.Info("no growth", "count", count, "stagnant", stagnant)
		}
	})
	res := Result{Iterations: loop.Iterations, Stagnated: loop.Stagnated}
	if err != nil {
		return res, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return res, fmt.Errorf("harvest: read page: %w", err)
	}
	ids, err := ExtractLinks(html, links)
	if err != nil {
		return res, err
	}
	res.Discovered = len(ids)

	added, err := h.universe.Merge(ids)
	if err != nil {
		return res, core.Fatal(err)
	}
	res.Added = added
	h.logger.Info("harvest merged", "discovered", res.Discovered, "added", added)
	return res, nil
}

// ExtractLinks returns the canonical, de-duplicated profile identifiers linked by
// elements matching selector, in document order.
func ExtractLinks(html, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("harvest: parse page: %w", err)
	}
	seen := make(map[string]struct{})
	out := []string{}
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		id := profile.Canonicalize(absolute(href))
		if id == "" {
			return
		}
		k := profile.MatchKey(id)
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, id)
	})
	return out, nil
}

func absolute(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return "https://www.linkedin.com" + href
	}
	return href
}
