// Package browser drives a headless Chrome tab through chromedp. A Session
// implements the extraction Browser, the harvest Page and the session Remote.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/shpitdev/referral-pipeline/internal/session"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

const (
	DefaultLoginURL  = "https://www.linkedin.com/login"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
)

// Config configures the browser process.
type Config struct {
	Headless          bool          `yaml:"headless"`
	UserAgent         string        `yaml:"user_agent"`
	LoginURL          string        `yaml:"login_url"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	// ScrollPause is the pause after the half-screen scroll that follows navigation.
	ScrollPause time.Duration `yaml:"scroll_pause"`
	// ExecPath overrides Chrome discovery.
	ExecPath string `yaml:"exec_path"`
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 60 * time.Second
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = time.Second
	}
	return c
}

// Session is one browser process with a single tab.
type Session struct {
	cfg    Config
	tab    context.Context
	cancel func()
	logger *slog.Logger
}

var _ session.Remote = (*Session)(nil)

// Open launches Chrome. The process lives until Close, independent of ctx.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1280, 800),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	s := &Session{
		cfg:    cfg,
		tab:    tab,
		logger: logger,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// First Run starts the browser.
	if err := s.run(ctx, cfg.NavigationTimeout); err != nil {
		s.cancel()
		return nil, fmt.Errorf("browser: start: %w", err)
	}
	return s, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrNavigationTimeout, err)
	}
	return err
}

// Login submits the credential form. Landing back on a login page is reported as
// *core.AuthenticationError. Checkpoint pages are left to the settle window.
func (s *Session) Login(ctx context.Context, creds session.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return &core.AuthenticationError{Err: errors.New("missing username or password")}
	}

	var location string
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(s.cfg.LoginURL),
		chromedp.WaitVisible("#username", chromedp.ByQuery),
		chromedp.SendKeys("#username", creds.Username, chromedp.ByQuery),
		chromedp.SendKeys("#password", creds.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&location),
	)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &core.AuthenticationError{Err: err}
	}
	if strings.Contains(location, "/login") || strings.Contains(location, "login-submit") {
		return &core.AuthenticationError{Err: fmt.Errorf("still on sign-in page %s", location)}
	}
	s.logger.Debug("login submitted", "location", location)
	return nil
}

// Navigate loads url, scrolls half a screen and pauses briefly so lazy sections render.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var ignored any
	return s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight / 2)`, &ignored),
		chromedp.Sleep(s.cfg.ScrollPause),
	)
}

// WaitFor blocks until selector is present. A timeout wraps core.ErrNavigationTimeout.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// HTML returns the current document markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ScrollToLast scrolls the last element matching selector into view.
func (s *Session) ScrollToLast(ctx context.Context, selector string) error {
	var ignored any
	js := fmt.Sprintf(`(() => {
  const els = document.querySelectorAll(%s);
  if (els.length) els[els.length - 1].scrollIntoView({block: "end"});
  return els.length;
})()`, jsString(selector))
	return s.run(ctx, s.cfg.NavigationTimeout, chromedp.Evaluate(js, &ignored))
}

// ClickIfPresent clicks the first element matching selector. It reports false
// without error when nothing matches.
func (s *Session) ClickIfPresent(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	); err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.MouseClickNode(nodes[0])); err != nil {
		return false, err
	}
	return true, nil
}

// Count returns how many elements match selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var n int
	js := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Evaluate(js, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Close terminates the browser process. It is safe to call more than once.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}
