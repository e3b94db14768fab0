package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shpitdev/referral-pipeline/internal/app"
	"github.com/shpitdev/referral-pipeline/internal/browser"
	"github.com/shpitdev/referral-pipeline/internal/classify"
	"github.com/shpitdev/referral-pipeline/internal/classify/gemini"
	"github.com/shpitdev/referral-pipeline/internal/config"
	"github.com/shpitdev/referral-pipeline/internal/extract"
	"github.com/shpitdev/referral-pipeline/internal/harvest"
	"github.com/shpitdev/referral-pipeline/internal/logging"
	"github.com/shpitdev/referral-pipeline/internal/operator"
	"github.com/shpitdev/referral-pipeline/internal/secrets"
	"github.com/shpitdev/referral-pipeline/internal/session"
	"github.com/shpitdev/referral-pipeline/internal/store"
	"github.com/shpitdev/referral-pipeline/internal/util"
	"github.com/shpitdev/referral-pipeline/internal/version"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/retry"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	// .env is optional.
	_ = godotenv.Load()

	switch args[0] {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "version", "--version":
		_, _ = fmt.Fprintln(stdout, version.Current)
		return 0
	case "harvest":
		return runHarvest(ctx, args[1:], stderr)
	case "import":
		return runImport(ctx, args[1:], stderr)
	case "export":
		return runExport(args[1:], stderr)
	case "extract":
		return runExtract(ctx, args[1:], stdin, stdout, stderr)
	case "classify":
		return runClassify(ctx, args[1:], stdin, stdout, stderr)
	case "keyring":
		return runKeyring(args[1:], stdin, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		usage(stderr)
		return 2
	}
}

// common holds flags shared by every run command.
type common struct {
	configPath string
	dataDir    string
	debug      bool
	failFast   bool
	headless   bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("REFERRALS_CONFIG"), "YAML config file (env: REFERRALS_CONFIG, default: "+config.DefaultPath+" if present)")
	fs.StringVar(&c.dataDir, "data-dir", "", "Directory holding the JSON collections (env: DATA_DIR)")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&c.failFast, "fail-fast", false, "Stop on the first per-profile failure")
	fs.BoolVar(&c.headless, "headless", false, "Run the browser headless (env: HEADLESS)")
}

// parseFlags parses args into fs. When ok is false the command exits with code:
// 0 after -h/--help printed the flag usage, 2 on a bad flag.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	err := fs.Parse(args)
	switch {
	case err == nil:
		return 0, true
	case errors.Is(err, flag.ErrHelp):
		return 0, false
	default:
		return 2, false
	}
}

// env is the state every run command starts from.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	unlock func() error
}

func (e *env) close() {
	if e.unlock != nil {
		if err := e.unlock(); err != nil {
			e.logger.Warn("release data dir lock", "error", err)
		}
	}
}

func setup(fs *flag.FlagSet, c *common, stderr io.Writer) (*env, int) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return nil, 2
	}
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return nil, 2
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = c.dataDir
		case "headless":
			cfg.Browser.Headless = c.headless
		}
	})
	if c.debug {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return nil, 2
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.New(stderr, level, cfg.Logging.NoColor).With("run", logging.NewRunID(time.Now()))

	unlock, err := store.Lock(cfg.DataDir)
	if err != nil {
		logger.Error("cannot start run", "error", err)
		return nil, 1
	}
	st, err := store.Open(cfg.DataDir, cfg.Files, logger)
	if err != nil {
		_ = unlock()
		logger.Error("open store", "error", err)
		return nil, 1
	}
	return &env{cfg: cfg, logger: logger, store: st, unlock: unlock}, 0
}

func credentials() (session.Credentials, error) {
	email := strings.TrimSpace(os.Getenv("LINKEDIN_EMAIL"))
	if email == "" {
		return session.Credentials{}, errors.New("LINKEDIN_EMAIL is required")
	}
	password, err := secrets.Lookup(os.Getenv, "LINKEDIN_PASSWORD", secrets.LinkedInAccount(email))
	if err != nil {
		return session.Credentials{}, fmt.Errorf("LINKEDIN_PASSWORD: %w", err)
	}
	return session.Credentials{Username: email, Password: password}, nil
}

func (e *env) sessionOptions(creds session.Credentials) app.SessionOptions {
	return app.SessionOptions{Credentials: creds, Settle: e.cfg.Session.Settle}
}

func (e *env) opener() app.Opener {
	return func(ctx context.Context) (app.Browser, error) {
		s, err := browser.Open(ctx, e.cfg.Browser, e.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (e *env) extractOptions(creds session.Credentials, failFast bool) app.ExtractOptions {
	policy := worker.FailurePolicyPartialOutput
	if failFast {
		policy = worker.FailurePolicyFailFast
	}
	return app.ExtractOptions{
		Cap:     e.cfg.Extract.Cap,
		Session: e.sessionOptions(creds),
		Stage:   extract.Options{Selectors: e.cfg.Extract.Selectors, MarkerWait: e.cfg.Extract.MarkerWait},
		Worker: worker.Options{
			PaceMin:       e.cfg.Extract.PaceMin,
			PaceMax:       e.cfg.Extract.PaceMax,
			FailurePolicy: policy,
		},
	}
}

func (e *env) classifyOptions(failFast bool) app.ClassifyOptions {
	policy := worker.FailurePolicyPartialOutput
	if failFast {
		policy = worker.FailurePolicyFailFast
	}
	c := e.cfg.Classify
	return app.ClassifyOptions{
		Cap: c.Cap,
		Stage: classify.Options{
			Blacklist: classify.Blacklist(c.Blacklist),
			Persona:   c.Persona,
			Retry: retry.Options{
				MaxRetries:   c.MaxRetries,
				InitialDelay: c.InitialBackoff,
				MaxDelay:     c.MaxBackoff,
			},
		},
		Pace:           c.Pace,
		RequestTimeout: c.RequestTimeout,
		FailurePolicy:  policy,
	}
}

func (e *env) reasoner(ctx context.Context) (*gemini.Reasoner, error) {
	key, err := secrets.Lookup(os.Getenv, "GEMINI_API_KEY", secrets.GeminiAccount)
	if err != nil {
		return nil, fmt.Errorf("GEMINI_API_KEY: %w", err)
	}
	return gemini.New(ctx, gemini.Config{APIKey: key, Model: e.cfg.Gemini.Model, BaseURL: e.cfg.Gemini.BaseURL})
}

// exitCode maps a run error to the process exit status.
func exitCode(logger *slog.Logger, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("run interrupted")
		return 1
	}
	logger.Error("run failed", "error", util.RedactSecrets(err.Error()))
	return 1
}

func runHarvest(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	var maxIterations, stagnation int
	fs.IntVar(&maxIterations, "max-iterations", 0, "Absolute cap on reveal steps (default from config)")
	fs.IntVar(&stagnation, "stagnation", 0, "Stop after this many steps without growth (default from config)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	e, code := setup(fs, &c, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	creds, err := credentials()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return 2
	}
	h := e.cfg.Harvest
	if maxIterations > 0 {
		h.MaxIterations = maxIterations
	}
	if stagnation > 0 {
		h.Stagnation = stagnation
	}
	_, err = app.RunHarvest(ctx, e.store, e.opener(), app.HarvestOptions{
		Session: e.sessionOptions(creds),
		Harvester: harvest.Options{
			ConnectionsURL: h.ConnectionsURL,
			Selectors:      h.Selectors,
			ListWait:       e.cfg.Browser.NavigationTimeout,
			PauseMin:       h.PauseMin,
			PauseMax:       h.PauseMax,
			Stagnation:     session.StagnationOptions{Threshold: h.Stagnation, MaxIterations: h.MaxIterations},
		},
	}, e.logger)
	return exitCode(e.logger, err)
}

func runImport(_ context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	var csvPath string
	fs.StringVar(&csvPath, "csv", "", "Connections CSV export (must include a 'URL' column)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if csvPath == "" {
		_, _ = fmt.Fprintln(stderr, "--csv is required")
		return 2
	}

	e, code := setup(fs, &c, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	_, err := app.RunImport(e.store, csvPath, e.logger)
	return exitCode(e.logger, err)
}

func runExport(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	var csvPath string
	var eligibleOnly bool
	fs.StringVar(&csvPath, "csv", "", "Output CSV path")
	fs.BoolVar(&eligibleOnly, "eligible-only", false, "Only export profiles approved for a referral request")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if csvPath == "" {
		_, _ = fmt.Fprintln(stderr, "--csv is required")
		return 2
	}

	e, code := setup(fs, &c, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	_, err := app.RunExport(e.store, csvPath, eligibleOnly, e.logger)
	return exitCode(e.logger, err)
}

func runExtract(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	var testURL string
	var sessionCap int
	fs.StringVar(&testURL, "test", "", "Extract a single profile URL interactively")
	fs.IntVar(&sessionCap, "cap", 0, "Profiles per session (env: SESSION_CAP, default from config)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unknown argument: %s\n", fs.Arg(0))
		return 2
	}

	e, code := setup(fs, &c, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	creds, err := credentials()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return 2
	}
	opts := e.extractOptions(creds, c.failFast)
	if sessionCap > 0 {
		opts.Cap = sessionCap
	}

	if testURL != "" {
		err = app.TestExtract(ctx, e.store, e.opener(), testURL, opts, operator.New(stdin, stdout), stdout, e.logger)
		return exitCode(e.logger, err)
	}
	_, err = app.RunExtract(ctx, e.store, e.opener(), opts, e.logger)
	return exitCode(e.logger, err)
}

func runClassify(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	var testURL, model string
	var batchCap, maxRetries int
	fs.StringVar(&testURL, "test", "", "Classify a single extracted profile URL interactively")
	fs.IntVar(&batchCap, "cap", 0, "Maximum profiles to classify in this run (default: all)")
	fs.IntVar(&maxRetries, "max-retries", -1, "Max retries for transient reasoning failures (env: MAX_RETRIES)")
	fs.StringVar(&model, "gemini-model", "", "Gemini model name (env: GEMINI_MODEL)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unknown argument: %s\n", fs.Arg(0))
		return 2
	}

	e, code := setup(fs, &c, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	if model != "" {
		e.cfg.Gemini.Model = model
	}
	if maxRetries >= 0 {
		e.cfg.Classify.MaxRetries = maxRetries
	}
	if batchCap > 0 {
		e.cfg.Classify.Cap = batchCap
	}

	r, err := e.reasoner(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	e.logger.Info("reasoning service ready", "model", r.Model())
	opts := e.classifyOptions(c.failFast)

	if testURL != "" {
		err = app.TestClassify(ctx, e.store, r, testURL, opts, operator.New(stdin, stdout), stdout, e.logger)
		return exitCode(e.logger, err)
	}
	_, err = app.RunClassify(ctx, e.store, r, opts, e.logger)
	return exitCode(e.logger, err)
}

func runKeyring(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprintln(stderr, "usage: referrals keyring set|delete linkedin <email> | gemini")
		return 2
	}
	action, target := args[0], args[1]

	var account string
	switch target {
	case "gemini":
		account = secrets.GeminiAccount
	case "linkedin":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "usage: referrals keyring set|delete linkedin <email>")
			return 2
		}
		account = secrets.LinkedInAccount(args[2])
	default:
		_, _ = fmt.Fprintf(stderr, "unknown keyring target: %s\n", target)
		return 2
	}

	switch action {
	case "set":
		_, _ = fmt.Fprintf(stdout, "secret for %s: ", account)
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			_, _ = fmt.Fprintf(stderr, "read secret: %s\n", err)
			return 1
		}
		if err := secrets.Set(account, strings.TrimSpace(line)); err != nil {
			_, _ = fmt.Fprintf(stderr, "keyring set: %s\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, "stored")
		return 0
	case "delete":
		if err := secrets.Delete(account); err != nil {
			_, _ = fmt.Fprintf(stderr, "keyring delete: %s\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, "deleted")
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown keyring action: %s\n", action)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `referrals: find connections worth asking for a referral

Each stage is its own command; "referrals extract" and "referrals classify" with
no flags process the whole pending work-set. Add -h to a command for its flags.

Usage:
  referrals harvest [flags]             Collect profile URLs from the connections page
  referrals import --csv <file>         Merge profile URLs from a connections CSV export
  referrals export --csv <file>         Write stored decisions to CSV (--eligible-only)
  referrals extract [flags]             Extract the next batch of pending profiles
  referrals extract --test <url>        Extract one profile interactively
  referrals classify [flags]            Classify every extracted, undecided profile
  referrals classify --test <url>       Classify one extracted profile interactively
  referrals keyring set|delete <target> Store or remove a secret in the OS keychain
  referrals version                     Print the version
  referrals help                        Show this help

Common flags:
  --config <path>   YAML config (default: referrals.yml if present)
  --data-dir <dir>  Directory holding connections.json, scraped_profiles.json, profiles_inf.json
  --debug           Debug logging
  --fail-fast       Stop on the first per-profile failure
  --headless        Run the browser headless

Environment (a .env file is loaded if present):
  LINKEDIN_EMAIL     Sign-in email (required for harvest/extract)
  LINKEDIN_PASSWORD  Sign-in password (or: referrals keyring set linkedin <email>)
  GEMINI_API_KEY     Reasoning service key (or: referrals keyring set gemini)
  GEMINI_MODEL       Model override (default: gemini-2.0-flash)
  GEMINI_BASE_URL    API base URL override
  RESUME_LINK        Resume link included in generated messages
  SESSION_CAP        Profiles per extraction session (default: 30)
  SETTLE_DELAY       Pause after sign-in for manual checks (default: 30s)
  PACE_MIN/PACE_MAX  Randomized pause between profiles (default: 5s/10s)
  MAX_RETRIES        Retries for transient reasoning failures (default: 3)
  DATA_DIR           Data directory (default: .)
`)
}
