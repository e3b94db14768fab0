// Package session drives one authenticated remote session through its lifecycle:
// Idle -> Authenticating -> Settling -> Iterating -> Closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

// State is a Driver lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateSettling
	StateIterating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateSettling:
		return "settling"
	case StateIterating:
		return "iterating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Credentials authenticate against the remote source.
type Credentials struct {
	Username string
	Password string
}

// Remote is an acquired session against the remote source.
type Remote interface {
	Login(ctx context.Context, creds Credentials) error
	Close() error
}

// Options configures a Driver.
type Options struct {
	// Settle is the pause after authentication reserved for out-of-band checks
	// (second factor, captcha). Zero skips it.
	Settle time.Duration
	// Sleep defaults to core.Sleep.
	Sleep core.SleepFunc
}

// Driver acquires a Remote, authenticates, waits out the settle window, runs the
// iteration body and always releases the Remote.
type Driver[R Remote] struct {
	acquire func(ctx context.Context) (R, error)
	creds   Credentials
	opts    Options
	logger  *slog.Logger

	state   State
	history []State
}

// NewDriver returns a Driver in StateIdle.
func NewDriver[R Remote](acquire func(ctx context.Context) (R, error), creds Credentials, opts Options, logger *slog.Logger) *Driver[R] {
	if opts.Sleep == nil {
		opts.Sleep = core.Sleep
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver[R]{
		acquire: acquire,
		creds:   creds,
		opts:    opts,
		logger:  logger,
		state:   StateIdle,
		history: []State{StateIdle},
	}
}

// State returns the current state.
func (d *Driver[R]) State() State { return d.state }

// History returns every state entered, in order.
func (d *Driver[R]) History() []State {
	return append([]State(nil), d.history...)
}

func (d *Driver[R]) enter(s State) {
	d.state = s
	d.history = append(d.history, s)
	d.logger.Debug("session state", "state", s.String())
}

// Run executes one session. Authentication failures come back as
// *core.AuthenticationError and are never retried. The remote is closed on every
// path once acquired.
func (d *Driver[R]) Run(ctx context.Context, iterate func(ctx context.Context, remote R) error) (err error) {
	if d.state != StateIdle {
		return fmt.Errorf("session: run from state %s", d.state)
	}

	d.enter(StateAuthenticating)
	remote, err := d.acquire(ctx)
	if err != nil {
		d.enter(StateClosed)
		return fmt.Errorf("session: acquire: %w", err)
	}
	defer func() {
		d.enter(StateClosed)
		if cerr := remote.Close(); cerr != nil {
			d.logger.Warn("session: close failed", "error", cerr)
			if err == nil {
				err = fmt.Errorf("session: close: %w", cerr)
			}
		}
	}()

	d.logger.Info("logging in")
	if err := remote.Login(ctx, d.creds); err != nil {
		var ae *core.AuthenticationError
		if errors.As(err, &ae) {
			return err
		}
		return &core.AuthenticationError{Err: err}
	}
	d.logger.Info("logged in")

	d.enter(StateSettling)
	if d.opts.Settle > 0 {
		d.logger.Info("waiting for manual verification window", "settle", d.opts.Settle)
		if err := d.opts.Sleep(ctx, d.opts.Settle); err != nil {
			return err
		}
	}

	d.enter(StateIterating)
	return iterate(ctx, remote)
}
