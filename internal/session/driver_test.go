package session_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shpitdev/referral-pipeline/internal/session"
	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
)

type fakeRemote struct {
	loginErr error
	closed   int
	creds    session.Credentials
}

func (r *fakeRemote) Login(_ context.Context, creds session.Credentials) error {
	r.creds = creds
	return r.loginErr
}

func (r *fakeRemote) Close() error {
	r.closed++
	return nil
}

func acquireFake(r *fakeRemote) func(context.Context) (*fakeRemote, error) {
	return func(context.Context) (*fakeRemote, error) { return r, nil }
}

func TestDriverRunWalksLifecycle(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	var slept []time.Duration
	d := session.NewDriver(acquireFake(remote), session.Credentials{Username: "u", Password: "p"}, session.Options{
		Settle: 30 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}, nil)

	iterated := false
	err := d.Run(context.Background(), func(_ context.Context, r *fakeRemote) error {
		iterated = true
		if r != remote {
			t.Fatalf("iterate got a different remote")
		}
		if d.State() != session.StateIterating {
			t.Fatalf("state during iterate = %s", d.State())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !iterated {
		t.Fatalf("iterate was not called")
	}
	if remote.closed != 1 {
		t.Fatalf("closed = %d, want 1", remote.closed)
	}
	if remote.creds.Username != "u" {
		t.Fatalf("creds not passed: %+v", remote.creds)
	}
	if !reflect.DeepEqual(slept, []time.Duration{30 * time.Second}) {
		t.Fatalf("slept = %v", slept)
	}
	want := []session.State{
		session.StateIdle,
		session.StateAuthenticating,
		session.StateSettling,
		session.StateIterating,
		session.StateClosed,
	}
	if got := d.History(); !reflect.DeepEqual(got, want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
}

func TestDriverRunLoginFailureIsAuthenticationError(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{loginErr: errors.New("bad password")}
	d := session.NewDriver(acquireFake(remote), session.Credentials{}, session.Options{}, nil)

	err := d.Run(context.Background(), func(context.Context, *fakeRemote) error {
		t.Fatalf("iterate must not run after failed login")
		return nil
	})
	var ae *core.AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("Run() error = %v, want AuthenticationError", err)
	}
	if !core.IsFatal(err) {
		t.Fatalf("authentication failure should be fatal")
	}
	if remote.closed != 1 {
		t.Fatalf("closed = %d, want 1", remote.closed)
	}
	if d.State() != session.StateClosed {
		t.Fatalf("state = %s", d.State())
	}
}

func TestDriverRunClosesOnIterateError(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	d := session.NewDriver(acquireFake(remote), session.Credentials{}, session.Options{}, nil)
	boom := errors.New("boom")
	err := d.Run(context.Background(), func(context.Context, *fakeRemote) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v", err)
	}
	if remote.closed != 1 {
		t.Fatalf("closed = %d, want 1", remote.closed)
	}
}

func TestDriverRunCanceledDuringSettle(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	ctx, cancel := context.WithCancel(context.Background())
	d := session.NewDriver(acquireFake(remote), session.Credentials{}, session.Options{
		Settle: time.Hour,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, nil)
	err := d.Run(ctx, func(context.Context, *fakeRemote) error {
		t.Fatalf("iterate must not run")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if remote.closed != 1 {
		t.Fatalf("closed = %d", remote.closed)
	}
}

func TestDriverRunAcquireFailure(t *testing.T) {
	t.Parallel()

	d := session.NewDriver(func(context.Context) (*fakeRemote, error) {
		return nil, errors.New("no browser")
	}, session.Credentials{}, session.Options{}, nil)
	if err := d.Run(context.Background(), func(context.Context, *fakeRemote) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}
	if d.State() != session.StateClosed {
		t.Fatalf("state = %s", d.State())
	}
	if err := d.Run(context.Background(), func(context.Context, *fakeRemote) error { return nil }); err == nil {
		t.Fatalf("second Run should fail from closed state")
	}
}
