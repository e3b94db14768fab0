package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Processor transforms one input item into one output item.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// Reasoner is the remote reasoning collaborator: prompt in, free-form text out.
//
// Errors should be *RemoteError (or one of the marker types below) so the
// retry controller can classify them.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrNavigationTimeout reports that a page never showed its primary content marker.
// It is local to one identifier and never aborts a batch.
var ErrNavigationTimeout = errors.New("navigation timeout")

// TransientError marks an error as retryable (overload, rate limiting).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// QuotaExceededError marks a quota rejection. It is retried like a transient error.
type QuotaExceededError struct {
	Err error
}

func (e *QuotaExceededError) Error() string {
	if e == nil || e.Err == nil {
		return "quota exceeded"
	}
	return e.Err.Error()
}

func (e *QuotaExceededError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PermanentError marks a failure that retrying cannot fix (malformed response,
// unexpected payload shape).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AuthenticationError aborts a run: credentials are never retried.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e == nil || e.Err == nil {
		return "authentication failed"
	}
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RemoteError is a sanitized summary of a non-2xx response from a remote collaborator.
type RemoteError struct {
	Op         string
	StatusCode int
	// Payload is the error message/body returned by the remote side. It is used
	// to detect quota markers and must not carry credentials.
	Payload string
	Err     error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "remote error"
	}
	parts := []string{fmt.Sprintf("remote error: op=%s status=%d", strings.TrimSpace(e.Op), e.StatusCode)}
	if p := strings.TrimSpace(e.Payload); p != "" {
		parts = append(parts, "payload="+p)
	}
	return strings.Join(parts, " ")
}

func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FatalError wraps a structural failure (store write, lost session) that must
// abort the whole run rather than being recorded against one item.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	if e == nil || e.Err == nil {
		return "fatal error"
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fatal wraps err so item drivers stop the run. Nil stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return true
	}
	var ae *AuthenticationError
	return errors.As(err, &ae)
}
