package commands

import (
	"errors"

	"github.com/spachava753/invoke"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitTransport  = 2
	ExitDecode     = 3
	ExitCancelled  = 4
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) ExitCode() int { return e.code }

func exitWithCode(code int, err error) error {
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return &exitError{code: code, err: err}
}

func exitCodeFor(err error) int {
	var (
		ire *invoke.InvalidRequestErr
		de  *invoke.DecodeErr
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, invoke.ErrCancelled):
		return ExitCancelled
	case errors.As(err, &ire):
		return ExitValidation
	case errors.As(err, &de):
		return ExitDecode
	default:
		return ExitTransport
	}
}
