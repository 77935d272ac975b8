package repo

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrorNotFound       = errors.New("not found")
	ErrorConflict       = errors.New("conflict")
	ErrInvalidReference = errors.New("notebook does not exist")
)

// IOError reports that the underlying storage failed.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// WrapIO leaves domain errors untouched and wraps everything else in an IOError.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrorNotFound) || errors.Is(err, ErrorConflict) || errors.Is(err, ErrInvalidReference) {
		return err
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Err: err}
}

// IsCanceled reports whether err came from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
