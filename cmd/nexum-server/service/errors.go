package service

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Handlers classify service errors against these
// with errors.Is to pick the HTTP status; anything else is a 500.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

type apiError struct {
	kind error
	msg  string
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.kind }

// NotFound builds an error that unwraps to ErrNotFound.
func NotFound(format string, args ...any) error {
	return &apiError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// InvalidArgument builds an error that unwraps to ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return &apiError{kind: ErrInvalidArgument, msg: fmt.Sprintf(format, args...)}
}
