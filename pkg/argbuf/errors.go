package argbuf

import (
	"errors"
	"fmt"
)

var (
	ErrOverflow          = errors.New("argbuf: size overflow")
	ErrResourceExhausted = errors.New("argbuf: resource exhausted")
	ErrInvalidArgument   = errors.New("argbuf: invalid argument")
	ErrInternal          = errors.New("argbuf: internal error")
	ErrAddressOverflow   = errors.New("argbuf: address overflow")
	ErrInvalidState      = errors.New("argbuf: invalid buffer state")
	ErrCorruptHeader     = errors.New("argbuf: corrupt header")
)

// Error describes a failed operation. It unwraps to one of the package
// sentinels so callers can use errors.Is.
type Error struct {
	Op   string
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func invalidArg(op, format string, args ...any) error {
	return newError(op, ErrInvalidArgument, format, args...)
}
