// Package taskerr defines the error kinds shared by the registry, the
// scheduler and the persistence layer.
//
// Errors are plain values. Nothing here logs on construction; boundary code
// that catches an error may call Log to report it.
package taskerr

import (
	"errors"
	"fmt"

	logx "tasktrack/pkg/logx"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("task already exists")
	ErrNotFound   = errors.New("task not found")
	ErrClosed     = errors.New("scheduler closed")
)

// Error carries the failing operation and a human-readable message.
// errors.Is(err, ErrValidation) (etc.) matches on Kind.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Is(target error) bool { return target != nil && target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Validation returns an ErrValidation-kind error.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ValidationWrap is Validation with an underlying cause (e.g. a parse error).
func ValidationWrap(op string, cause error, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func Duplicate(op, format string, args ...any) error {
	return &Error{Kind: ErrDuplicate, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Closed(op string) error {
	return &Error{Kind: ErrClosed, Op: op}
}

// Kind classifies err into one of the sentinel kinds, or nil if it is none of them.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrDuplicate, ErrNotFound, ErrClosed} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsUserError reports whether err is a caller-recoverable input problem
// (the kind a presentation layer shows as a message instead of failing).
func IsUserError(err error) bool {
	k := Kind(err)
	return k == ErrValidation || k == ErrDuplicate || k == ErrNotFound
}

// Log reports err at a level matching its kind: user errors at warn,
// ErrClosed at info, anything unclassified at error.
func Log(log logx.Logger, msg string, err error, fields ...logx.Field) {
	if err == nil || log.IsZero() {
		return
	}
	level := logx.LevelError
	switch Kind(err) {
	case ErrValidation, ErrDuplicate, ErrNotFound:
		level = logx.LevelWarn
	case ErrClosed:
		level = logx.LevelInfo
	}
	fields = append(fields, logx.Err(err))
	log.Log(level, msg, fields...)
}
