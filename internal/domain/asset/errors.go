package asset

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure classes the HTTP boundary maps to status codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindPathSafety
	KindUnsupportedProvider
	KindConflict
	KindTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPathSafety:
		return "path_safety"
	case KindUnsupportedProvider:
		return "unsupported_provider"
	case KindConflict:
		return "conflict"
	case KindTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// Error carries a kind plus the operation that failed. Detail and Fields are safe to show
// callers for validation failures only.
type Error struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

var ErrAssetNotFound = errors.New("asset not found")

// KindOf reports the kind of err, defaulting to KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrAssetNotFound) {
		return KindNotFound
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func validationErr(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func notFoundErr(op string, cause error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: cause}
}

func internalErr(op string, cause error) error {
	return &Error{Kind: KindInternal, Op: op, Err: cause}
}

func pathSafetyErr(op, key string) error {
	return &Error{Kind: KindPathSafety, Op: op, Detail: fmt.Sprintf("key %q escapes storage root", key)}
}
