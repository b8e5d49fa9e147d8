package engine

import (
	"errors"
	"fmt"

	"github.com/your-org/classcam/internal/enrollment"
	"github.com/your-org/classcam/internal/facedb"
)

// Kind classifies engine failures for callers.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is returned by every engine operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// classify maps package errors onto engine kinds. Unknown errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var dup *facedb.DuplicateIDError
	switch {
	case errors.As(err, &dup),
		errors.Is(err, facedb.ErrSectionExists),
		errors.Is(err, facedb.ErrEmptyName),
		errors.Is(err, enrollment.ErrMissingField),
		errors.Is(err, enrollment.ErrInvalidExternalID),
		errors.Is(err, enrollment.ErrNoSamples):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	case errors.Is(err, facedb.ErrSectionNotFound),
		errors.Is(err, facedb.ErrIdentityNotFound),
		errors.Is(err, enrollment.ErrSessionNotFound),
		errors.Is(err, errSessionNotFound),
		errors.Is(err, errNoActiveModal):
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	}
	return err
}
