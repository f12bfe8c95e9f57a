package catalog

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the data-access layer.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork: upstream unreachable or answered with a non-2xx status.
	KindNetwork
	// KindInvalidShape: payload is not JSON or lacks the expected fields.
	KindInvalidShape
	// KindForbiddenDomain: proxy target outside the allow-list.
	KindForbiddenDomain
	// KindMissingParameter: a required query or body field is absent.
	KindMissingParameter
	// KindRevalidationPartial: one or more tags failed to invalidate.
	KindRevalidationPartial
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_failure"
	case KindInvalidShape:
		return "invalid_response_shape"
	case KindForbiddenDomain:
		return "forbidden_domain"
	case KindMissingParameter:
		return "missing_parameter"
	case KindRevalidationPartial:
		return "revalidation_partial_failure"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the upstream client, the proxy gateway
// and the revalidation controller.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error. err may be nil.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return "catalog error"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
