package replication

import (
	"errors"
	"fmt"
)

// Kind classifies replication failures.
type Kind int

const (
	// TransportError means the destination could not be reached or
	// the exchange failed.
	TransportError Kind = iota + 1
	// StoreUnavailable means a store get or set failed.
	StoreUnavailable
	// ParseError means inbound or destination data could not be
	// parsed.
	ParseError
	// UnsupportedMethod means no builder exists for the request
	// method.
	UnsupportedMethod
	// InvalidDestination means the destination URI cannot be built.
	InvalidDestination
)

func (k Kind) String() string {
	switch k {
	case TransportError:
		return "transport"
	case StoreUnavailable:
		return "store"
	case ParseError:
		return "parse"
	case UnsupportedMethod:
		return "method"
	case InvalidDestination:
		return "destination"
	default:
		return "unknown"
	}
}

// Error is returned by all replication operations.
type Error struct {
	Kind Kind
	// Op is the failed operation, e.g. "send" or "get cookie jar".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("replication %s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("replication %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is or wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Kind == kind
}

// KindOf returns the kind of the *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}
