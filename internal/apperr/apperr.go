package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConnection: database unreachable, nothing was written
	KindConnection
	// KindQuery: statement failed (malformed SQL, constraint violation)
	KindQuery
	// KindAPI: upstream catalog failed or returned an unexpected shape
	KindAPI
	KindInvalidInput
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection_error"
	case KindQuery:
		return "query_error"
	case KindAPI:
		return "api_error"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown_error"
	}
}

// Error is the structured error every component returns at its boundary.
// Op names the failed operation ("upsert book", "search volumes"), Err is the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Connection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

func Query(op string, err error) *Error {
	return &Error{Kind: KindQuery, Op: op, Err: err}
}

func API(op string, err error) *Error {
	return &Error{Kind: KindAPI, Op: op, Err: err}
}

func InvalidInput(op string, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func NotFound(op string, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
