package remote

import (
	"context"
	"errors"
	"net"
)

// Failure kinds a remote store reports. Backends wrap the underlying cause in
// an *Error whose Kind is one of these.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrConflictOnInsert   = errors.New("conflict on insert")
	ErrBackend            = errors.New("backend error")
)

// Reason is the short code carried in status signals.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonNetwork          Reason = "network_unavailable"
	ReasonPermission       Reason = "permission_denied"
	ReasonNotFound         Reason = "resource_not_found"
	ReasonConflict         Reason = "conflict_on_insert"
	ReasonBackend          Reason = "backend_error"
)

// Error is a classified remote failure.
type Error struct {
	Kind    error
	Op      string
	Backend string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Backend + " " + e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(backend, op string, kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Backend: backend, Err: cause}
}

// Classify maps any error returned by a Store onto a reason code.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNotAuthenticated):
		return ReasonNotAuthenticated
	case errors.Is(err, ErrNetworkUnavailable):
		return ReasonNetwork
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermission
	case errors.Is(err, ErrResourceNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrConflictOnInsert):
		return ReasonConflict
	}
	if isTransport(err) {
		return ReasonNetwork
	}
	return ReasonBackend
}

func isTransport(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed)
}
