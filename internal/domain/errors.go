package domain

import "errors"

// Kind is the closed set of failure categories reported to clients.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindPermissionDenied
	KindBlocked
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindBlocked:
		return "blocked"
	case KindConflict:
		return "conflict"
	}
	return "internal_error"
}

// Error carries a Kind plus structured context. Reason is a stable
// machine-readable code, Message is for humans.
type Error struct {
	Kind    Kind
	Op      string
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrNotFound) works for any NotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrBlocked          = &Error{Kind: KindBlocked}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInternal         = &Error{Kind: KindInternal}
)

func Validation(op, reason, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Reason: reason, Message: msg}
}

func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Reason: what + "_not_found", Message: what + " not found"}
}

func Denied(op, reason, msg string) error {
	return &Error{Kind: KindPermissionDenied, Op: op, Reason: reason, Message: msg}
}

func Blocked(op string) error {
	return &Error{Kind: KindBlocked, Op: op, Reason: "blocked", Message: "blocked in this server"}
}

func Conflict(op, reason, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Reason: reason, Message: msg}
}

// Internal wraps a collaborator failure. The wrapped error is kept for logs
// and never sent to clients.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf normalizes any error into a Kind. Unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Normalize returns err as a *Error, wrapping unknown errors as internal.
func Normalize(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// Wrap keeps typed errors as they are and turns everything else into an
// internal error annotated with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(op, err)
}
