package deploy

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation for reporting.
type Kind string

const (
	// KindPrecondition covers missing config, credentials or account resources.
	KindPrecondition Kind = "precondition"
	// KindExternal is a nonzero exit from git, docker or terraform.
	KindExternal Kind = "external"
	// KindUnsupported aborts deploy for a project the build planner rejects.
	KindUnsupported Kind = "unsupported"
	// KindInvalid is bad user input.
	KindInvalid Kind = "invalid"
)

// Error carries the Kind and the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
