package metis

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures raised while compiling or executing a template.
type ErrorType string

const (
	ErrConfiguration ErrorType = "configuration_error"
	ErrScope         ErrorType = "scope_error"
	ErrDelegation    ErrorType = "delegation_error"
	ErrParse         ErrorType = "parse_error"
)

var (
	// ErrMissingAttribute is reported when a handler requires an attribute the element lacks.
	ErrMissingAttribute = errors.New("required attribute missing")
	// ErrInvalidToken is reported when a child scope is entered without a comparable owner token.
	ErrInvalidToken = errors.New("owner token must be non-nil and comparable")
	// ErrOwnerMismatch is reported when a child scope is exited with a foreign token.
	ErrOwnerMismatch = errors.New("owner token mismatch")
	// ErrScopeClosed is reported when a child scope is exited twice or the root is exited.
	ErrScopeClosed = errors.New("scope is not open")
	// ErrScopesOpen is reported when a child scope is exited before the scopes entered on it.
	ErrScopesOpen  = errors.New("scope has open child scopes")
	ErrNoDocument  = errors.New("compiler returned no document")
	ErrNoCompiler  = errors.New("no document compiler configured")
	ErrNoEvaluator = errors.New("no expression evaluator configured")
	ErrNoServices  = errors.New("no service lookup configured")
	ErrUnknownKind = errors.New("unknown handler kind")
	// ErrLibraryExists indicates a duplicate library registration.
	ErrLibraryExists = errors.New("handler library already registered")
	ErrNoLibrary     = errors.New("handler library not found")
)

// Error wraps a failure with its classification and the element location that caused it.
type Error struct {
	Type      ErrorType
	Message   string
	Location  Location
	Attribute string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if !e.Location.IsZero() {
		msg = e.Location.String() + ": " + msg
	}
	if e.Attribute != "" {
		msg = fmt.Sprintf("%s (attribute %q)", msg, e.Attribute)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func missingAttribute(el *Element, name string) error {
	return &Error{
		Type:      ErrConfiguration,
		Message:   fmt.Sprintf("<%s> requires attribute", el.Name()),
		Location:  el.Location(),
		Attribute: name,
		Err:       ErrMissingAttribute,
	}
}

func configError(el *Element, attr string, err error) error {
	var loc Location
	name := ""
	if el != nil {
		loc = el.Location()
		name = el.Name()
	}
	return &Error{
		Type:      ErrConfiguration,
		Message:   fmt.Sprintf("<%s> is misconfigured", name),
		Location:  loc,
		Attribute: attr,
		Err:       err,
	}
}

func scopeError(msg string, err error) error {
	return &Error{Type: ErrScope, Message: msg, Err: err}
}

func delegationError(el *Element, msg string, err error) error {
	var loc Location
	if el != nil {
		loc = el.Location()
	}
	return &Error{Type: ErrDelegation, Message: msg, Location: loc, Err: err}
}

// IsType reports whether err carries an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Type == t
	}
	return false
}
