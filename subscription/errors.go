package subscription

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no subscription matches the id for the given
// user. An id owned by a different user yields the same error; callers
// cannot tell "does not exist" from "not yours".
var ErrNotFound = errors.New("subscription not found")

// ValidationError signals a missing or out-of-domain field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError signals that the user already has an active subscription
// with the same name. ExistingID is populated only when the existing
// subscription has a different frequency, so the caller can update or
// cancel it first.
type ConflictError struct {
	Name              string
	ExistingFrequency Frequency
	ExistingID        string
}

func (e *ConflictError) Error() string {
	if len(e.ExistingID) > 0 {
		return fmt.Sprintf("an active %s subscription for %q already exists (id %s); update or cancel it first",
			e.ExistingFrequency, e.Name, e.ExistingID)
	}
	return fmt.Sprintf("an active %s subscription for %q already exists", e.ExistingFrequency, e.Name)
}

// InvalidStateError signals an operation not permitted in the subscription's
// current status, e.g. cancelling an already cancelled subscription
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a %s subscription", e.Op, e.Status)
}

// InvalidArgumentError signals a value outside the accepted domain, e.g. an
// unknown frequency handed to the renewal arithmetic
type InvalidArgumentError struct {
	Argument string
	Value    string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Argument, e.Value)
}
