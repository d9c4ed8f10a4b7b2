package mlevelerrors

import "fmt"

type MethodLevelError struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func (mle MethodLevelError) Error() string {
	return fmt.Sprintf("methodlevel error type %s: %s", mle.Type, mle.Description)
}

func NewMethodLevelErrorServerPartialFail() *MethodLevelError {
	return &MethodLevelError{
		Type: "serverPartialFail",
	}
}

func NewMethodLevelErrorServerFail() *MethodLevelError {
	return &MethodLevelError{
		Type: "serverFail",
	}
}

func NewMethodLevelErrorUnknownMethod() *MethodLevelError {
	return &MethodLevelError{
		Type: "unknownMethod",
	}
}

func NewMethodLevelErrorInvalidArguments(description string) *MethodLevelError {
	return &MethodLevelError{
		Type:        "invalidArguments",
		Description: description,
	}
}

func NewMethodLevelErrorInvalidResultReference(description string) *MethodLevelError {
	return &MethodLevelError{
		Type:        "invalidResultReference",
		Description: description,
	}
}

func NewMethodLevelErrorForbidden() *MethodLevelError {
	return &MethodLevelError{
		Type: "forbidden",
	}
}

func NewMethodLevelErrorAccountNotFound() *MethodLevelError {
	return &MethodLevelError{
		Type: "accountNotFound",
	}
}

func NewMethodLevelErrorAccountNotSupportedByMethod() *MethodLevelError {
	return &MethodLevelError{
		Type: "accountNotSupportedByMethod",
	}
}

func NewMethodLevelErrorAccountReadOnly() *MethodLevelError {
	return &MethodLevelError{
		Type: "accountReadOnly",
	}
}

func NewMethodLevelErrorRequestTooLarge() *MethodLevelError {
	return &MethodLevelError{
		Type: "requestTooLarge",
	}
}

// NewMethodLevelErrorUnsupportedFilter is returned by Foo/query when the
// filter contains a property or operator the server cannot interpret.
func NewMethodLevelErrorUnsupportedFilter(description string) *MethodLevelError {
	return &MethodLevelError{
		Type:        "unsupportedFilter",
		Description: description,
	}
}

func NewMethodLevelErrorUnsupportedSort(description string) *MethodLevelError {
	return &MethodLevelError{
		Type:        "unsupportedSort",
		Description: description,
	}
}

func NewMethodLevelErrorCannotCalculateChanges() *MethodLevelError {
	return &MethodLevelError{
		Type: "cannotCalculateChanges",
	}
}

func NewMethodLevelErrorStateMismatch() *MethodLevelError {
	return &MethodLevelError{
		Type: "stateMismatch",
	}
}

// SetError explains why an individual create/update/destroy in a Foo/set
// request was rejected. Properties lists the offending properties, when known.
type SetError struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Properties  []string `json:"properties,omitempty"`
}

func (se SetError) Error() string {
	return fmt.Sprintf("set error type %s: %s", se.Type, se.Description)
}

func NewSetErrorInvalidArguments(description string, properties ...string) *SetError {
	return &SetError{
		Type:        "invalidArguments",
		Description: description,
		Properties:  properties,
	}
}

func NewSetErrorInvalidPatch(description string) *SetError {
	return &SetError{
		Type:        "invalidPatch",
		Description: description,
	}
}

func NewSetErrorNotFound() *SetError {
	return &SetError{
		Type: "notFound",
	}
}

func NewSetErrorForbidden(description string, properties ...string) *SetError {
	return &SetError{
		Type:        "forbidden",
		Description: description,
		Properties:  properties,
	}
}

func NewSetErrorMailboxHasEmail() *SetError {
	return &SetError{
		Type: "mailboxHasEmail",
	}
}

func NewSetErrorMailboxHasChild() *SetError {
	return &SetError{
		Type: "mailboxHasChild",
	}
}

func NewSetErrorServerFail() *SetError {
	return &SetError{
		Type: "serverFail",
	}
}
