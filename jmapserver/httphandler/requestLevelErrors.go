package httphandler

import "fmt"

// Request level error types from https://datatracker.ietf.org/doc/html/rfc8620#section-3.6.1
const (
	requestErrorTypeUnknownCapability = "urn:ietf:params:jmap:error:unknownCapability"
	requestErrorTypeNotJSON           = "urn:ietf:params:jmap:error:notJSON"
	requestErrorTypeNotRequest        = "urn:ietf:params:jmap:error:notRequest"
	requestErrorTypeLimit             = "urn:ietf:params:jmap:error:limit"
)

// LimitType names the limit exceeded in a limit error.
type LimitType string

const (
	LimitTypeMaxSizeRequest    LimitType = "maxSizeRequest"
	LimitTypeMaxCallsInRequest LimitType = "maxCallsInRequest"
)

// RequestLevelError rejects a whole request before any method call is
// processed. It is serialized as an RFC 7807 problem detail.
type RequestLevelError struct {
	Type   string    `json:"type"`
	Status int       `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Limit  LimitType `json:"limit,omitempty"`
}

func (rle RequestLevelError) Error() string {
	return fmt.Sprintf("request level error type %s: %s", rle.Type, rle.Detail)
}

func NewRequestLevelErrorNotJSON(detail string) *RequestLevelError {
	return &RequestLevelError{
		Type:   requestErrorTypeNotJSON,
		Status: 400,
		Detail: detail,
	}
}

func NewRequestLevelErrorNotJSONContentType() *RequestLevelError {
	return &RequestLevelError{
		Type:   requestErrorTypeNotJSON,
		Status: 400,
		Detail: fmt.Sprintf("content type must be %s", HeaderContentTypeJSON),
	}
}

func NewRequestLevelErrorNotRequest(detail string) *RequestLevelError {
	return &RequestLevelError{
		Type:   requestErrorTypeNotRequest,
		Status: 400,
		Detail: detail,
	}
}

func NewRequestLevelErrorUnknownCapability(detail string) *RequestLevelError {
	return &RequestLevelError{
		Type:   requestErrorTypeUnknownCapability,
		Status: 400,
		Detail: detail,
	}
}

func NewRequestLevelErrorCapabilityLimit(limit LimitType, detail string) *RequestLevelError {
	return &RequestLevelError{
		Type:   requestErrorTypeLimit,
		Status: 400,
		Detail: detail,
		Limit:  limit,
	}
}
