package dispatch

import "fmt"

// Kind categorizes dispatch failures so the handler can map each to the
// right status code.
type Kind string

const (
	// KindUpstreamRateLimited: the completion endpoint returned 429.
	KindUpstreamRateLimited Kind = "upstream_rate_limited"
	// KindPaymentRequired: the completion endpoint returned 402.
	KindPaymentRequired Kind = "payment_required"
	// KindTimeout: the outbound call exceeded its deadline.
	KindTimeout Kind = "upstream_timeout"
	// KindUpstreamFailure: any other non-2xx or transport failure.
	KindUpstreamFailure Kind = "upstream_failure"
	// KindSchemaViolation: no tool call, wrong tool name arguments, or a
	// structure that doesn't match the requested type's contract.
	KindSchemaViolation Kind = "schema_violation"
	// KindConfiguration: the contract table failed its own self-check.
	KindConfiguration Kind = "configuration"
)

// Error is a typed dispatch failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
