package validate

import (
	"fmt"

	"github.com/okrforge/gateway/internal/types"
)

// Limits holds the size and length ceilings enforced on incoming requests.
type Limits struct {
	MaxPayloadBytes int
	MaxPromptChars  int
	MinPromptChars  int
}

// DefaultLimits returns the standard request ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 50_000,
		MaxPromptChars:  5_000,
		MinPromptChars:  10,
	}
}

// Result is the outcome of a single validation check. Measured carries the
// observed size or length for logging and error messages.
type Result struct {
	Valid    bool
	Reason   string
	Measured int
}

func ok(measured int) Result {
	return Result{Valid: true, Measured: measured}
}

func fail(measured int, format string, args ...interface{}) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...), Measured: measured}
}

// PayloadSize checks a serialized request against the byte ceiling.
func (l Limits) PayloadSize(serialized []byte) Result {
	size := len(serialized)
	if size > l.MaxPayloadBytes {
		return fail(size, "payload of %d bytes exceeds the %d byte limit", size, l.MaxPayloadBytes)
	}
	return ok(size)
}

// PromptLength checks the prompt's character length against both bounds.
// Presence and type of the prompt field are Prompt's job, checked first.
func (l Limits) PromptLength(prompt string) Result {
	length := len([]rune(prompt))
	if length > l.MaxPromptChars {
		return fail(length, "prompt of %d characters exceeds the %d character limit", length, l.MaxPromptChars)
	}
	if length < l.MinPromptChars {
		return fail(length, "prompt of %d characters is below the %d character minimum", length, l.MinPromptChars)
	}
	return ok(length)
}

// RequestType checks that the type field is present, a string, and one of the
// recognized generation types.
func RequestType(v interface{}) Result {
	s, isString := v.(string)
	if v == nil || !isString {
		return fail(0, "type is required and must be one of: %v", types.ValidTypes)
	}
	if !types.GenerationType(s).IsValid() {
		return fail(len(s), "type %q is not recognized; must be one of: %v", s, types.ValidTypes)
	}
	return ok(len(s))
}

// Prompt checks that the prompt field is present and a string. Length bounds
// are a separate check so missing-field and bad-length failures stay distinct.
func Prompt(v interface{}) Result {
	s, isString := v.(string)
	if v == nil || !isString {
		return fail(0, "prompt is required and must be a string")
	}
	return ok(len([]rune(s)))
}
