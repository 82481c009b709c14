package validate

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize normalizes a prompt before it is forwarded upstream: strips NUL
// bytes and non-printable control characters other than newline and tab,
// trims surrounding whitespace, and collapses internal whitespace runs to
// single spaces. Control characters are stripped before runs are collapsed
// so a stripped character flanked by spaces cannot leave a residual run.
// Sanitizing an already-clean prompt is a no-op, so the function is
// idempotent.
func Sanitize(prompt string) string {
	s := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == 0 || unicode.IsControl(r) {
			return -1
		}
		return r
	}, prompt)
	s = strings.TrimSpace(s)
	return whitespaceRun.ReplaceAllString(s, " ")
}
