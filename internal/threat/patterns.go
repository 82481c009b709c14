package threat

import "regexp"

// Label identifies a threat category.
type Label string

const (
	LabelInjection Label = "injection"
	LabelSSRF      Label = "ssrf"
	LabelXSS       Label = "xss"
)

// Family groups the patterns for one threat category. A family contributes at
// most one label to a scan result; the first matching pattern short-circuits
// the rest of the family.
type Family struct {
	Label    Label
	Patterns []*regexp.Regexp
}

// DefaultFamilies returns the built-in threat pattern families in result
// order: injection, SSRF, XSS.
func DefaultFamilies() []Family {
	return []Family{
		{
			Label: LabelInjection,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules|context)`),
				regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior)\s+(instructions|context|rules)`),
				regexp.MustCompile(`(?i)(new|updated|override)\s+system\s+(role|prompt|instructions?)`),
				regexp.MustCompile(`(?i)\[\s*system\s*\]`),
				regexp.MustCompile(`(?i)<\s*script`),
				regexp.MustCompile(`(?i)javascript\s*:`),
				regexp.MustCompile(`(?i)\bon\w+\s*=`),
				regexp.MustCompile(`(?i)\beval\s*\(`),
				regexp.MustCompile(`(?i)\b(document|window)\s*\.`),
			},
		},
		{
			Label: LabelSSRF,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)https?://(localhost|127\.\d{1,3}\.\d{1,3}\.\d{1,3}|0\.0\.0\.0|\[::1\])`),
				regexp.MustCompile(`(?i)https?://(10\.\d{1,3}|192\.168|172\.(1[6-9]|2\d|3[01])|169\.254)\.`),
				regexp.MustCompile(`(?i)\b(file|ftp|gopher|dict)://`),
				// Credentials embedded in a URL (scheme://user@host). Requires
				// the scheme so a bare email address in free text doesn't trip it.
				regexp.MustCompile(`(?i)https?://[^\s/@]+@`),
			},
		},
		{
			Label: LabelXSS,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`),
				regexp.MustCompile(`(?i)javascript\s*:`),
				regexp.MustCompile(`(?i)\bon\w+\s*=`),
			},
		},
	}
}
