package threat

// Scanner classifies text blobs against the threat pattern families. It is
// pure: no state beyond the compiled patterns, no side effects, never panics.
type Scanner struct {
	families []Family
}

// NewScanner creates a scanner with the default pattern families.
func NewScanner() *Scanner {
	return &Scanner{families: DefaultFamilies()}
}

// Detect scans text and returns the triggered category labels in family
// order. Each family reports at most once; a clean text yields nil.
func (s *Scanner) Detect(text string) []Label {
	if text == "" {
		return nil
	}
	var labels []Label
	for _, f := range s.families {
		for _, p := range f.Patterns {
			if p.MatchString(text) {
				labels = append(labels, f.Label)
				break
			}
		}
	}
	return labels
}

// LabelStrings converts labels to strings for response details and logging.
func LabelStrings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
