package ingest

import "strings"

// Matcher is a case-insensitive substring predicate over an ordered keyword
// list. Readiness promotion and importance filtering are both expressed as
// matchers so the keyword sets stay configuration, not parsing logic.
type Matcher struct {
	keywords []string
}

// NewMatcher builds a matcher from the given keywords. Empty keywords are
// dropped; matching is case-insensitive.
func NewMatcher(keywords []string) *Matcher {
	m := &Matcher{keywords: make([]string, 0, len(keywords))}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			m.keywords = append(m.keywords, kw)
		}
	}
	return m
}

// Match reports whether any keyword occurs in the line.
func (m *Matcher) Match(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Keywords returns the normalized keyword list.
func (m *Matcher) Keywords() []string {
	out := make([]string, len(m.keywords))
	copy(out, m.keywords)
	return out
}
