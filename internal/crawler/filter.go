package crawler

import "strings"

// Filter decisions.
const (
	FilterAllowed    = "allowed"
	FilterExcluded   = "excluded"
	FilterNotMatched = "not_included"
)

// KeywordFilter applies substring include/exclude lists to titles. Exclusion
// wins over inclusion; empty lists impose nothing.
type KeywordFilter struct {
	include []string
	exclude []string
}

// NewKeywordFilter trims and de-duplicates both keyword lists.
func NewKeywordFilter(include, exclude []string) KeywordFilter {
	return KeywordFilter{
		include: NormalizeKeywords(include),
		exclude: NormalizeKeywords(exclude),
	}
}

// Decide reports whether title passes and the decision label.
func (f KeywordFilter) Decide(title string) (bool, string) {
	for _, kw := range f.exclude {
		if strings.Contains(title, kw) {
			return false, FilterExcluded
		}
	}
	if len(f.include) == 0 {
		return true, FilterAllowed
	}
	for _, kw := range f.include {
		if strings.Contains(title, kw) {
			return true, FilterAllowed
		}
	}
	return false, FilterNotMatched
}

// NormalizeKeywords drops blanks and duplicates while preserving order.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
