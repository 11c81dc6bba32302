// Package protect identifies spans of a text that match glossary terms and
// must survive rewriting unchanged. Matching is longest-term-first so a long
// term is never shadowed by one of its own substrings, and the returned spans
// never overlap.
package protect

import (
	"sort"
	"strings"
)

// Span is a half-open byte range [Start, End) into the scanned text.
type Span struct {
	Start int
	End   int
	Term  string
}

// Find returns the non-overlapping spans of text covered by glossary terms.
// Longer terms are matched first; once a region is claimed, shorter terms
// inside it are ignored. Spans are returned in ascending Start order. The
// result is deterministic for identical input.
func Find(text string, terms []string) []Span {
	if text == "" || len(terms) == 0 {
		return nil
	}

	ordered := dedupeTerms(terms)

	var spans []Span
	for _, term := range ordered {
		from := 0
		for {
			i := strings.Index(text[from:], term)
			if i == -1 {
				break
			}
			start := from + i
			end := start + len(term)
			if !intersectsAny(spans, start, end) {
				spans = append(spans, Span{Start: start, End: end, Term: term})
			}
			from = start + 1
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// Intersects reports whether the byte range [start, end) touches any span.
func Intersects(spans []Span, start, end int) bool {
	return intersectsAny(spans, start, end)
}

// Missing returns the terms that occur in source but not in rewritten.
// It is used to validate that a rewrite preserved every protected term.
func Missing(source, rewritten string, terms []string) []string {
	var missing []string
	for _, term := range dedupeTerms(terms) {
		if strings.Contains(source, term) && !strings.Contains(rewritten, term) {
			missing = append(missing, term)
		}
	}
	return missing
}

func intersectsAny(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && end > s.Start {
			return true
		}
	}
	return false
}

// dedupeTerms drops empty and duplicate terms and orders the rest by
// descending byte length. Ties break lexicographically so the scan order
// is stable.
func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	ordered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}
