// Package rules applies deterministic rewrite transformations to single
// sentences: synonym substitution, structural pattern rewrites, and filler
// phrase removal. Rule tables are static configuration built at package init
// and never mutated; the engine itself holds only the table reference and a
// seed, so one engine may be shared across goroutines.
package rules

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/luotian/rephrase/internal"
	"github.com/luotian/rephrase/internal/protect"
)

// Engine applies one language's rule table with a fixed seed. Results are
// reproducible: the same (table, seed, sentence, intensity, terms) always
// yields the same output.
type Engine struct {
	table *Table
	seed  int64
}

// NewEngine builds an engine over a static table. The seed drives candidate
// selection for substitutions.
func NewEngine(table *Table, seed int64) *Engine {
	return &Engine{table: table, seed: seed}
}

// Lang returns the language code of the underlying table.
func (e *Engine) Lang() string { return e.table.Lang }

// Rewrite transforms one sentence and reports the IDs of the rules applied.
// Stage order matters: substitutions first, then the first structurally
// matching pattern, then fillers last (fillers shift offsets, which would
// invalidate the protected-span checks of earlier stages). Matches that
// intersect a protected span are suppressed. A rule that cannot be applied
// safely is skipped; the sentence is never left in a broken state.
func (e *Engine) Rewrite(sentence string, task internal.Task, intensity int, terms []string) (string, []string) {
	if sentence == "" {
		return sentence, nil
	}
	var applied []string
	cur := sentence

	// Filler thinning serves both tasks; substitutions and structural
	// rewrites only help against overlap detectors.
	if task == internal.TaskDedup {
		// Substitution budget grows with intensity so higher levels
		// rewrite more aggressively.
		budget := 2 * intensity
		for _, sub := range e.table.Substitutions {
			if budget <= 0 {
				break
			}
			spans := protect.Find(cur, terms)
			next, n := applySubstitution(cur, sub, e.seed, spans, budget)
			if n > 0 {
				cur = next
				budget -= n
				applied = append(applied, sub.ID)
			}
		}

		for _, pat := range e.table.Patterns {
			next, ok := applyPattern(cur, pat, terms)
			if !ok {
				continue
			}
			cur = next
			applied = append(applied, pat.ID)
			// Only the first structural match fires, to avoid
			// runaway transformation.
			break
		}
	}

	for _, fill := range e.table.Fillers {
		next, ok := applyFiller(cur, fill, terms)
		if ok {
			cur = next
			applied = append(applied, fill.ID)
		}
	}

	return cur, applied
}

// applySubstitution replaces up to budget occurrences of sub.Source in text,
// skipping matches inside protected spans. The candidate is chosen by seeded
// rotation keyed on the match's rune offset; identity replacements advance to
// the next candidate.
func applySubstitution(text string, sub Substitution, seed int64, spans []protect.Span, budget int) (string, int) {
	if sub.Source == "" || len(sub.Candidates) == 0 {
		return text, 0
	}
	var b strings.Builder
	replaced := 0
	pos := 0
	for replaced < budget {
		i := strings.Index(text[pos:], sub.Source)
		if i == -1 {
			break
		}
		start := pos + i
		end := start + len(sub.Source)
		switch {
		case protect.Intersects(spans, start, end):
			b.WriteString(text[pos:end])
		case !wordBounded(text, start, end):
			b.WriteString(text[pos:end])
		default:
			cand := pickCandidate(sub, seed, utf8.RuneCountInString(text[:start]))
			b.WriteString(text[pos:start])
			b.WriteString(cand)
			replaced++
		}
		pos = end
	}
	if replaced == 0 {
		return text, 0
	}
	b.WriteString(text[pos:])
	return b.String(), replaced
}

// wordBounded rejects matches glued to surrounding letters, so "use" never
// fires inside "because". Han text has no word boundaries and always passes.
func wordBounded(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:])
	if unicode.Is(unicode.Han, first) {
		return true
	}
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(next) || unicode.IsDigit(next) {
			return false
		}
	}
	return true
}

// pickCandidate rotates through candidates keyed on seed and rune offset.
// A candidate equal to the source token is skipped.
func pickCandidate(sub Substitution, seed int64, runeOffset int) string {
	n := int64(len(sub.Candidates))
	idx := (seed + int64(runeOffset)) % n
	if idx < 0 {
		idx += n
	}
	cand := sub.Candidates[idx]
	if cand == sub.Source {
		cand = sub.Candidates[(idx+1)%n]
	}
	return cand
}

var templateGroupRe = regexp.MustCompile(`\$\{?(\d+)\}?`)

// applyPattern rewrites the first match of pat in text via its template.
// A template referencing a capture group the regex does not have is a
// malformed rule: it is skipped, not fatal. The rewrite is also discarded
// when it would lose a protected term.
func applyPattern(text string, pat SentencePattern, terms []string) (string, bool) {
	if maxGroupRef(pat.Template) > pat.Match.NumSubexp() {
		return text, false
	}
	loc := pat.Match.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, false
	}
	expanded := pat.Match.ExpandString(nil, pat.Template, text, loc)
	candidate := text[:loc[0]] + string(expanded) + text[loc[1]:]
	if len(protect.Missing(text, candidate, terms)) > 0 {
		return text, false
	}
	return candidate, true
}

func maxGroupRef(template string) int {
	max := 0
	for _, m := range templateGroupRe.FindAllStringSubmatch(template, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}

// applyFiller removes or softens occurrences of fill.Phrase outside protected
// spans. Once-rules replace the first occurrence only.
func applyFiller(text string, fill FillerRemoval, terms []string) (string, bool) {
	spans := protect.Find(text, terms)
	var b strings.Builder
	changed := false
	pos := 0
	for {
		i := strings.Index(text[pos:], fill.Phrase)
		if i == -1 {
			break
		}
		start := pos + i
		end := start + len(fill.Phrase)
		if protect.Intersects(spans, start, end) || (fill.Once && changed) {
			b.WriteString(text[pos:end])
		} else {
			b.WriteString(text[pos:start])
			b.WriteString(fill.Replacement)
			changed = true
		}
		pos = end
	}
	if !changed {
		return text, false
	}
	b.WriteString(text[pos:])
	return b.String(), true
}
