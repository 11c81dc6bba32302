// Package segment splits a document into ordered sentences with exact byte
// offsets, then groups consecutive sentences into batches bounded by a rune
// budget. Offsets are preserved so that re-joining sentences with their
// surrounding whitespace reconstructs the source text byte for byte. It also
// extracts a trailing-sentence context snippet passed to LLM rewriters to
// keep batch boundaries coherent.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultBatchRunes is the default rune budget per batch.
	DefaultBatchRunes = 2000

	// DefaultContextSentences is the default number of trailing sentences
	// carried over as context between batches.
	DefaultContextSentences = 2

	// DefaultContextRunes caps the carried-over context length.
	DefaultContextRunes = 160
)

// Sentence is one sentence of a document. Text is the sentence without
// trailing whitespace; Start/End are byte offsets of Text within the source;
// Trail is the literal whitespace that followed the sentence and must be
// reinserted verbatim when output is assembled.
type Sentence struct {
	Text  string
	Start int
	End   int
	Trail string
}

// Document is the segmentation result. Lead is the literal whitespace before
// the first sentence.
type Document struct {
	Source    string
	Lead      string
	Sentences []Sentence
}

// Reconstruct rebuilds the exact source text from the segmentation.
func (d Document) Reconstruct() string {
	var b strings.Builder
	b.Grow(len(d.Source))
	b.WriteString(d.Lead)
	for _, s := range d.Sentences {
		b.WriteString(s.Text)
		b.WriteString(s.Trail)
	}
	return b.String()
}

// abbreviations that end with a period but do not terminate a sentence.
var abbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "etc": {}, "et": {}, "al": {}, "cf": {}, "vs": {},
	"fig": {}, "figs": {}, "eq": {}, "no": {}, "dr": {}, "mr": {}, "mrs": {},
	"ms": {}, "prof": {}, "st": {}, "approx": {}, "ca": {}, "resp": {},
}

// Split segments text into sentences. Sentence-final punctuation (。！？.!?)
// ends a sentence unless it appears inside quotation marks or parentheses,
// inside a decimal number, or after a common abbreviation. A document with
// no terminal punctuation yields exactly one sentence; empty or whitespace
// input yields none.
func Split(text string) Document {
	doc := Document{Source: text}
	if strings.TrimSpace(text) == "" {
		doc.Lead = text
		return doc
	}

	runes := []rune(text)
	offsets := make([]int, len(runes)+1)
	for i, off := 0, 0; i < len(runes); i++ {
		offsets[i] = off
		off += utf8.RuneLen(runes[i])
	}
	offsets[len(runes)] = len(text)

	// Leading whitespace belongs to the document, not the first sentence.
	start := 0
	for start < len(runes) && unicode.IsSpace(runes[start]) {
		start++
	}
	doc.Lead = text[:offsets[start]]

	parenDepth := 0
	inDouble := false // "…" straight double quotes toggle
	inCurly := false  // “…” curly quote pair

	i := start
	sentStart := start
	for i < len(runes) {
		r := runes[i]
		switch r {
		case '(', '（', '[', '【':
			parenDepth++
		case ')', '）', ']', '】':
			if parenDepth > 0 {
				parenDepth--
			}
		case '"':
			inDouble = !inDouble
		case '“': // “
			inCurly = true
		case '”': // ”
			inCurly = false
		}

		if isTerminator(r) && parenDepth == 0 && !inDouble && !inCurly &&
			!isDecimalPoint(runes, i) && !isAbbreviationPoint(runes, i) {
			end := i + 1
			// Consume runs of terminators and closing marks: …?!」』”’"')
			for end < len(runes) && (isTerminator(runes[end]) || isClosing(runes[end])) {
				end++
			}
			doc.Sentences = append(doc.Sentences, Sentence{
				Text:  text[offsets[sentStart]:offsets[end]],
				Start: offsets[sentStart],
				End:   offsets[end],
			})
			// Whitespace after the sentence becomes its trail.
			ws := end
			for ws < len(runes) && unicode.IsSpace(runes[ws]) {
				ws++
			}
			doc.Sentences[len(doc.Sentences)-1].Trail = text[offsets[end]:offsets[ws]]
			i = ws
			sentStart = ws
			continue
		}
		i++
	}

	// Remainder without terminal punctuation forms a final sentence.
	if sentStart < len(runes) {
		core := len(runes)
		for core > sentStart && unicode.IsSpace(runes[core-1]) {
			core--
		}
		doc.Sentences = append(doc.Sentences, Sentence{
			Text:  text[offsets[sentStart]:offsets[core]],
			Start: offsets[sentStart],
			End:   offsets[core],
			Trail: text[offsets[core]:],
		})
	}

	return doc
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?', '…':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '」', '』', '”', '’', '"', '\'', ')', '）', ']', '】':
		return true
	}
	return false
}

// isDecimalPoint reports whether the '.' at index i sits between two digits.
func isDecimalPoint(runes []rune, i int) bool {
	if runes[i] != '.' {
		return false
	}
	return i > 0 && i+1 < len(runes) &&
		unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

// isAbbreviationPoint reports whether the '.' at index i ends a known
// abbreviation or a single-letter initial ("J. Smith").
func isAbbreviationPoint(runes []rune, i int) bool {
	if runes[i] != '.' {
		return false
	}
	j := i
	for j > 0 && (unicode.IsLetter(runes[j-1]) || runes[j-1] == '.') {
		j--
	}
	word := strings.ToLower(strings.TrimSuffix(string(runes[j:i]), "."))
	word = strings.TrimPrefix(word, ".")
	if word == "" {
		return false
	}
	if len([]rune(word)) == 1 && word[0] >= 'a' && word[0] <= 'z' {
		return true
	}
	_, ok := abbreviations[word]
	return ok
}

// Batches groups consecutive sentences so each batch stays within maxRunes
// (counting sentence text and internal whitespace). Order is preserved; a
// single sentence longer than the budget forms a batch of its own. If
// maxRunes ≤ 0 the default budget applies.
func Batches(sentences []Sentence, maxRunes int) [][]Sentence {
	if maxRunes <= 0 {
		maxRunes = DefaultBatchRunes
	}
	var out [][]Sentence
	var cur []Sentence
	size := 0
	for _, s := range sentences {
		n := utf8.RuneCountInString(s.Text) + utf8.RuneCountInString(s.Trail)
		if len(cur) > 0 && size+n > maxRunes {
			out = append(out, cur)
			cur = nil
			size = 0
		}
		cur = append(cur, s)
		size += n
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// BatchText returns the contiguous source text covered by a batch (internal
// whitespace included) and the literal trail that follows the batch.
func BatchText(source string, batch []Sentence) (body, trail string) {
	if len(batch) == 0 {
		return "", ""
	}
	first, last := batch[0], batch[len(batch)-1]
	return source[first.Start:last.End], last.Trail
}

// TrailingContext returns the last n sentences joined by a space, capped at
// maxRunes (truncated from the front so the most recent text survives). It
// is handed to the LLM stage of the next batch to preserve coherence.
func TrailingContext(sentences []Sentence, n, maxRunes int) string {
	if n <= 0 {
		n = DefaultContextSentences
	}
	if maxRunes <= 0 {
		maxRunes = DefaultContextRunes
	}
	if len(sentences) == 0 {
		return ""
	}
	from := len(sentences) - n
	if from < 0 {
		from = 0
	}
	parts := make([]string, 0, n)
	for _, s := range sentences[from:] {
		parts = append(parts, s.Text)
	}
	ctx := strings.Join(parts, " ")
	if r := []rune(ctx); len(r) > maxRunes {
		ctx = string(r[len(r)-maxRunes:])
	}
	return ctx
}
