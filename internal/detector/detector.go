// Package detector decides which rule-table language applies to a document.
// Han-heavy text is classified directly by script ratio; everything else is
// put through a lingua-go detector restricted to the supported languages.
package detector

import (
	"unicode"
	"unicode/utf8"

	lingua "github.com/pemistahl/lingua-go"
)

// hanRatioThreshold: above this share of Han runes the text is treated as
// Chinese without consulting the statistical detector.
const hanRatioThreshold = 0.2

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over the languages the rule tables support. The
// underlying lingua model is expensive to construct; reuse the instance.
func New() *Detector {
	det := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.Chinese, lingua.English).
		Build()

	return &Detector{detector: det}
}

// RuleLanguage returns "zh" or "en" for the given text. Empty or
// undecidable text defaults to "en".
func (d *Detector) RuleLanguage(text string) string {
	if text == "" {
		return "en"
	}
	if hanRatio(text) >= hanRatioThreshold {
		return "zh"
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if ok && lang == lingua.Chinese {
		return "zh"
	}
	return "en"
}

func hanRatio(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	han := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	return float64(han) / float64(total)
}
