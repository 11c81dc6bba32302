package rules

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/luotian/rephrase/internal/segment"
)

// EstimateAIScore estimates how machine-written a text reads, as a
// percentage in [0, 100]. The estimate combines marker-phrase frequencies
// (sequencing words, fillers, hedges, formal transitions, connectors),
// normalized by text length, with a sentence-length uniformity signal:
// suspiciously even sentence lengths raise the score. Texts under 30 runes
// are too short to judge and score 0.
func (t *Table) EstimateAIScore(text string) float64 {
	if utf8.RuneCountInString(text) < 30 {
		return 0.0
	}

	lenFactor := float64(utf8.RuneCountInString(text)) / 1000.0
	if lenFactor < 1 {
		lenFactor = 1
	}

	scores := []float64{
		capScore(countMarkers(text, t.markers.Sequence)/lenFactor*12, 100),
		capScore(countMarkers(text, t.markers.Filler)/lenFactor*20, 100),
		capScore(countMarkers(text, t.markers.Vague)/lenFactor*15, 100),
	}
	weights := []float64{0.20, 0.25, 0.15}

	if u, ok := uniformityScore(text); ok {
		scores = append(scores, u)
		weights = append(weights, 0.20)
	}

	scores = append(scores,
		capScore(countMarkers(text, t.markers.Formal)/lenFactor*18, 100),
		capScore(countMarkers(text, t.markers.Connector)/lenFactor*8, 100),
	)
	weights = append(weights, 0.10, 0.10)

	var sum, wsum float64
	for i := range scores {
		sum += scores[i] * weights[i]
		wsum += weights[i]
	}
	return sum / wsum
}

func countMarkers(text string, markers []string) float64 {
	n := 0
	for _, m := range markers {
		n += strings.Count(text, m)
	}
	return float64(n)
}

func capScore(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

// uniformityScore maps the standard deviation of sentence lengths to a
// score: human prose varies widely (std dev usually 15–40 runes), while
// generated text tends to be metronomic. Needs at least 3 sentences.
func uniformityScore(text string) (float64, bool) {
	doc := segment.Split(text)
	var lengths []float64
	for _, s := range doc.Sentences {
		if n := utf8.RuneCountInString(s.Text); n > 5 {
			lengths = append(lengths, float64(n))
		}
	}
	if len(lengths) < 3 {
		return 0, false
	}
	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))
	var variance float64
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(lengths)))

	switch {
	case stdDev < 10:
		return 90, true
	case stdDev < 20:
		return 60, true
	case stdDev < 30:
		return 30, true
	default:
		return 10, true
	}
}
