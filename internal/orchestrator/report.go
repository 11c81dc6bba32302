package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/luotian/rephrase/internal"
	"github.com/luotian/rephrase/internal/segment"
)

// ChangeSummary aggregates what a run actually changed.
type ChangeSummary struct {
	SentencesTotal   int
	SentencesChanged int
	SourceRunes      int
	RewrittenRunes   int
	RuleCounts       map[string]int
}

// Summarize compares source and rewritten text batch by batch.
func Summarize(res *DocumentResult) ChangeSummary {
	sum := ChangeSummary{RuleCounts: make(map[string]int)}
	for _, br := range res.Batches {
		sum.SourceRunes += utf8.RuneCountInString(br.SourceText)
		sum.RewrittenRunes += utf8.RuneCountInString(br.RewrittenText)
		for _, id := range br.AppliedRules {
			sum.RuleCounts[id]++
		}

		src := segment.Split(br.SourceText).Sentences
		dst := segment.Split(br.RewrittenText).Sentences
		sum.SentencesTotal += len(src)
		for i, s := range src {
			if i >= len(dst) || dst[i].Text != s.Text {
				sum.SentencesChanged++
			}
		}
	}
	return sum
}

// BuildReport renders a markdown report for one finished run.
func BuildReport(res *DocumentResult) string {
	sum := Summarize(res)

	var b strings.Builder
	b.WriteString("# Rewrite Report\n\n")
	fmt.Fprintf(&b, "- Request: `%s`\n", res.RequestID)
	fmt.Fprintf(&b, "- Task: %s, intensity %d (%s)\n", res.Task, res.Intensity, res.Strategy)
	fmt.Fprintf(&b, "- Language: %s\n", res.Lang)
	fmt.Fprintf(&b, "- Status: %s\n", res.Status)
	fmt.Fprintf(&b, "- Duration: %s\n\n", res.Duration.Round(time.Millisecond))

	b.WriteString("## Metrics\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Similarity to source | %.3f |\n", res.Similarity)
	if res.Task == internal.TaskDeai {
		fmt.Fprintf(&b, "| AI-style score before | %.1f |\n", res.AIScoreBefore)
		fmt.Fprintf(&b, "| AI-style score after | %.1f |\n", res.AIScoreAfter)
	}
	fmt.Fprintf(&b, "| Sentences changed | %d / %d |\n", sum.SentencesChanged, sum.SentencesTotal)
	fmt.Fprintf(&b, "| Length (runes) | %d → %d |\n\n", sum.SourceRunes, sum.RewrittenRunes)

	if len(sum.RuleCounts) > 0 {
		b.WriteString("## Rules Applied\n\n")
		ids := make([]string, 0, len(sum.RuleCounts))
		for id := range sum.RuleCounts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(&b, "| Rule | Count |\n|---|---|\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "| %s | %d |\n", id, sum.RuleCounts[id])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Batches\n\n")
	fmt.Fprintf(&b, "| # | Status | Similarity | Attempts | Note |\n|---|---|---|---|---|\n")
	for _, br := range res.Batches {
		note := br.Warning
		if br.FromCache {
			note = "from cache"
		}
		fmt.Fprintf(&b, "| %d | %s | %.3f | %d | %s |\n",
			br.Index, br.Status, br.Similarity, br.Attempts, note)
	}
	return b.String()
}
