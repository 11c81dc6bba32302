package rewriter

import (
	"fmt"
	"strings"

	"github.com/luotian/rephrase/internal"
)

// BuildPrompt renders the instruction block for one rewrite call. The contract
// with the model is strict: protected terms stay verbatim, length stays within
// 20 percent of the original, register stays academic, and the reply contains
// nothing but the rewritten text.
func BuildPrompt(req Request) string {
	var b strings.Builder

	switch req.Task {
	case internal.TaskDeai:
		b.WriteString("You are an academic editor. Rewrite the text below so it reads like natural human academic writing rather than machine-generated prose.\n")
		b.WriteString("Vary sentence length and structure. Remove formulaic transitions, filler phrases, and enumerated scaffolding such as \"firstly... secondly... finally\".\n")
	default:
		b.WriteString("You are an academic editor. Paraphrase the text below so that its wording and sentence structure differ substantially from the original while the meaning is fully preserved.\n")
		b.WriteString("Change word choice and reorder clauses. Convert between active and passive voice where natural.\n")
	}

	fmt.Fprintf(&b, "Rewrite strength: %d of 5.\n", req.Intensity)
	if req.Intensified {
		b.WriteString("The previous attempt stayed too close to the original. Be considerably more aggressive this time: restructure every sentence.\n")
	}

	b.WriteString("\nRules:\n")
	if len(req.Terms) > 0 {
		fmt.Fprintf(&b, "- Keep these terms exactly as written, character for character: %s\n", strings.Join(req.Terms, "; "))
	}
	b.WriteString("- Keep the length within 20% of the original.\n")
	b.WriteString("- Keep the academic register. No colloquialisms, no rhetorical questions.\n")
	b.WriteString("- Keep all citations, numbers, and formulas unchanged.\n")
	b.WriteString("- Reply in the same language as the text.\n")
	b.WriteString("- Output ONLY the rewritten text. No preamble, no explanation, no quotes.\n")

	if req.Context != "" {
		fmt.Fprintf(&b, "\nPreceding context (do not rewrite, for coherence only):\n%s\n", req.Context)
	}

	fmt.Fprintf(&b, "\nText:\n%s", req.Text)
	return b.String()
}
