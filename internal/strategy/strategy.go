// Package strategy maps a rewrite request's intensity and task kind to the
// pipeline stages that will run, and to the similarity threshold a result
// must meet. Selection is a pure function over a fixed table: no runtime
// conditionals accumulate, and the mapping is exhaustively testable.
package strategy

import (
	"errors"
	"fmt"

	"github.com/luotian/rephrase/internal"
)

// Stage is one step of a rewrite pipeline.
type Stage int

const (
	// StageRules runs the deterministic rule engine.
	StageRules Stage = iota
	// StageLLMRefine sends the rule-engine output to the model for one
	// whole-batch refinement pass.
	StageLLMRefine
	// StageLLMPerSentence sends each sentence to the model individually
	// for a deep rewrite.
	StageLLMPerSentence
)

func (s Stage) String() string {
	switch s {
	case StageRules:
		return "rules"
	case StageLLMRefine:
		return "llm-refine"
	case StageLLMPerSentence:
		return "llm-per-sentence"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Strategy is an ordered list of stages selected once per request.
type Strategy struct {
	Name   string
	Stages []Stage
}

// HasLLM reports whether any stage delegates to the model.
func (s Strategy) HasLLM() bool {
	return s.LLMWeight() > 0
}

// LLMWeight quantifies the degree of model delegation: 0 for rule-only,
// 1 for a refinement pass, 2 for per-sentence rewriting. Used to verify
// the selection is monotonic in intensity.
func (s Strategy) LLMWeight() int {
	w := 0
	for _, st := range s.Stages {
		switch st {
		case StageLLMRefine:
			if w < 1 {
				w = 1
			}
		case StageLLMPerSentence:
			w = 2
		}
	}
	return w
}

// ErrInvalidIntensity reports an intensity outside 1..5.
var ErrInvalidIntensity = errors.New("intensity must be between 1 and 5")

var (
	ruleOnly = Strategy{Name: "rule-only", Stages: []Stage{StageRules}}
	ruleLLM  = Strategy{Name: "rule-then-llm", Stages: []Stage{StageRules, StageLLMRefine}}
	llmDeep  = Strategy{Name: "llm-deep", Stages: []Stage{StageLLMPerSentence}}
)

// Select maps (task, intensity) to a strategy. Both tasks share the same
// shape: rules alone at low intensity, rules plus a model refinement pass in
// the middle, per-sentence model rewriting at the top.
func Select(task internal.Task, intensity int) (Strategy, error) {
	if !task.Valid() {
		return Strategy{}, fmt.Errorf("unknown task kind %q", task)
	}
	switch intensity {
	case 1, 2:
		return ruleOnly, nil
	case 3, 4:
		return ruleLLM, nil
	case 5:
		return llmDeep, nil
	default:
		return Strategy{}, fmt.Errorf("%w: got %d", ErrInvalidIntensity, intensity)
	}
}

// maxSimilarity is the acceptance ceiling per intensity: a rewrite passes
// when score(rewritten, original) does not exceed the ceiling. Higher
// intensity demands more divergence. Constants are calibrated, not taken
// from any external source; see DESIGN.md.
var maxSimilarity = map[int]float64{
	1: 0.92,
	2: 0.85,
	3: 0.75,
	4: 0.65,
	5: 0.55,
}

// MaxSimilarity returns the acceptance threshold for an intensity. Values
// outside 1..5 are clamped.
func MaxSimilarity(intensity int) float64 {
	if intensity < 1 {
		intensity = 1
	}
	if intensity > 5 {
		intensity = 5
	}
	return maxSimilarity[intensity]
}
