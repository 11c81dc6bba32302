package strategy

import (
	"errors"
	"testing"

	"github.com/luotian/rephrase/internal"
)

func TestSelect_LiteralMapping(t *testing.T) {
	cases := []struct {
		intensity int
		want      string
	}{
		{1, "rule-only"},
		{2, "rule-only"},
		{3, "rule-then-llm"},
		{4, "rule-then-llm"},
		{5, "llm-deep"},
	}
	for _, task := range []internal.Task{internal.TaskDedup, internal.TaskDeai} {
		for _, c := range cases {
			s, err := Select(task, c.intensity)
			if err != nil {
				t.Fatalf("Select(%s, %d): %v", task, c.intensity, err)
			}
			if s.Name != c.want {
				t.Errorf("Select(%s, %d) = %q, want %q", task, c.intensity, s.Name, c.want)
			}
		}
	}
}

func TestSelect_Monotonic(t *testing.T) {
	for _, task := range []internal.Task{internal.TaskDedup, internal.TaskDeai} {
		prev := -1
		for intensity := 1; intensity <= 5; intensity++ {
			s, err := Select(task, intensity)
			if err != nil {
				t.Fatal(err)
			}
			if s.LLMWeight() < prev {
				t.Errorf("LLM delegation decreased at intensity %d for %s", intensity, task)
			}
			prev = s.LLMWeight()
		}
	}
}

func TestSelect_InvalidIntensity(t *testing.T) {
	for _, intensity := range []int{0, -1, 6, 100} {
		_, err := Select(internal.TaskDedup, intensity)
		if !errors.Is(err, ErrInvalidIntensity) {
			t.Errorf("Select(dedup, %d) err = %v, want ErrInvalidIntensity", intensity, err)
		}
	}
}

func TestSelect_UnknownTask(t *testing.T) {
	if _, err := Select(internal.Task("summarize"), 3); err == nil {
		t.Error("expected error for unknown task kind")
	}
}

func TestStageRoles(t *testing.T) {
	low, _ := Select(internal.TaskDedup, 1)
	if low.HasLLM() {
		t.Error("rule-only strategy must not delegate to the model")
	}
	mid, _ := Select(internal.TaskDedup, 3)
	if len(mid.Stages) != 2 || mid.Stages[0] != StageRules || mid.Stages[1] != StageLLMRefine {
		t.Errorf("unexpected mid-intensity stages: %v", mid.Stages)
	}
	deep, _ := Select(internal.TaskDedup, 5)
	if deep.LLMWeight() != 2 {
		t.Errorf("deep strategy weight = %d, want 2", deep.LLMWeight())
	}
}

func TestMaxSimilarity_StricterWithIntensity(t *testing.T) {
	prev := 1.0
	for intensity := 1; intensity <= 5; intensity++ {
		th := MaxSimilarity(intensity)
		if th >= prev {
			t.Errorf("threshold not strictly decreasing at intensity %d: %v >= %v", intensity, th, prev)
		}
		if th <= 0 || th >= 1 {
			t.Errorf("threshold out of range at intensity %d: %v", intensity, th)
		}
		prev = th
	}
	if MaxSimilarity(0) != MaxSimilarity(1) || MaxSimilarity(9) != MaxSimilarity(5) {
		t.Error("out-of-range intensities must clamp")
	}
}
