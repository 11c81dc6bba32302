package internal

import "time"

// Task selects which detector signal a rewrite targets.
type Task string

const (
	// TaskDedup rewrites to reduce textual overlap with the source.
	TaskDedup Task = "dedup"
	// TaskDeai rewrites to reduce machine-generation signals.
	TaskDeai Task = "deai"
)

// Valid reports whether t is a known task kind.
func (t Task) Valid() bool {
	return t == TaskDedup || t == TaskDeai
}

type RewriteRequest struct {
	ID         string    `json:"id"`
	SourceText string    `json:"source_text"`
	Task       Task      `json:"task"`
	Intensity  int       `json:"intensity"`
	Terms      []string  `json:"terms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
