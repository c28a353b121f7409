// ABOUTME: Work item identity, stage ordering, and the persistent record model.
// ABOUTME: Defines WorkItemKey, Stage progression, Status values, and WorkItemRecord.

package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Stage is one ordered step in the transformation of a work item.
type Stage string

const (
	StageSubprompt      Stage = "subprompt"
	StageStarAnswer     Stage = "star_answer"
	StageConversational Stage = "conversational"

	// StageComplete is the sentinel recorded once every stage has committed.
	StageComplete Stage = "complete"
)

// StageOrder is the fixed execution order. A work item may not begin stage
// N+1 until stage N has committed.
var StageOrder = []Stage{StageSubprompt, StageStarAnswer, StageConversational}

// FirstStage returns the stage every new work item starts at.
func FirstStage() Stage {
	return StageOrder[0]
}

// NextStage returns the stage following s, or StageComplete after the last.
func NextStage(s Stage) Stage {
	for i, stage := range StageOrder {
		if stage == s {
			if i+1 < len(StageOrder) {
				return StageOrder[i+1]
			}
			return StageComplete
		}
	}
	return StageComplete
}

// StageIndex returns s's position in the stage order, or -1 for unknown
// stages. StageComplete sorts after every real stage.
func StageIndex(s Stage) int {
	if s == StageComplete {
		return len(StageOrder)
	}
	for i, stage := range StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// ParseStage validates a stage name from configuration or storage.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if stage == StageComplete || StageIndex(stage) >= 0 {
		return stage, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Status is the processing state of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// WorkItemKey is the ordered tuple of dimension values identifying one unit
// of end-to-end work. Immutable; equality is structural. Questions are keyed
// by index so rewording a question in config does not orphan prior state.
type WorkItemKey struct {
	Role          string `json:"role"`
	QuestionIndex int    `json:"question_index"`
	Industry      string `json:"industry"`
	Variant       int    `json:"variant"`
}

// ID returns the canonical string form used as the state store primary key.
// Dimension separators in role or industry values are flattened so the ID
// stays unambiguous.
func (k WorkItemKey) ID() string {
	clean := func(s string) string {
		return strings.ReplaceAll(strings.TrimSpace(s), "|", "/")
	}
	return fmt.Sprintf("%s|q%d|%s|v%d", clean(k.Role), k.QuestionIndex, clean(k.Industry), k.Variant)
}

// WorkItemRecord is the durable per-key record tracking pipeline progress.
// Mutated only by the stage executor, once per stage attempt.
type WorkItemRecord struct {
	Key          WorkItemKey      `json:"key"`
	Question     string           `json:"question"`
	CurrentStage Stage            `json:"current_stage"`
	Status       Status           `json:"status"`
	AttemptCount int              `json:"attempt_count"`
	LastError    string           `json:"last_error,omitempty"`
	ArtifactRefs map[Stage]string `json:"artifact_refs,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewWorkItemRecord creates a fresh record at the first stage with pending
// status.
func NewWorkItemRecord(key WorkItemKey, question string) *WorkItemRecord {
	return &WorkItemRecord{
		Key:          key,
		Question:     question,
		CurrentStage: FirstStage(),
		Status:       StatusPending,
		ArtifactRefs: make(map[Stage]string),
		UpdatedAt:    time.Now().UTC(),
	}
}

// Resumable reports whether the record is eligible for processing in a run.
// in_progress records are crash leftovers and are treated exactly like
// pending ones, never assumed complete.
func (r *WorkItemRecord) Resumable() bool {
	switch r.Status {
	case StatusPending, StatusFailed, StatusInProgress:
		return r.CurrentStage != StageComplete
	default:
		return false
	}
}

// ArtifactRef returns the committed artifact reference for a stage, if any.
func (r *WorkItemRecord) ArtifactRef(stage Stage) (string, bool) {
	ref, ok := r.ArtifactRefs[stage]
	return ref, ok
}
