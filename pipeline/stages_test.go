// ABOUTME: Tests for the stage request builders: template substitution,
// ABOUTME: variant selection from the sub-prompt array, and artifact plumbing.

package pipeline

import (
	"strings"
	"testing"

	"github.com/starforge/starforge/prompt"
)

func newTestBuilder(t *testing.T) (*StageBuilder, *FSArtifactStore) {
	t.Helper()
	artifacts, err := NewFSArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSArtifactStore: %v", err)
	}
	return &StageBuilder{
		Renderer:  prompt.NewFileRenderer(writeTestTemplates(t)),
		Artifacts: artifacts,
	}, artifacts
}

func TestBuildSubpromptRequest(t *testing.T) {
	builder, _ := newTestBuilder(t)
	rec := NewWorkItemRecord(testKey("sre", 0, "fintech", 2), "Tell me about an outage.")

	req, err := builder.BuildRequest(rec, StageSubprompt)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if !req.JSONMode {
		t.Error("subprompt request should ask for JSON")
	}
	user := userContent(req)
	for _, want := range []string{"sre", "fintech", "variant 2", "Tell me about an outage."} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q: %q", want, user)
		}
	}
}

func TestBuildStarAnswerConsumesSubpromptArtifact(t *testing.T) {
	builder, artifacts := newTestBuilder(t)
	rec := NewWorkItemRecord(testKey("sre", 0, "fintech", 1), "fallback question")

	ref, err := artifacts.Save(rec.Key, StageSubprompt, []byte(validSubpromptJSON))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.ArtifactRefs[StageSubprompt] = ref

	req, err := builder.BuildRequest(rec, StageStarAnswer)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.JSONMode {
		t.Error("star_answer request should be plain markdown")
	}
	user := userContent(req)
	for _, want := range []string{"incident response", "calm under pressure", "payment gateway degradation"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing sub-prompt field %q: %q", want, user)
		}
	}
}

func TestBuildStarAnswerVariantSelection(t *testing.T) {
	builder, artifacts := newTestBuilder(t)

	twoSubprompts := `[
	  {"prompt_id": "a", "core_interview_question": "first question", "skill_focus": "s1", "soft_skill_highlight": "h1", "scenario_theme_hint": "t1"},
	  {"prompt_id": "b", "core_interview_question": "second question", "skill_focus": "s2", "soft_skill_highlight": "h2", "scenario_theme_hint": "t2"}
	]`

	rec := NewWorkItemRecord(testKey("sre", 0, "fintech", 2), "q")
	ref, err := artifacts.Save(rec.Key, StageSubprompt, []byte(twoSubprompts))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.ArtifactRefs[StageSubprompt] = ref

	req, err := builder.BuildRequest(rec, StageStarAnswer)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if user := userContent(req); !strings.Contains(user, "second question") {
		t.Errorf("variant 2 should select the second sub-prompt, got %q", user)
	}
}

func TestBuildStarAnswerWithoutArtifactFails(t *testing.T) {
	builder, _ := newTestBuilder(t)
	rec := NewWorkItemRecord(testKey("sre", 0, "fintech", 1), "q")

	if _, err := builder.BuildRequest(rec, StageStarAnswer); err == nil {
		t.Error("BuildRequest should fail without the subprompt artifact")
	}
}

func TestBuildConversationalEmbedsStarAnswer(t *testing.T) {
	builder, artifacts := newTestBuilder(t)
	rec := NewWorkItemRecord(testKey("sre", 0, "fintech", 1), "q")

	ref, err := artifacts.Save(rec.Key, StageStarAnswer, []byte(testStarAnswer))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.ArtifactRefs[StageStarAnswer] = ref

	req, err := builder.BuildRequest(rec, StageConversational)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if user := userContent(req); !strings.Contains(user, "# Situation") {
		t.Errorf("conversational prompt should embed the STAR answer, got %q", user)
	}
}
