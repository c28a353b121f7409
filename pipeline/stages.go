// ABOUTME: Per-stage request builders: render the stage's prompt template with the
// ABOUTME: work item's dimensions and upstream artifacts, producing an llm.Request.

package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/starforge/starforge/llm"
	"github.com/starforge/starforge/prompt"
)

// Template IDs the StageBuilder renders. The config layer maps each to a
// template file.
const (
	TemplateSubprompt      = "subprompt"
	TemplateStarAnswer     = "star_answer"
	TemplateConversational = "conversational"
)

const (
	subpromptSystem      = "You are an expert interview coach who designs focused answer sub-prompts. Respond with a JSON array only."
	starAnswerSystem     = "You are an expert interview coach. Write a first-person STAR-format answer in markdown with the headings Situation, Task, Action and Result."
	conversationalSystem = "You are an expert interview coach. Rewrite the given STAR answer as natural spoken prose, keeping every concrete detail."
)

// StageBuilder turns a work item record into the llm.Request for its current
// stage. Later stages load the previous stage's artifact through the
// artifact store.
type StageBuilder struct {
	Renderer  prompt.Renderer
	Artifacts ArtifactStore

	// MaxTokens and Temperature apply to every stage request; zero values
	// leave the provider defaults in place.
	MaxTokens   int
	Temperature *float64
}

// BuildRequest builds the request for stage. Provider and Model are left
// empty; the fallback policy fills them per route.
func (b *StageBuilder) BuildRequest(rec *WorkItemRecord, stage Stage) (llm.Request, error) {
	switch stage {
	case StageSubprompt:
		return b.buildSubprompt(rec)
	case StageStarAnswer:
		return b.buildStarAnswer(rec)
	case StageConversational:
		return b.buildConversational(rec)
	default:
		return llm.Request{}, fmt.Errorf("no builder for stage %q", stage)
	}
}

func (b *StageBuilder) buildSubprompt(rec *WorkItemRecord) (llm.Request, error) {
	user, err := b.Renderer.Render(TemplateSubprompt, map[string]string{
		"ROLE":     rec.Key.Role,
		"QUESTION": rec.Question,
		"INDUSTRY": rec.Key.Industry,
		"VARIANT":  strconv.Itoa(rec.Key.Variant),
	})
	if err != nil {
		return llm.Request{}, err
	}
	return b.request(subpromptSystem, user, true), nil
}

func (b *StageBuilder) buildStarAnswer(rec *WorkItemRecord) (llm.Request, error) {
	sp, err := b.loadSubprompt(rec)
	if err != nil {
		return llm.Request{}, err
	}
	user, err := b.Renderer.Render(TemplateStarAnswer, map[string]string{
		"ROLE":          rec.Key.Role,
		"INDUSTRY":      rec.Key.Industry,
		"CORE_QUESTION": stringField(sp, "core_interview_question", rec.Question),
		"SKILL_FOCUS":   stringField(sp, "skill_focus", ""),
		"SOFT_SKILL":    stringField(sp, "soft_skill_highlight", ""),
		"SCENARIO_HINT": stringField(sp, "scenario_theme_hint", ""),
	})
	if err != nil {
		return llm.Request{}, err
	}
	return b.request(starAnswerSystem, user, false), nil
}

func (b *StageBuilder) buildConversational(rec *WorkItemRecord) (llm.Request, error) {
	ref, ok := rec.ArtifactRef(StageStarAnswer)
	if !ok {
		return llm.Request{}, fmt.Errorf("item %s has no %s artifact", rec.Key.ID(), StageStarAnswer)
	}
	star, err := b.Artifacts.Load(ref)
	if err != nil {
		return llm.Request{}, fmt.Errorf("loading %s artifact: %w", StageStarAnswer, err)
	}
	user, err := b.Renderer.Render(TemplateConversational, map[string]string{
		"ROLE":        rec.Key.Role,
		"STAR_ANSWER": string(star),
	})
	if err != nil {
		return llm.Request{}, err
	}
	return b.request(conversationalSystem, user, false), nil
}

// loadSubprompt returns the sub-prompt object for the item's variant from
// the subprompt stage artifact. Variant v selects element (v-1) mod len.
func (b *StageBuilder) loadSubprompt(rec *WorkItemRecord) (map[string]any, error) {
	ref, ok := rec.ArtifactRef(StageSubprompt)
	if !ok {
		return nil, fmt.Errorf("item %s has no %s artifact", rec.Key.ID(), StageSubprompt)
	}
	raw, err := b.Artifacts.Load(ref)
	if err != nil {
		return nil, fmt.Errorf("loading %s artifact: %w", StageSubprompt, err)
	}
	arrayText, err := ExtractJSONArray(string(raw))
	if err != nil {
		return nil, err
	}
	var subprompts []map[string]any
	if err := json.Unmarshal([]byte(arrayText), &subprompts); err != nil {
		return nil, fmt.Errorf("parsing %s artifact: %w", StageSubprompt, err)
	}
	if len(subprompts) == 0 {
		return nil, fmt.Errorf("item %s has an empty sub-prompt array", rec.Key.ID())
	}
	idx := (rec.Key.Variant - 1) % len(subprompts)
	if idx < 0 {
		idx = 0
	}
	return subprompts[idx], nil
}

func (b *StageBuilder) request(system, user string, jsonMode bool) llm.Request {
	return llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		MaxTokens:   b.MaxTokens,
		Temperature: b.Temperature,
		JSONMode:    jsonMode,
	}
}

func stringField(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
