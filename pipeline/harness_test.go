// ABOUTME: Shared test fixture wiring a real store, artifact store, templates,
// ABOUTME: and scripted providers into an engine for executor/engine tests.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starforge/starforge/llm"
	"github.com/starforge/starforge/prompt"
)

const testStarAnswer = "# Situation\nGateway down.\n\n# Task\nRestore.\n\n# Action\nRolled back.\n\n# Result\nRecovered fast.\n"

var testConversational = strings.Repeat("So the gateway went down and I got us back within minutes. ", 3)

// stageAwareAdapter answers each stage with structurally valid output, keyed
// off the request shape the stage builders produce.
type stageAwareAdapter struct {
	name  string
	calls int
	fail  func(req llm.Request, call int) error
}

func (a *stageAwareAdapter) Name() string { return a.name }

func (a *stageAwareAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	a.calls++
	if a.fail != nil {
		if err := a.fail(req, a.calls); err != nil {
			return nil, err
		}
	}

	var text string
	switch {
	case req.JSONMode:
		text = validSubpromptJSON
	case strings.Contains(userContent(req), "# Situation"):
		text = testConversational
	default:
		text = testStarAnswer
	}
	return &llm.Response{Text: text, Provider: a.name, Model: req.Model}, nil
}

func (a *stageAwareAdapter) Close() error { return nil }

func userContent(req llm.Request) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

type harness struct {
	store    *StateStore
	executor *StageExecutor
	engine   *Engine
	events   []EngineEvent
}

func writeTestTemplates(t *testing.T) map[string]string {
	t.Helper()
	dir := t.TempDir()
	templates := map[string]string{
		TemplateSubprompt:      "Generate sub-prompts for a {{ROLE}} in {{INDUSTRY}}, variant {{VARIANT}}: {{QUESTION}}",
		TemplateStarAnswer:     "As a {{ROLE}} in {{INDUSTRY}}, answer: {{CORE_QUESTION}} (focus: {{SKILL_FOCUS}}, highlight: {{SOFT_SKILL}}, theme: {{SCENARIO_HINT}})",
		TemplateConversational: "Rewrite for a {{ROLE}}:\n{{STAR_ANSWER}}",
	}
	paths := make(map[string]string, len(templates))
	for id, body := range templates {
		path := filepath.Join(dir, id+".md")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("writing template %s: %v", id, err)
		}
		paths[id] = path
	}
	return paths
}

func newHarness(t *testing.T, adapters ...llm.ProviderAdapter) *harness {
	t.Helper()

	store := openTestStore(t)
	artifacts, err := NewFSArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSArtifactStore: %v", err)
	}

	var opts []llm.ClientOption
	var routes []ProviderRoute
	for _, a := range adapters {
		opts = append(opts, llm.WithProvider(a.Name(), a))
		routes = append(routes, ProviderRoute{Provider: a.Name(), Model: a.Name() + "-model"})
	}

	policy := fastPolicy(llm.NewClient(opts...), 2)
	h := &harness{store: store}

	executor := &StageExecutor{
		Store:     store,
		Artifacts: artifacts,
		Builder: &StageBuilder{
			Renderer:  prompt.NewFileRenderer(writeTestTemplates(t)),
			Artifacts: artifacts,
		},
		Policy: policy,
		Routes: map[Stage][]ProviderRoute{
			StageSubprompt:      routes,
			StageStarAnswer:     routes,
			StageConversational: routes,
		},
	}
	h.executor = executor
	h.engine = NewEngine(store, executor, func(evt EngineEvent) {
		h.events = append(h.events, evt)
	})
	return h
}

func (h *harness) eventTypes() []EngineEventType {
	var types []EngineEventType
	for _, evt := range h.events {
		types = append(types, evt.Type)
	}
	return types
}

func singleDims() Dimensions {
	return Dimensions{
		Roles:      []string{"sre"},
		Questions:  []string{"Tell me about an outage you handled."},
		Industries: []string{"fintech"},
		Variants:   1,
	}
}
