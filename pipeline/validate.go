// ABOUTME: Structural validation of provider output, run by the fallback policy after each raw success.
// ABOUTME: Subprompt JSON field checks, goldmark AST heading checks for STAR answers, and prose sanity checks.

package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// OutputValidator checks the structural well-formedness of a provider's
// payload. A validation failure is a transient, retryable stage failure:
// a provider that returns invalid output is not trusted blindly, but may
// produce valid output on the next attempt.
type OutputValidator func(text string) error

// ValidatorFor returns the validator for a stage.
func ValidatorFor(stage Stage) OutputValidator {
	switch stage {
	case StageSubprompt:
		return ValidateSubprompts
	case StageStarAnswer:
		return ValidateStarAnswer
	case StageConversational:
		return ValidateConversational
	default:
		return func(string) error { return fmt.Errorf("no validator for stage %q", stage) }
	}
}

// subpromptRequiredFields are the fields every generated sub-prompt object
// must carry for the downstream stages to build their requests.
var subpromptRequiredFields = []string{
	"prompt_id",
	"core_interview_question",
	"skill_focus",
	"soft_skill_highlight",
	"scenario_theme_hint",
}

// ExtractJSONArray returns the first parseable JSON array of objects embedded
// in text. Providers often wrap JSON in prose or code fences, and the prose
// itself may contain brackets ("Here are [3] prompts:"), so each candidate
// bracket is verified by actually decoding it before it is accepted. An array
// without object elements is kept only as a fallback.
func ExtractJSONArray(text string) (string, error) {
	fallback := ""
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		var elems []json.RawMessage
		if json.Unmarshal(raw, &elems) != nil {
			continue
		}
		if len(elems) > 0 && elems[0][0] == '{' {
			return string(raw), nil
		}
		if fallback == "" {
			fallback = string(raw)
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("no JSON array found in output")
}

// ValidateSubprompts checks that the output contains a non-empty JSON array
// of sub-prompt objects with every required field present and non-empty.
func ValidateSubprompts(text string) error {
	arrayText, err := ExtractJSONArray(text)
	if err != nil {
		return err
	}

	var subprompts []map[string]any
	if err := json.Unmarshal([]byte(arrayText), &subprompts); err != nil {
		return fmt.Errorf("output is not a valid JSON array: %w", err)
	}
	if len(subprompts) == 0 {
		return fmt.Errorf("sub-prompt array is empty")
	}

	for i, sp := range subprompts {
		for _, field := range subpromptRequiredFields {
			v, ok := sp[field]
			if !ok {
				return fmt.Errorf("sub-prompt %d missing required field %q", i+1, field)
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				return fmt.Errorf("sub-prompt %d has empty field %q", i+1, field)
			}
		}
	}
	return nil
}

// starRequiredHeadings are the four sections a STAR answer must contain.
var starRequiredHeadings = []string{"Situation", "Task", "Action", "Result"}

// ValidateStarAnswer parses the output as markdown and verifies all four
// STAR headings are present, in order.
func ValidateStarAnswer(text string) error {
	source := []byte(text)
	doc := goldmark.New().Parser().Parse(gtext.NewReader(source))

	var headings []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			headings = append(headings, strings.TrimSpace(string(h.Text(source))))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return fmt.Errorf("parsing markdown: %w", err)
	}

	next := 0
	for _, heading := range headings {
		if next < len(starRequiredHeadings) && strings.EqualFold(heading, starRequiredHeadings[next]) {
			next++
		}
	}
	if next < len(starRequiredHeadings) {
		return fmt.Errorf("STAR answer missing %q section", starRequiredHeadings[next])
	}
	return nil
}

// conversationalMinLength guards against truncated or refused output.
const conversationalMinLength = 80

// ValidateConversational checks the transformed answer is substantive prose
// rather than an empty or fenced-off response.
func ValidateConversational(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("conversational output is empty")
	}
	if len(trimmed) < conversationalMinLength {
		return fmt.Errorf("conversational output too short (%d chars)", len(trimmed))
	}
	return nil
}
