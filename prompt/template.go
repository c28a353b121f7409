// ABOUTME: File-based prompt template loading and placeholder substitution.
// ABOUTME: Pure rendering with no side effects; unresolved placeholders are reported as errors.

package prompt

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {{NAME}} placeholders left after substitution.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// Renderer renders a named template with a set of parameters. Implementations
// must be pure: same inputs, same output, no side effects.
type Renderer interface {
	Render(templateID string, params map[string]string) (string, error)
}

// FileRenderer loads templates from disk once and caches them. Placeholders
// use the {{NAME}} form.
type FileRenderer struct {
	paths     map[string]string
	templates map[string]string
}

// NewFileRenderer creates a FileRenderer over a templateID -> file path map.
// Templates are loaded lazily on first use.
func NewFileRenderer(paths map[string]string) *FileRenderer {
	return &FileRenderer{
		paths:     paths,
		templates: make(map[string]string),
	}
}

// Render loads the template (on first use), substitutes every parameter, and
// fails if any placeholder remains unresolved. An unresolved placeholder means
// the stage builder and the template have drifted apart, which is a
// configuration problem, not something to send to a provider.
func (r *FileRenderer) Render(templateID string, params map[string]string) (string, error) {
	tmpl, err := r.load(templateID)
	if err != nil {
		return "", err
	}
	return Substitute(tmpl, params)
}

func (r *FileRenderer) load(templateID string) (string, error) {
	if tmpl, ok := r.templates[templateID]; ok {
		return tmpl, nil
	}
	path, ok := r.paths[templateID]
	if !ok {
		return "", fmt.Errorf("unknown template %q", templateID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loading template %q: %w", templateID, err)
	}
	r.templates[templateID] = string(data)
	return string(data), nil
}

// Substitute replaces every {{NAME}} placeholder in the template with its
// value from params, then verifies nothing was left behind.
func Substitute(template string, params map[string]string) (string, error) {
	result := template
	for name, value := range params {
		result = strings.ReplaceAll(result, "{{"+name+"}}", value)
	}

	if matches := placeholderPattern.FindAllStringSubmatch(result, -1); len(matches) > 0 {
		names := make(map[string]struct{})
		for _, m := range matches {
			names[m[1]] = struct{}{}
		}
		missing := make([]string, 0, len(names))
		for name := range names {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return "", fmt.Errorf("unresolved template placeholders: %s", strings.Join(missing, ", "))
	}
	return result, nil
}
