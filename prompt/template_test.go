// ABOUTME: Tests for prompt template loading and placeholder substitution.
// ABOUTME: Validates substitution, unresolved placeholder detection, and file caching.

package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSubstitute(t *testing.T) {
	t.Run("replaces all placeholders", func(t *testing.T) {
		got, err := Substitute("Role: {{TARGET_ROLE}} in {{TARGET_INDUSTRY}}, again {{TARGET_ROLE}}",
			map[string]string{"TARGET_ROLE": "SRE", "TARGET_INDUSTRY": "fintech"})
		if err != nil {
			t.Fatalf("Substitute: %v", err)
		}
		want := "Role: SRE in fintech, again SRE"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("reports unresolved placeholders", func(t *testing.T) {
		_, err := Substitute("{{A}} and {{MISSING_ONE}} and {{MISSING_TWO}}",
			map[string]string{"A": "x"})
		if err == nil {
			t.Fatal("expected error for unresolved placeholders")
		}
		if !strings.Contains(err.Error(), "MISSING_ONE, MISSING_TWO") {
			t.Errorf("error %q should list missing placeholders sorted", err)
		}
	})

	t.Run("extra params are harmless", func(t *testing.T) {
		got, err := Substitute("no placeholders here", map[string]string{"UNUSED": "v"})
		if err != nil {
			t.Fatalf("Substitute: %v", err)
		}
		if got != "no placeholders here" {
			t.Errorf("got %q", got)
		}
	})
}

func TestFileRenderer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage1.md")
	if err := os.WriteFile(path, []byte("Generate {{COUNT}} prompts for {{TARGET_ROLE}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewFileRenderer(map[string]string{"subprompt": path})

	got, err := r.Render("subprompt", map[string]string{"COUNT": "3", "TARGET_ROLE": "PM"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Generate 3 prompts for PM" {
		t.Errorf("got %q", got)
	}

	// Second render uses the cache; deleting the file must not matter.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Render("subprompt", map[string]string{"COUNT": "1", "TARGET_ROLE": "PM"}); err != nil {
		t.Errorf("cached render failed: %v", err)
	}
}

func TestFileRendererUnknownTemplate(t *testing.T) {
	r := NewFileRenderer(map[string]string{})
	if _, err := r.Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestFileRendererMissingFile(t *testing.T) {
	r := NewFileRenderer(map[string]string{"subprompt": filepath.Join(t.TempDir(), "absent.md")})
	if _, err := r.Render("subprompt", nil); err == nil {
		t.Fatal("expected error for missing template file")
	}
}
