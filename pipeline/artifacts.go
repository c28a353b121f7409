// ABOUTME: Filesystem-backed artifact store for stage outputs, keyed by work item and stage.
// ABOUTME: Save is atomic (temp file + rename) and returns a relative ref; Load resolves refs back to bytes.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists stage outputs as blobs and hands back opaque refs.
// Failures here are stage failures: retryable, never fatal to the run.
type ArtifactStore interface {
	Save(key WorkItemKey, stage Stage, payload []byte) (string, error)
	Load(ref string) ([]byte, error)
}

// FSArtifactStore stores artifacts under baseDir/<stage>/<item>.<ext>,
// with refs being paths relative to baseDir.
type FSArtifactStore struct {
	baseDir string
}

// NewFSArtifactStore creates the store rooted at baseDir.
func NewFSArtifactStore(baseDir string) (*FSArtifactStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("artifact baseDir must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FSArtifactStore{baseDir: baseDir}, nil
}

// Save writes the payload for (key, stage) and returns its ref. The write
// goes through a temp file and rename so a crash never leaves a torn
// artifact behind a committed ref.
func (s *FSArtifactStore) Save(key WorkItemKey, stage Stage, payload []byte) (string, error) {
	dir := filepath.Join(s.baseDir, string(stage))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating stage directory: %w", err)
	}

	name := artifactFileName(key, stage)
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("syncing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("closing artifact: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("committing artifact: %w", err)
	}

	return filepath.Join(string(stage), name), nil
}

// Load reads an artifact back by its ref.
func (s *FSArtifactStore) Load(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, ref))
	if err != nil {
		return nil, fmt.Errorf("loading artifact %q: %w", ref, err)
	}
	return data, nil
}

// artifactFileName derives a filesystem-safe name from the key. Subprompt
// output is JSON; the generation stages produce markdown.
func artifactFileName(key WorkItemKey, stage Stage) string {
	sanitize := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteRune('_')
			}
		}
		return b.String()
	}

	ext := "md"
	if stage == StageSubprompt {
		ext = "json"
	}
	return fmt.Sprintf("%s_q%d_%s_v%d.%s",
		sanitize(key.Role), key.QuestionIndex, sanitize(key.Industry), key.Variant, ext)
}
