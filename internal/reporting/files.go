package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"alpha-custody/internal/orchestrator"
)

// WriteFiles writes run-<id>.md and run-<id>.csv into dir and returns their paths.
func WriteFiles(dir string, r *orchestrator.RunResult, generatedAt time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{fmt.Sprintf("run-%s.md", r.RunID), RenderMarkdown(r, generatedAt)},
		{fmt.Sprintf("run-%s.csv", r.RunID), RenderCSV(r)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
