// Package localarchive implements archive.Archive on the local filesystem,
// for dev and replay mode.
package localarchive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive writes artifacts under a base directory and hands out local://
// locators relative to it.
type Archive struct {
	baseDir string
}

// New creates an Archive rooted at baseDir, creating it if needed.
func New(baseDir string) (*Archive, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{baseDir: baseDir}, nil
}

// Put writes the content and returns its local:// locator.
func (a *Archive) Put(_ context.Context, incidentID, kind string, content []byte) (string, error) {
	rel := filepath.Join(kind, incidentID+".md")
	abs := filepath.Join(a.baseDir, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}
	if err := os.WriteFile(abs, content, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return "local://" + filepath.ToSlash(rel), nil
}

// Get reads content by its local:// locator.
func (a *Archive) Get(_ context.Context, locator string) ([]byte, error) {
	rel, ok := strings.CutPrefix(locator, "local://")
	if !ok {
		return nil, fmt.Errorf("not a local locator: %q", locator)
	}
	// Keep reads inside the base directory.
	abs := filepath.Join(a.baseDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(filepath.Clean(abs), filepath.Clean(a.baseDir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("locator escapes archive root: %q", locator)
	}

	content, err := os.ReadFile(abs) //nolint:gosec // G304: path is confined to baseDir above
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", locator, err)
	}
	return content, nil
}
