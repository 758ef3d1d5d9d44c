// Package specsource implements ports.SpecSource by reading plain
// Markdown/text spec files from a directory tree. Stdlib-only: a spec
// file is just text on local disk, and no example repo in the
// reference set wraps a third-party library around reading one.
package specsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemSpecSource reads spec files rooted at Root, keyed by their
// path relative to it.
type FilesystemSpecSource struct {
	Root string
	// Extensions restricts ListSpecs to files with one of these
	// suffixes. Empty means every regular file counts.
	Extensions []string
}

// NewFilesystemSpecSource builds a FilesystemSpecSource rooted at root.
func NewFilesystemSpecSource(root string, extensions ...string) *FilesystemSpecSource {
	return &FilesystemSpecSource{Root: root, Extensions: extensions}
}

// ReadSpec implements ports.SpecSource.
func (s *FilesystemSpecSource) ReadSpec(ctx context.Context, path string) (string, error) {
	full := filepath.Join(s.Root, path)
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("reading spec %s: %w", path, err)
	}
	return string(content), nil
}

// ListSpecs implements ports.SpecSource, walking Root for files
// matching Extensions.
func (s *FilesystemSpecSource) ListSpecs(ctx context.Context) ([]string, error) {
	var specs []string
	err := filepath.WalkDir(s.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !s.matches(path) {
			return nil
		}
		rel, relErr := filepath.Rel(s.Root, path)
		if relErr != nil {
			return relErr
		}
		specs = append(specs, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing specs under %s: %w", s.Root, err)
	}
	return specs, nil
}

func (s *FilesystemSpecSource) matches(path string) bool {
	if len(s.Extensions) == 0 {
		return true
	}
	for _, ext := range s.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
