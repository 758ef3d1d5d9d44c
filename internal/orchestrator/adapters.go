package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
	"github.com/ipiton-systems/autodev-engine/internal/modules"
	"github.com/ipiton-systems/autodev-engine/internal/runtime"
)

// FileWriter applies an approved CodeModification to the filesystem.
type FileWriter interface {
	WriteFile(ctx context.Context, path, content string) error
	DeleteFile(ctx context.Context, path string) error
}

// OSFileWriter is the production FileWriter, backed directly by the
// os package: the safety pipeline is what gates content, so the write
// itself needs no library beyond what the standard library already
// provides for a plain file write.
type OSFileWriter struct {
	Root string
	Mode os.FileMode
}

// NewOSFileWriter builds an OSFileWriter rooted at root.
func NewOSFileWriter(root string) *OSFileWriter {
	return &OSFileWriter{Root: root, Mode: 0o644}
}

func (w *OSFileWriter) resolve(path string) string {
	if w.Root == "" {
		return path
	}
	return filepath.Join(w.Root, path)
}

// WriteFile creates path's parent directories as needed and writes
// content, overwriting any existing file.
func (w *OSFileWriter) WriteFile(ctx context.Context, path, content string) error {
	full := w.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	mode := w.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(full, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// DeleteFile removes path. A path that doesn't exist is not an error.
func (w *OSFileWriter) DeleteFile(ctx context.Context, path string) error {
	if err := os.Remove(w.resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// OSFileReader is the production FileReader, backed directly by the
// os package for the same reason OSFileWriter is: reading a plain file
// off local disk needs nothing beyond os.ReadFile.
type OSFileReader struct {
	Root string
}

// NewOSFileReader builds an OSFileReader rooted at root.
func NewOSFileReader(root string) *OSFileReader {
	return &OSFileReader{Root: root}
}

// ReadFile implements FileReader.
func (r *OSFileReader) ReadFile(ctx context.Context, path string) (string, bool, error) {
	full := path
	if r.Root != "" {
		full = filepath.Join(r.Root, path)
	}
	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", path, err)
	}
	return string(content), true, nil
}

// ModuleResolver maps an applied modification's path to the module ID
// it belongs to, when the path is a loaded module's binary rather than
// an ordinary source file. Anything not recognized is not a module.
type ModuleResolver interface {
	ResolveModule(path string) (moduleID string, ok bool)
}

// ModuleLoader builds the runtime.Module and modules.Manifest a
// hot-reload needs from an applied modification, once ModuleResolver
// has identified it as targeting a loaded module.
type ModuleLoader interface {
	Load(ctx context.Context, change domain.CodeModification) (runtime.Module, modules.Manifest, error)
}
