// Package artifact persists generated text to disk.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultPerm is the mode of written artifacts.
const DefaultPerm os.FileMode = 0o644

// WriteError reports that an artifact could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer writes artifacts atomically: readers see either the previous file or
// the complete new content, never a partial write.
type Writer struct {
	logger  *slog.Logger
	perm    os.FileMode
	syncDir func(dir string) error
}

// NewWriter creates a Writer. A nil logger falls back to slog.Default().
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger, perm: DefaultPerm, syncDir: syncDir}
}

// Write replaces path with content, creating parent directories as needed.
// Once the rename succeeded the artifact is complete; a failed fsync of the
// parent directory after that is logged and not returned.
func (w *Writer) Write(path, content string) error {
	if err := writeFileAtomic(path, []byte(content), w.perm); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := w.syncDir(filepath.Dir(path)); err != nil {
		w.logger.Warn("sync directory failed, artifact may not survive a crash", "path", path, "error", err)
	}
	w.logger.Debug("artifact written", "path", path, "bytes", len(content))
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
