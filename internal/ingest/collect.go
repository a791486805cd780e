package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Filter selects which files CollectFiles returns.
type Filter struct {
	// Extensions limits matches to these lower-case extensions (with dot).
	// Empty matches every regular file.
	Extensions []string
	// Names also matches files with exactly these base names.
	Names []string
	// Recursive descends into subdirectories.
	Recursive bool
}

func (f Filter) match(path string) bool {
	if len(f.Extensions) == 0 && len(f.Names) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, n := range f.Names {
		if base == n {
			return true
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range f.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CollectFiles walks dirPath and returns matching regular files in lexical
// order. Hidden files and directories are skipped. A missing directory yields
// an error wrapping fs.ErrNotExist.
func CollectFiles(dirPath string, filter Filter) ([]string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan directory: %s is not a directory", dirPath)
	}

	var files []string
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dirPath && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !filter.Recursive && path != dirPath {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && filter.match(path) {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(dirPath, walkFn); err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	return files, nil
}

// IsNotExist reports whether err means the scanned directory does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
