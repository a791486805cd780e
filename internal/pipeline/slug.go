package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// slug turns a relative path into a flat file name: separators and anything
// outside [A-Za-z0-9._-] become "_".
func slug(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.TrimPrefix(path, "./")

	var b strings.Builder
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "._")
	if s == "" {
		return "unknown"
	}
	return s
}

// trimExt removes the last extension of path.
func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// uniqueNames hands out artifact names within one batch. A name already given
// out gets a numeric suffix: b.md, b_2.md, b_3.md.
type uniqueNames map[string]bool

func (u uniqueNames) next(name, suffix string) string {
	candidate := name + suffix
	for n := 2; u[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", name, n, suffix)
	}
	u[candidate] = true
	return candidate
}
