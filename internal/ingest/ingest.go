// Package ingest normalizes requirement documents of several formats into plain text.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/encoding"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Format is the extraction strategy chosen for a file.
type Format string

const (
	FormatDocx   Format = "docx"
	FormatText   Format = "text"
	FormatLegacy Format = "legacy"
)

// textExtensions are decoded as-is.
var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".text":     true,
	".feature":  true,
	".rst":      true,
	".adoc":     true,
	".csv":      true,
}

// Document is a source file normalized to plain text.
type Document struct {
	Path   string
	Format Format
	Text   string
}

// Name returns the base name without extension, used to derive artifact names.
func (d *Document) Name() string {
	return BaseName(d.Path)
}

// BaseName strips directory and extension from path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IngestError reports that a source file could not be opened or read.
type IngestError struct {
	Path string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Path, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// DetectFormat picks the extraction strategy from the file extension.
func DetectFormat(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".docx":
		return FormatDocx
	case textExtensions[ext]:
		return FormatText
	default:
		return FormatLegacy
	}
}

// Ingestor extracts text from source documents.
type Ingestor struct {
	logger *slog.Logger
}

// New creates an Ingestor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{logger: logger}
}

// Ingest reads path and returns its text. Only I/O failures are errors;
// malformed or undecodable content degrades to best-effort text.
func (i *Ingestor) Ingest(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IngestError{Path: path, Err: err}
	}

	format := DetectFormat(path)
	var text string

	switch format {
	case FormatDocx:
		text, err = docxText(data)
		if err != nil {
			i.logger.Warn("degraded input: unreadable docx, extracting raw text",
				"path", path, "error", err)
			text = legacyText(data)
		}
	case FormatText:
		text = decodeText(data)
	default:
		i.logger.Warn("degraded input: unsupported format, extracting best-effort text",
			"path", path, "ext", filepath.Ext(path))
		text = legacyText(data)
	}

	i.logger.Debug("document ingested", "path", path, "format", format, "chars", len(text))
	return &Document{Path: path, Format: format, Text: text}, nil
}

// decodeText decodes UTF-8 (or UTF-16 when a BOM says so), stripping the BOM.
func decodeText(data []byte) string {
	dec := xunicode.BOMOverride(encoding.Nop.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return legacyText(data)
	}
	return strings.ToValidUTF8(string(out), string(unicode.ReplacementChar))
}

// legacyText keeps whatever text it can: ill-formed UTF-8 becomes U+FFFD and
// binary control characters are dropped.
func legacyText(data []byte) string {
	t := transform.Chain(runes.ReplaceIllFormed(), runes.Remove(runes.Predicate(isBinaryControl)))
	out, _, err := transform.Bytes(t, data)
	if err != nil {
		return strings.ToValidUTF8(string(data), string(unicode.ReplacementChar))
	}
	return string(out)
}

func isBinaryControl(r rune) bool {
	switch r {
	case '\n', '\r', '\t':
		return false
	}
	return unicode.IsControl(r)
}
