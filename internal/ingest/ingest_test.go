package ingest

import (
	"archive/zip"
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// buildDocx returns a minimal .docx archive with the given document.xml body.
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	require.NoError(t, err)

	w, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"req/login.docx", FormatDocx},
		{"req/LOGIN.DOCX", FormatDocx},
		{"req/login.md", FormatText},
		{"req/login.txt", FormatText},
		{"req/login.feature", FormatText},
		{"req/login.doc", FormatLegacy},
		{"req/login.pdf", FormatLegacy},
		{"req/login", FormatLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path))
		})
	}
}

func TestIngestDocx(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "checkout.docx", buildDocx(t,
		`<w:p><w:r><w:t>Checkout</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t xml:space="preserve">O usuário </w:t></w:r><w:r><w:t>paga</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>A</w:t><w:tab/><w:t>B</w:t><w:br/><w:t>C</w:t></w:r></w:p>`+
			`<w:p/>`))

	doc, err := New(quietLogger()).Ingest(path)
	require.NoError(t, err)

	assert.Equal(t, FormatDocx, doc.Format)
	assert.Equal(t, "checkout", doc.Name())
	assert.Equal(t, "Checkout\nO usuário paga\nA\tB\nC\n", doc.Text)
}

func TestIngestIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.docx", buildDocx(t, `<w:p><w:r><w:t>same</w:t></w:r></w:p>`))
	ing := New(quietLogger())

	first, err := ing.Ingest(path)
	require.NoError(t, err)
	second, err := ing.Ingest(path)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
}

func TestIngestCorruptDocxDegrades(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.docx", []byte("not a zip at all"))

	var logs bytes.Buffer
	doc, err := New(slog.New(slog.NewTextHandler(&logs, nil))).Ingest(path)
	require.NoError(t, err)

	assert.Equal(t, "not a zip at all", doc.Text)
	assert.Contains(t, logs.String(), "degraded input")
}

func TestIngestText(t *testing.T) {
	dir := t.TempDir()
	content := "# Login\n\nDado que o usuário existe\r\n"
	path := writeFile(t, dir, "login.md", []byte(content))

	doc, err := New(quietLogger()).Ingest(path)
	require.NoError(t, err)
	assert.Equal(t, FormatText, doc.Format)
	assert.Equal(t, content, doc.Text)
}

func TestIngestTextStripsBOM(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bom.txt", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...))

	doc, err := New(quietLogger()).Ingest(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Text)
}

func TestIngestLegacy(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "old.doc", []byte("abc\x00\xffdef\n"))

	var logs bytes.Buffer
	doc, err := New(slog.New(slog.NewTextHandler(&logs, nil))).Ingest(path)
	require.NoError(t, err)

	assert.Equal(t, FormatLegacy, doc.Format)
	assert.Equal(t, "abc\uFFFDdef\n", doc.Text)
	assert.Contains(t, logs.String(), "unsupported format")
}

func TestIngestMissingFile(t *testing.T) {
	_, err := New(quietLogger()).Ingest(filepath.Join(t.TempDir(), "missing.docx"))
	require.Error(t, err)

	var ie *IngestError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Path, "missing.docx")
	assert.True(t, os.IsNotExist(ie.Err))
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.docx", nil)
	writeFile(t, dir, "a.md", nil)
	writeFile(t, dir, "notes.json", nil)
	writeFile(t, dir, ".hidden.md", nil)
	writeFile(t, dir, "sub/c.md", nil)
	writeFile(t, dir, ".git/d.md", nil)

	t.Run("flat", func(t *testing.T) {
		files, err := CollectFiles(dir, Filter{Extensions: []string{".md", ".docx"}})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a.md"),
			filepath.Join(dir, "b.docx"),
		}, files)
	})

	t.Run("recursive", func(t *testing.T) {
		files, err := CollectFiles(dir, Filter{Extensions: []string{".md"}, Recursive: true})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a.md"),
			filepath.Join(dir, "sub", "c.md"),
		}, files)
	})

	t.Run("no filter", func(t *testing.T) {
		files, err := CollectFiles(dir, Filter{})
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})

	t.Run("by name", func(t *testing.T) {
		files, err := CollectFiles(dir, Filter{Names: []string{"notes.json"}})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "notes.json")}, files)
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := CollectFiles(filepath.Join(dir, "nope"), Filter{})
		require.Error(t, err)
		assert.True(t, IsNotExist(err))
	})
}
