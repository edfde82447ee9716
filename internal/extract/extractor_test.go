package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "hello world\n" {
		t.Errorf("got %q", text)
	}
}

func TestExtractMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, []byte("# Title\n\nbody"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(text, "# Title") {
		t.Errorf("markdown should pass through unchanged, got %q", text)
	}
}

func TestExtractInvalidUTF8Replaced(t *testing.T) {
	text, err := ExtractBytes([]byte{'o', 'k', 0xff, 0xfe}, ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.HasPrefix(text, "ok") || !strings.Contains(text, "�") {
		t.Errorf("invalid bytes should be replaced, got %q", text)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.xlsx")
	if err := os.WriteFile(path, []byte("whatever"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Extract(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	cases := map[string]bool{
		"a.txt":  true,
		"a.MD":   true,
		"a.pdf":  true,
		"a.docx": true,
		"a.xlsx": false,
		"a":      false,
	}
	for path, want := range cases {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

// buildDocx assembles a minimal .docx zip with the given document body runs.
func buildDocx(t *testing.T, runs ...string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document><w:body><w:p>`)
	for _, r := range runs {
		body.WriteString(`<w:r><w:t xml:space="preserve">` + r + `</w:t></w:r>`)
	}
	body.WriteString(`</w:p></w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(body.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	content := buildDocx(t, "first run", "second run")
	text, err := ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if text != "first run second run" {
		t.Errorf("got %q", text)
	}
}

func TestExtractDocxNotAZip(t *testing.T) {
	_, err := ExtractBytes([]byte("plainly not a zip"), ".docx")
	if err == nil {
		t.Fatal("expected error for invalid docx")
	}
}

func TestExtractPDFInvalid(t *testing.T) {
	_, err := ExtractBytes([]byte("not a pdf"), ".pdf")
	if err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}
