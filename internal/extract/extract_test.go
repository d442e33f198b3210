package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	for _, l := range lines {
		doc.Cell(0, 10, l)
		doc.Ln(10)
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestBytes_PDF(t *testing.T) {
	data := samplePDF(t, "Total revenue was 96.8 billion.", "Gross margin improved.")
	text, err := Bytes("report.pdf", data)
	require.NoError(t, err)
	assert.Contains(t, squash(text), "Totalrevenuewas96.8billion.")
	assert.Contains(t, squash(text), "Grossmarginimproved.")
}

func TestBytes_PlainText(t *testing.T) {
	text, err := Bytes("notes.TXT", []byte("  line one\r\nline two \n"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestBytes_Errors(t *testing.T) {
	_, err := Bytes("deck.pptx", []byte("x"))
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Bytes("empty.md", []byte(" \n\t"))
	require.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Bytes("bad.txt", []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)

	_, err = Bytes("broken.pdf", []byte("%PDF-1.4 not really"))
	require.Error(t, err)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filing.md")
	require.NoError(t, os.WriteFile(path, []byte("# Filing\nNet income rose."), 0o644))
	text, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "# Filing\nNet income rose.", text)

	_, err = File(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.PDF"))
	assert.True(t, Supported("a.md"))
	assert.False(t, Supported("a.docx"))
	assert.False(t, Supported("noext"))
}
