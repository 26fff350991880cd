package textextract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExtract_PlainText(t *testing.T) {
	e := New(nil)
	assert.Equal(t, "Revenue grew 15%.\n", e.Extract([]byte("Revenue grew 15%.\n"), "notes.txt"))
	assert.Equal(t, "# Title", e.Extract([]byte("# Title"), "README.md"))
}

func TestExtract_InvalidUTF8IsReplaced(t *testing.T) {
	e := New(nil)
	got := e.Extract([]byte{'o', 'k', 0xff, '!'}, "notes.txt")
	assert.Equal(t, "ok�!", got)
}

func TestExtract_BrokenPDFFallsBackToRawBytes(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := New(zap.New(core))

	got := e.Extract([]byte("not really a pdf"), "Report.PDF")
	assert.Equal(t, "not really a pdf", got)
	assert.Equal(t, 1, logs.FilterMessage("pdf extraction failed, decoding raw bytes").Len())
}

func TestExtract_Empty(t *testing.T) {
	assert.Equal(t, "", New(nil).Extract(nil, "a.pdf"))
}
