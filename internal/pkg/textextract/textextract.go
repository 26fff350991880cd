// Package textextract turns stored upload bytes into plain text for chunking.
package textextract

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lumina-knowledge-base/internal/pkg/pdfextract"
)

// Extractor never fails: when structured extraction errors or yields nothing
// the bytes are decoded as UTF-8 with invalid sequences replaced.
type Extractor struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.Named("textextract")}
}

func (e *Extractor) Extract(data []byte, fileName string) string {
	if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		text, err := pdfextract.ExtractText(data)
		if err != nil {
			e.logger.Warn("pdf extraction failed, decoding raw bytes",
				zap.String("file_name", fileName), zap.Error(err))
			return rawText(data)
		}
		if strings.TrimSpace(text) != "" {
			return text
		}
		e.logger.Info("pdf has no text layer, decoding raw bytes", zap.String("file_name", fileName))
	}
	return rawText(data)
}

func rawText(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
