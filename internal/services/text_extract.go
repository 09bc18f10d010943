package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/vivavoce/defense-backend/internal/pkg/logger"
)

// TextExtractService turns an uploaded file into plain text for
// chunking. The pipeline does not care about the source format, any
// implementation of this interface can be swapped in.
type TextExtractService interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

type textExtractService struct {
	log *logger.Logger
}

func NewTextExtractService(log *logger.Logger) (TextExtractService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &textExtractService{
		log: log.With("service", "TextExtractService"),
	}, nil
}

func (s *textExtractService) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("extract: empty file %q", filename)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case "", ".txt", ".md", ".text":
	default:
		return "", fmt.Errorf("extract: unsupported file type %q, upload plain text", ext)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("extract: file %q is not valid UTF-8 text", filename)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("extract: file %q contains no text", filename)
	}

	s.log.Debug("text extracted", "filename", filename, "bytes", len(data), "chars", len(text))
	return text, nil
}
