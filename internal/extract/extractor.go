// Package extract provides plain-text extraction from Office Open XML packages
// (.docx, .xlsx, .pptx).
//
// Packages are read front to back through container.Reader and every XML part
// is tokenized with xmlstream, so a stream never has to be seekable.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/ooxtext/internal/container"
	"go.uber.org/zap"
)

// UnsupportedMessage is returned as the text of any document whose kind is not
// recognized. It is a result, not an error.
const UnsupportedMessage = "unsupported format"

// Tag aliases. Producers are inconsistent about prefixes, so each semantic tag
// is matched against every spelling seen in the wild.
var (
	paragraphTags    = []string{"p", "w:p"}
	wordTextTags     = []string{"t", "w:t"}
	sharedStringTags = []string{"t"}
	slideTextTags    = []string{"a:t"}
	cellTags         = []string{"c"}
	valueTags        = []string{"v"}
	rowTags          = []string{"row"}
)

// Extractor extracts plain text from OOXML packages. It holds no per-call
// state and is safe for concurrent use.
type Extractor struct {
	logger       *zap.Logger
	maxEntrySize int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger. If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// WithMaxEntrySize bounds how large any single part may decompress to.
// Packages holding a bigger part fail with a container format error wrapping
// container.ErrEntryTooLarge. n <= 0 means no limit.
func WithMaxEntrySize(n int64) Option {
	return func(e *Extractor) {
		e.maxEntrySize = n
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract classifies contentType and extracts the text of the package read
// from r. For an unsupported type it returns UnsupportedMessage without
// reading r. On failure the returned text is always "".
func (e *Extractor) Extract(r io.Reader, contentType string) (string, error) {
	return e.ExtractKind(r, Classify(contentType))
}

// ExtractKind is Extract with the kind already decided.
func (e *Extractor) ExtractKind(r io.Reader, kind Kind) (string, error) {
	var (
		text string
		err  error
	)
	limit := container.WithMaxEntrySize(e.maxEntrySize)
	switch kind {
	case KindWordDocument:
		text, err = extractDocx(r, limit)
	case KindSpreadsheet:
		text, err = extractXlsx(r, limit)
	case KindPresentation:
		text, err = extractPptx(r, limit)
	default:
		return UnsupportedMessage, nil
	}
	if err != nil {
		e.logger.Debug("extraction failed", zap.Stringer("kind", kind), zap.Error(err))
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}
	e.logger.Debug("extracted text", zap.Stringer("kind", kind), zap.Int("chars", len(text)))
	return text, nil
}

// ExtractBytes extracts text from an in-memory package.
func (e *Extractor) ExtractBytes(data []byte, contentType string) (string, error) {
	return e.Extract(bytes.NewReader(data), contentType)
}

// ExtractFile extracts text from the file at path. The kind comes from the
// file extension.
func (e *Extractor) ExtractFile(path string) (string, Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", KindUnsupported, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	kind := KindForExtension(filepath.Ext(path))
	text, err := e.ExtractKind(f, kind)
	if err != nil {
		return "", kind, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return text, kind, nil
}
