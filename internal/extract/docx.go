package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ooxtext/internal/container"
	"github.com/hyperjump/ooxtext/internal/xmlstream"
)

// docxDocumentXMLPath is the main document body inside a .docx package.
const docxDocumentXMLPath = "word/document.xml"

// extractDocx returns the text of word/document.xml, one line per paragraph.
// A package without that part yields "". Reading stops once the part is found.
func extractDocx(r io.Reader, opts ...container.ReaderOption) (string, error) {
	var text string
	err := container.Walk(r,
		func(name string) bool { return name == docxDocumentXMLPath },
		func(_ *container.Entry, content []byte) error {
			var err error
			if text, err = wordDocumentText(content); err != nil {
				return fmt.Errorf("%s: %w", docxDocumentXMLPath, err)
			}
			return container.ErrStop
		}, opts...)
	if err != nil {
		return "", err
	}
	return text, nil
}

// wordDocumentText appends every text run and starts a new line at each
// paragraph, but only once some text exists, so leading empty paragraphs
// leave no blank lines.
func wordDocumentText(data []byte) (string, error) {
	s := xmlstream.New(data)
	var out strings.Builder
	for {
		ev, err := s.Next()
		if err != nil {
			return "", err
		}
		if ev.Kind == xmlstream.EndOfDocument {
			return out.String(), nil
		}
		if ev.Kind != xmlstream.StartTag {
			continue
		}
		switch {
		case ev.Is(wordTextTags...):
			t, err := s.NextText()
			if err != nil {
				return "", err
			}
			out.WriteString(t)
		case ev.Is(paragraphTags...):
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
		}
	}
}
