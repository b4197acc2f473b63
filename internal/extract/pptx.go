package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ooxtext/internal/container"
	"github.com/hyperjump/ooxtext/internal/xmlstream"
)

// pptxSlidePathPrefix is the path prefix for slide XML files inside a .pptx package.
const pptxSlidePathPrefix = "ppt/slides/slide"

// extractPptx renders each slide as a "Slide N:" header followed by its text
// runs joined with spaces. Slides follow package order and are separated by
// a blank line.
func extractPptx(r io.Reader, opts ...container.ReaderOption) (string, error) {
	var b strings.Builder
	n := 0
	err := container.Walk(r,
		func(name string) bool {
			return strings.HasPrefix(name, pptxSlidePathPrefix) && strings.HasSuffix(name, ".xml")
		},
		func(e *container.Entry, content []byte) error {
			body, err := slideText(content)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
			if n > 0 {
				b.WriteString("\n\n")
			}
			n++
			fmt.Fprintf(&b, "Slide %d:\n%s", n, body)
			return nil
		}, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// slideText joins the non-empty a:t runs of one slide with single spaces.
func slideText(data []byte) (string, error) {
	s := xmlstream.New(data)
	var (
		out strings.Builder
		run strings.Builder
		inT bool
	)
	for {
		ev, err := s.Next()
		if err != nil {
			return "", err
		}
		switch ev.Kind {
		case xmlstream.EndOfDocument:
			return out.String(), nil
		case xmlstream.StartTag:
			if ev.Is(slideTextTags...) {
				inT = true
				run.Reset()
			}
		case xmlstream.Text:
			if inT {
				run.WriteString(ev.Text)
			}
		case xmlstream.EndTag:
			if !ev.Is(slideTextTags...) {
				continue
			}
			inT = false
			if run.Len() == 0 {
				continue
			}
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(run.String())
			run.Reset()
		}
	}
}
