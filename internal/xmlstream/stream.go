// Package xmlstream is a forward-only pull tokenizer over an XML buffer.
//
// Element and attribute names keep their literal spelling, prefix included
// ("w:t", "a:t"). Namespaces are not resolved, so callers match names against
// the aliases real producers emit.
package xmlstream

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Kind identifies an Event.
type Kind int

const (
	StartTag Kind = iota + 1
	EndTag
	Text
	EndOfDocument
)

func (k Kind) String() string {
	switch k {
	case StartTag:
		return "StartTag"
	case EndTag:
		return "EndTag"
	case Text:
		return "Text"
	case EndOfDocument:
		return "EndOfDocument"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Attr is one attribute of a start tag.
type Attr struct {
	Name  string
	Value string
}

// Event is one item of the token sequence. Name is set for tags, Attrs for
// start tags and Text for character data.
type Event struct {
	Kind  Kind
	Name  string
	Attrs []Attr
	Text  string
}

// Attr returns the value of the attribute spelled exactly name.
func (e Event) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Is reports whether the event is a tag whose name is one of names.
func (e Event) Is(names ...string) bool {
	if e.Kind != StartTag && e.Kind != EndTag {
		return false
	}
	for _, n := range names {
		if e.Name == n {
			return true
		}
	}
	return false
}

// FormatError reports malformed XML. Line is 1-based.
type FormatError struct {
	Line   int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("xmlstream: line %d: %s", e.Line, e.Reason)
	if e.Err != nil && e.Err.Error() != e.Reason {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Stream produces events from one buffer. It is not safe for concurrent use.
type Stream struct {
	dec *xml.Decoder

	open     []string // names of unclosed elements
	rootSeen bool
	pending  xml.Token // token read while coalescing text
	last     Kind
	done     bool
	err      error
}

// utf8BOM may precede the XML declaration; parts saved by some editors carry it.
var utf8BOM = []byte("\xef\xbb\xbf")

// New returns a Stream over data. A leading UTF-8 byte order mark is skipped.
// The buffer is not modified.
func New(data []byte) *Stream {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel
	return &Stream{dec: dec}
}

// Next returns the next event. Once EndOfDocument is reached it is returned
// on every further call; once an error is returned it is returned again.
func (s *Stream) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	if s.done {
		return Event{Kind: EndOfDocument}, nil
	}
	ev, err := s.next()
	if err != nil {
		s.err = err
		return Event{}, err
	}
	s.last = ev.Kind
	if ev.Kind == EndOfDocument {
		s.done = true
	}
	return ev, nil
}

// NextText must follow a StartTag. It returns the element's text and consumes
// its end tag. An empty element yields "". A child element is an error.
func (s *Stream) NextText() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.last != StartTag {
		return "", errors.New("xmlstream: NextText called outside a start tag")
	}
	ev, err := s.Next()
	if err != nil {
		return "", err
	}
	switch ev.Kind {
	case EndTag:
		return "", nil
	case Text:
		end, err := s.Next()
		if err != nil {
			return "", err
		}
		if end.Kind != EndTag {
			return "", s.fail("expected end tag after text")
		}
		return ev.Text, nil
	default:
		return "", s.fail("element content in text-only element")
	}
}

func (s *Stream) next() (Event, error) {
	var text strings.Builder
	hasText := false
	for {
		tok, err := s.token()
		if err == io.EOF {
			if hasText {
				return Event{Kind: Text, Text: text.String()}, nil
			}
			if len(s.open) > 0 {
				return Event{}, s.fail(fmt.Sprintf("unclosed element <%s>", s.open[len(s.open)-1]))
			}
			return Event{Kind: EndOfDocument}, nil
		}
		if err != nil {
			return Event{}, s.wrap(err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			if len(s.open) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return Event{}, s.fail("character data outside the root element")
				}
				continue
			}
			text.Write(t)
			hasText = true
		case xml.StartElement, xml.EndElement:
			if hasText {
				s.pending = xml.CopyToken(tok)
				return Event{Kind: Text, Text: text.String()}, nil
			}
			return s.tag(tok)
		default:
			// comments, processing instructions and directives
		}
	}
}

func (s *Stream) token() (xml.Token, error) {
	if s.pending != nil {
		tok := s.pending
		s.pending = nil
		return tok, nil
	}
	return s.dec.RawToken()
}

func (s *Stream) tag(tok xml.Token) (Event, error) {
	switch t := tok.(type) {
	case xml.StartElement:
		if len(s.open) == 0 && s.rootSeen {
			return Event{}, s.fail("content after the root element")
		}
		s.rootSeen = true
		name := literal(t.Name)
		s.open = append(s.open, name)
		ev := Event{Kind: StartTag, Name: name}
		if len(t.Attr) > 0 {
			ev.Attrs = make([]Attr, len(t.Attr))
			for i, a := range t.Attr {
				ev.Attrs[i] = Attr{Name: literal(a.Name), Value: a.Value}
			}
		}
		return ev, nil
	case xml.EndElement:
		name := literal(t.Name)
		if len(s.open) == 0 {
			return Event{}, s.fail(fmt.Sprintf("unexpected end element </%s>", name))
		}
		top := s.open[len(s.open)-1]
		if top != name {
			return Event{}, s.fail(fmt.Sprintf("element <%s> closed by </%s>", top, name))
		}
		s.open = s.open[:len(s.open)-1]
		return Event{Kind: EndTag, Name: name}, nil
	}
	return Event{}, s.fail("unexpected token")
}

func (s *Stream) fail(reason string) error {
	line, _ := s.dec.InputPos()
	s.err = &FormatError{Line: line, Reason: reason}
	return s.err
}

func (s *Stream) wrap(err error) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &FormatError{Line: se.Line, Reason: se.Msg, Err: err}
	}
	line, _ := s.dec.InputPos()
	return &FormatError{Line: line, Reason: "unreadable document", Err: err}
}

func literal(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
