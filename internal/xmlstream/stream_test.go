package xmlstream

import (
	"fmt"
	"strings"
	"testing"
)

// collect renders the event sequence compactly, e.g. "<w:p> 'Hi' </w:p> EOD".
func collect(t *testing.T, data string) (string, error) {
	t.Helper()
	s := New([]byte(data))
	var parts []string
	for i := 0; i < 1000; i++ {
		ev, err := s.Next()
		if err != nil {
			return strings.Join(parts, " "), err
		}
		switch ev.Kind {
		case StartTag:
			parts = append(parts, "<"+ev.Name+">")
		case EndTag:
			parts = append(parts, "</"+ev.Name+">")
		case Text:
			parts = append(parts, fmt.Sprintf("%q", ev.Text))
		case EndOfDocument:
			parts = append(parts, "EOD")
			return strings.Join(parts, " "), nil
		}
	}
	t.Fatal("stream did not end")
	return "", nil
}

func TestStream_events(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "prefixed names kept literal",
			in:   `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="urn:w"><w:p><w:t>Hi</w:t></w:p></w:document>`,
			want: `<w:document> <w:p> <w:t> "Hi" </w:t> </w:p> </w:document> EOD`,
		},
		{
			name: "leading byte order mark skipped",
			in:   "\xef\xbb\xbf" + `<?xml version="1.0" encoding="UTF-8"?><r><t>hi</t></r>`,
			want: `<r> <t> "hi" </t> </r> EOD`,
		},
		{
			name: "byte order mark without declaration",
			in:   "\xef\xbb\xbf<r>x</r>",
			want: `<r> "x" </r> EOD`,
		},
		{
			name: "self-closing element",
			in:   `<root><br/></root>`,
			want: `<root> <br> </br> </root> EOD`,
		},
		{
			name: "text and cdata coalesced across comments",
			in:   `<t>a<!-- c -->b<![CDATA[<c>]]>d</t>`,
			want: `<t> "ab<c>d" </t> EOD`,
		},
		{
			name: "entities decoded",
			in:   `<t>&amp;&lt;&gt;&quot;&apos;</t>`,
			want: `<t> "&<>\"'" </t> EOD`,
		},
		{
			name: "whitespace outside root dropped",
			in:   "\n  <a>x</a>\n",
			want: `<a> "x" </a> EOD`,
		},
		{
			name: "empty buffer",
			in:   "",
			want: `EOD`,
		},
		{
			name: "whitespace only buffer",
			in:   " \n\t",
			want: `EOD`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("events = %s\nwant     %s", got, tt.want)
			}
		})
	}
}

func TestStream_malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"mismatched end tag", `<a><b></a></b>`},
		{"unclosed element", `<a><b>text</b>`},
		{"stray end tag", `</a>`},
		{"second root", `<a/><b/>`},
		{"text after root", `<a/>tail`},
		{"syntax error", `<a attr=unquoted/>`},
		{"undefined entity", `<a>&nbsp;</a>`},
		{"second byte order mark", "\xef\xbb\xbf\xef\xbb\xbf<a/>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsFormatError(err) {
				t.Fatalf("error %v is not a FormatError", err)
			}
		})
	}
}

func TestStream_errorIsSticky(t *testing.T) {
	s := New([]byte(`<a></b>`))
	var first error
	for first == nil {
		_, first = s.Next()
	}
	_, again := s.Next()
	if again != first {
		t.Errorf("second error = %v, want %v", again, first)
	}
	if _, err := s.NextText(); err != first {
		t.Errorf("NextText error = %v, want %v", err, first)
	}
}

func TestStream_endOfDocumentRepeats(t *testing.T) {
	s := New([]byte(`<a/>`))
	for i := 0; i < 3; i++ {
		if _, err := s.Next(); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		ev, err := s.Next()
		if err != nil || ev.Kind != EndOfDocument {
			t.Fatalf("call %d: %v, %v", i, ev.Kind, err)
		}
	}
}

func TestStream_attributes(t *testing.T) {
	s := New([]byte(`<c r="A1" t="s" xml:space="preserve"/>`))
	ev, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Is("c") || ev.Is("v", "row") {
		t.Errorf("Is mismatch for %q", ev.Name)
	}
	if v, ok := ev.Attr("t"); !ok || v != "s" {
		t.Errorf("Attr(t) = %q, %v", v, ok)
	}
	if v, ok := ev.Attr("xml:space"); !ok || v != "preserve" {
		t.Errorf("Attr(xml:space) = %q, %v", v, ok)
	}
	if _, ok := ev.Attr("space"); ok {
		t.Error("unprefixed lookup matched a prefixed attribute")
	}
}

func TestStream_NextText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"text", `<t>hello</t>`, "hello", false},
		{"empty element", `<t></t>`, "", false},
		{"self-closing", `<t/>`, "", false},
		{"whitespace kept", `<t xml:space="preserve">  x  </t>`, "  x  ", false},
		{"nested element", `<t><b>x</b></t>`, "", true},
		{"text then element", `<t>x<b/></t>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New([]byte(tt.in))
			if _, err := s.Next(); err != nil {
				t.Fatal(err)
			}
			got, err := s.NextText()
			if tt.wantErr {
				if !IsFormatError(err) {
					t.Fatalf("expected FormatError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextText: %v", err)
			}
			if got != tt.want {
				t.Errorf("NextText = %q, want %q", got, tt.want)
			}
			ev, err := s.Next()
			if err != nil || ev.Kind != EndOfDocument {
				t.Errorf("after NextText: %v, %v", ev.Kind, err)
			}
		})
	}
}

func TestStream_NextTextOutsideStartTag(t *testing.T) {
	s := New([]byte(`<t>x</t>`))
	if _, err := s.NextText(); err == nil {
		t.Error("expected error before any start tag")
	}
}

func TestStream_declaredCharset(t *testing.T) {
	// "café" in ISO-8859-1.
	data := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><t>caf`), 0xe9, '<', '/', 't', '>')
	s := New(data)
	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	got, err := s.NextText()
	if err != nil {
		t.Fatalf("NextText: %v", err)
	}
	if got != "café" {
		t.Errorf("text = %q, want café", got)
	}
}
