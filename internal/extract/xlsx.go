package extract

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/ooxtext/internal/container"
	"github.com/hyperjump/ooxtext/internal/xmlstream"
)

const (
	xlsxSharedStringsPath = "xl/sharedStrings.xml"
	xlsxWorksheetPrefix   = "xl/worksheets/"
)

type sheetPart struct {
	name string
	data []byte
}

// extractXlsx collects the shared string table and every worksheet in one
// pass, then renders the sheets in the order they appear in the package.
// Physical order is not necessarily the workbook's tab order.
func extractXlsx(r io.Reader, opts ...container.ReaderOption) (string, error) {
	var (
		shared []string
		sheets []sheetPart
	)
	err := container.Walk(r,
		func(name string) bool {
			return name == xlsxSharedStringsPath ||
				strings.HasPrefix(name, xlsxWorksheetPrefix) && strings.HasSuffix(name, ".xml")
		},
		func(e *container.Entry, content []byte) error {
			if e.Name != xlsxSharedStringsPath {
				sheets = append(sheets, sheetPart{name: e.Name, data: content})
				return nil
			}
			table, err := sharedStrings(content)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
			shared = append(shared, table...)
			return nil
		}, opts...)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, sheet := range sheets {
		body, err := sheetText(sheet.data, shared)
		if err != nil {
			return "", fmt.Errorf("%s: %w", sheet.name, err)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Sheet %d:\n%s\n", i+1, body)
	}
	return strings.TrimSpace(b.String()), nil
}

// sharedStrings returns the text of every t element in document order. Rich
// text items contribute one entry per run.
func sharedStrings(data []byte) ([]string, error) {
	s := xmlstream.New(data)
	var (
		table []string
		inT   bool
		cur   strings.Builder
	)
	for {
		ev, err := s.Next()
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case xmlstream.EndOfDocument:
			return table, nil
		case xmlstream.StartTag:
			if ev.Is(sharedStringTags...) {
				inT = true
				cur.Reset()
			}
		case xmlstream.Text:
			if inT {
				cur.WriteString(ev.Text)
			}
		case xmlstream.EndTag:
			if ev.Is(sharedStringTags...) && inT {
				table = append(table, cur.String())
				inT = false
			}
		}
	}
}

// sheetState is the accumulator threaded through one worksheet scan.
type sheetState struct {
	shared   []string
	cellType string
	inV      bool
	pending  strings.Builder
	line     strings.Builder
	out      strings.Builder
}

// flushCell resolves the pending value and appends it to the row line.
func (st *sheetState) flushCell() {
	raw := st.pending.String()
	value := raw
	if st.cellType == "s" {
		value = st.lookup(raw)
	}
	if st.line.Len() > 0 {
		st.line.WriteByte('\t')
	}
	st.line.WriteString(value)
	st.pending.Reset()
	st.cellType = ""
}

// lookup resolves a shared string index, falling back to the raw value.
func (st *sheetState) lookup(raw string) string {
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= len(st.shared) {
		return raw
	}
	return st.shared[idx]
}

func (st *sheetState) flushRow() {
	if st.line.Len() == 0 {
		return
	}
	if st.out.Len() > 0 {
		st.out.WriteByte('\n')
	}
	st.out.WriteString(st.line.String())
	st.line.Reset()
}

// sheetText renders one worksheet as tab-separated rows.
func sheetText(data []byte, shared []string) (string, error) {
	s := xmlstream.New(data)
	st := &sheetState{shared: shared}
	for {
		ev, err := s.Next()
		if err != nil {
			return "", err
		}
		switch ev.Kind {
		case xmlstream.EndOfDocument:
			st.flushRow()
			return st.out.String(), nil
		case xmlstream.StartTag:
			switch {
			case ev.Is(cellTags...):
				st.cellType, _ = ev.Attr("t")
			case ev.Is(valueTags...):
				st.inV = true
				st.pending.Reset()
			}
		case xmlstream.Text:
			if st.inV {
				st.pending.WriteString(ev.Text)
			}
		case xmlstream.EndTag:
			switch {
			case ev.Is(valueTags...):
				st.inV = false
			case ev.Is(cellTags...):
				st.flushCell()
			case ev.Is(rowTags...):
				st.flushRow()
			}
		}
	}
}
