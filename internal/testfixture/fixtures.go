// Package testfixture builds small OOXML packages for tests. Packages are
// written with archive/zip or excelize, never with this module's own writer,
// so readers are always checked against an independent producer.
package testfixture

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions lists the extensions WriteMinimalFile produces packages for.
var SupportedFileExtensions = []string{".docx", ".xlsx", ".pptx"}

// Part is one entry of a hand-built package.
type Part struct {
	Name    string
	Content string
	Stored  bool // write without compression
}

// Zip returns a package holding parts in the given order.
func Zip(parts ...Part) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range parts {
		method := zip.Deflate
		if p.Stored {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: p.Name, Method: method})
		if err != nil {
			panic(fmt.Sprintf("testfixture: create %s: %v", p.Name, err))
		}
		_, _ = fw.Write([]byte(p.Content))
	}
	_ = w.Close()
	return buf.Bytes()
}

// Escape returns s with XML special characters escaped.
func Escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// DocumentXML wraps one w:p per paragraph in a w:document envelope. An empty
// paragraph has no runs.
func DocumentXML(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		if p == "" {
			b.WriteString(`<w:p/>`)
			continue
		}
		b.WriteString(`<w:p w:rsidR="00AB12CD"><w:pPr><w:pStyle w:val="Normal"/></w:pPr><w:r><w:t xml:space="preserve">`)
		b.WriteString(Escape(p))
		b.WriteString(`</w:t></w:r></w:p>`)
	}
	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String()
}

// Docx returns a word-processing package whose body has the given paragraphs.
func Docx(paragraphs ...string) []byte {
	return Zip(
		Part{Name: "[Content_Types].xml", Content: `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		Part{Name: "word/document.xml", Content: DocumentXML(paragraphs...)},
	)
}

// SharedStringsXML returns an sst part with one plain si per string.
func SharedStringsXML(items ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="%d" uniqueCount="%d">`, len(items), len(items))
	for _, s := range items {
		b.WriteString(`<si><t>` + Escape(s) + `</t></si>`)
	}
	b.WriteString(`</sst>`)
	return b.String()
}

// Cell is one c element. Type "s" marks a shared string index.
type Cell struct {
	Type  string
	Value string
}

// SheetXML returns a worksheet part with the given rows.
func SheetXML(rows ...[]Cell) string {
	var b strings.Builder
	b.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for i, row := range rows {
		fmt.Fprintf(&b, `<row r="%d">`, i+1)
		for j, c := range row {
			ref := fmt.Sprintf("%c%d", 'A'+j, i+1)
			if c.Type != "" {
				fmt.Fprintf(&b, `<c r="%s" t="%s"><v>%s</v></c>`, ref, c.Type, Escape(c.Value))
			} else {
				fmt.Fprintf(&b, `<c r="%s"><v>%s</v></c>`, ref, Escape(c.Value))
			}
		}
		b.WriteString(`</row>`)
	}
	b.WriteString(`</sheetData></worksheet>`)
	return b.String()
}

// Xlsx returns a spreadsheet package with a shared string table (omitted when
// shared is nil) followed by the sheets, named sheet1.xml, sheet2.xml and so on.
func Xlsx(shared []string, sheets ...string) []byte {
	var parts []Part
	if shared != nil {
		parts = append(parts, Part{Name: "xl/sharedStrings.xml", Content: SharedStringsXML(shared...)})
	}
	for i, s := range sheets {
		parts = append(parts, Part{Name: fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1), Content: s})
	}
	return Zip(parts...)
}

// SlideXML returns a slide part with one a:t run per entry.
func SlideXML(runs ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody><a:bodyPr/><a:p>`)
	for _, r := range runs {
		b.WriteString(`<a:r><a:rPr lang="en-US"/><a:t>` + Escape(r) + `</a:t></a:r>`)
	}
	b.WriteString(`</a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return b.String()
}

// Pptx returns a presentation package with one slide per element of slides.
func Pptx(slides ...[]string) []byte {
	parts := []Part{{Name: "ppt/presentation.xml", Content: `<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`}}
	for i, runs := range slides {
		parts = append(parts, Part{Name: fmt.Sprintf("ppt/slides/slide%d.xml", i+1), Content: SlideXML(runs...)})
	}
	return Zip(parts...)
}

// ExcelizeXlsx returns a single-sheet workbook written by excelize with cells
// keyed by reference ("A1").
func ExcelizeXlsx(cells map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for ref, v := range cells {
		if err := f.SetCellValue("Sheet1", ref, v); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteMinimalFile returns the bytes of a minimal file of the given extension
// holding text. Unknown extensions get the raw text.
func WriteMinimalFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".docx":
		return Docx(text), nil
	case ".pptx":
		return Pptx([]string{text}), nil
	case ".xlsx":
		return ExcelizeXlsx(map[string]string{"A1": text})
	default:
		return []byte(text), nil
	}
}
