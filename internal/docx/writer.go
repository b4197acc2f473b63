// Package docx writes plain text as a minimal word-processing package.
package docx

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ooxtext/internal/container"
)

// Part names, in the order they are written.
const (
	ContentTypesPath = "[Content_Types].xml"
	RootRelsPath     = "_rels/.rels"
	DocumentRelsPath = "word/_rels/document.xml.rels"
	StylesPath       = "word/styles.xml"
	DocumentPath     = "word/document.xml"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
  <Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

const stylesXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:style w:type="paragraph" w:default="1" w:styleId="Normal">
    <w:name w:val="Normal"/>
  </w:style>
</w:styles>`

const documentHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:wpc="http://schemas.microsoft.com/office/word/2010/wordprocessingCanvas" ` +
	`xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" ` +
	`xmlns:o="urn:schemas-microsoft-com:office:office" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:m="http://schemas.openxmlformats.org/officeDocument/2006/math" ` +
	`xmlns:v="urn:schemas-microsoft-com:vml" ` +
	`xmlns:wp14="http://schemas.microsoft.com/office/word/2010/wordprocessingDrawing" ` +
	`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
	`xmlns:w10="urn:schemas-microsoft-com:office:word" ` +
	`xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:w14="http://schemas.microsoft.com/office/word/2010/wordml" ` +
	`xmlns:wpg="http://schemas.microsoft.com/office/word/2010/wordprocessingGroup" ` +
	`xmlns:wpi="http://schemas.microsoft.com/office/word/2010/wordprocessingInk" ` +
	`xmlns:wne="http://schemas.microsoft.com/office/word/2006/wordml" ` +
	`xmlns:wps="http://schemas.microsoft.com/office/word/2010/wordprocessingShape" ` +
	`mc:Ignorable="w14 wp14">
  <w:body>
`

const documentTail = `    <w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440"/></w:sectPr>
  </w:body>
</w:document>`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// DocumentXML returns the main document part for text: one paragraph per
// "\n"-separated line, each holding a single run.
func DocumentXML(text string) string {
	var b strings.Builder
	b.WriteString(documentHead)
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(`    <w:p><w:r><w:t xml:space="preserve">`)
		b.WriteString(xmlEscaper.Replace(line))
		b.WriteString("</w:t></w:r></w:p>\n")
	}
	b.WriteString(documentTail)
	return b.String()
}

// Write emits a complete package for text to w.
func Write(w io.Writer, text string) error {
	zw := container.NewWriter(w)
	parts := []struct {
		name    string
		content string
	}{
		{ContentTypesPath, contentTypesXML},
		{RootRelsPath, rootRelsXML},
		{DocumentRelsPath, documentRelsXML},
		{StylesPath, stylesXML},
		{DocumentPath, DocumentXML(text)},
	}
	for _, p := range parts {
		if err := zw.Add(p.name, []byte(p.content)); err != nil {
			return fmt.Errorf("write docx: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// Bytes returns the package for text as a byte slice.
func Bytes(text string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, text); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
