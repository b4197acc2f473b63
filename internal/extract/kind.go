package extract

import "strings"

// Kind is the document family selected from a declared content type.
type Kind int

const (
	KindUnsupported Kind = iota
	KindWordDocument
	KindSpreadsheet
	KindPresentation
)

// OOXML package content types.
const (
	ContentTypeWordDocument = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeSpreadsheet  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePresentation = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// Classify maps a content type to a Kind by exact, case-sensitive comparison.
// Anything else, including "", is KindUnsupported.
func Classify(contentType string) Kind {
	switch contentType {
	case ContentTypeWordDocument:
		return KindWordDocument
	case ContentTypeSpreadsheet:
		return KindSpreadsheet
	case ContentTypePresentation:
		return KindPresentation
	default:
		return KindUnsupported
	}
}

// KindForExtension derives a Kind from a file extension such as ".docx".
// The comparison ignores case.
func KindForExtension(ext string) Kind {
	switch strings.ToLower(ext) {
	case ".docx":
		return KindWordDocument
	case ".xlsx":
		return KindSpreadsheet
	case ".pptx":
		return KindPresentation
	default:
		return KindUnsupported
	}
}

// ContentType returns the content type Classify maps to k, or "".
func (k Kind) ContentType() string {
	switch k {
	case KindWordDocument:
		return ContentTypeWordDocument
	case KindSpreadsheet:
		return ContentTypeSpreadsheet
	case KindPresentation:
		return ContentTypePresentation
	default:
		return ""
	}
}

// Extension returns the default file extension for k, or "".
func (k Kind) Extension() string {
	switch k {
	case KindWordDocument:
		return ".docx"
	case KindSpreadsheet:
		return ".xlsx"
	case KindPresentation:
		return ".pptx"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindWordDocument:
		return "docx"
	case KindSpreadsheet:
		return "xlsx"
	case KindPresentation:
		return "pptx"
	default:
		return "unsupported"
	}
}

// ParseKind is the inverse of String. Unknown names yield KindUnsupported.
func ParseKind(s string) Kind {
	switch s {
	case "docx":
		return KindWordDocument
	case "xlsx":
		return KindSpreadsheet
	case "pptx":
		return KindPresentation
	default:
		return KindUnsupported
	}
}
