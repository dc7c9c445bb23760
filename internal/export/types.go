// Package export renders a version diff as a standalone HTML, PDF or DOCX
// document.
package export

import (
	"errors"
	"fmt"
	"html/template"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts a format name in any case. Empty means PDF.
func ParseFormat(s string) (Format, error) {
	switch Format(lower(s)) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	case FormatHTML:
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Page is one exported comparison between two versions of a proposal.
type Page struct {
	Title       string
	FromLabel   string
	ToLabel     string
	DiffHTML    template.HTML
	GeneratedAt time.Time
	Classes     Classes
}

// Classes are the markers the diff body uses; the page styles them.
type Classes struct {
	Inserted string
	Deleted  string
	Modified string
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
