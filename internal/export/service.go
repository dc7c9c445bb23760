package export

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

// Service converts diff pages to downloadable documents.
type Service struct {
	timeout time.Duration
}

func NewService(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{timeout: timeout}
}

// Export renders page and converts it to format. Conversion is bounded by
// the service timeout and by ctx.
func (s *Service) Export(ctx context.Context, page Page, format Format) (*Result, error) {
	html, err := RenderPageHTML(page)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(page.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, html, page.Title)
	case FormatDOCX:
		return exportDOCX(ctx, html, page.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
