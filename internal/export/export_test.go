package export

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"AIP-12 v1.2", "AIP-12-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "proposal-diff"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatPDF, false},
		{"PDF", FormatPDF, false},
		{"docx", FormatDOCX, false},
		{" html ", FormatHTML, false},
		{"odt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseFormat(%q) = %q, %v", tt.input, got, err)
			}
		})
	}
}

func testPage() Page {
	return Page{
		Title:       "Fund the <grants> program",
		FromLabel:   "Version 1",
		ToLabel:     "Version 3",
		DiffHTML:    template.HTML(`<p>The <del class="diff-deleted">cat</del><ins class="diff-inserted">dog</ins> sat</p>`),
		GeneratedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Classes:     Classes{Inserted: "diff-inserted", Deleted: "diff-deleted", Modified: "diff-modified"},
	}
}

func TestRenderPageHTML(t *testing.T) {
	html, err := RenderPageHTML(testPage())
	if err != nil {
		t.Fatalf("RenderPageHTML() error = %v", err)
	}

	if !strings.Contains(html, "Fund the &lt;grants&gt; program") {
		t.Error("title should be escaped")
	}
	if !strings.Contains(html, `<ins class="diff-inserted">dog</ins>`) {
		t.Error("diff body should be rendered as raw HTML")
	}
	if !strings.Contains(html, ".diff-deleted {") || !strings.Contains(html, ".diff-modified {") {
		t.Error("missing styles for diff classes")
	}
	if !strings.Contains(html, "Version 1") || !strings.Contains(html, "Version 3") {
		t.Error("missing version labels")
	}
}

func TestRenderPageHTMLSkipsUnsafeClasses(t *testing.T) {
	page := testPage()
	page.Classes.Inserted = "x} body {display:none"

	html, err := RenderPageHTML(page)
	if err != nil {
		t.Fatalf("RenderPageHTML() error = %v", err)
	}
	if strings.Contains(html, "display:none") {
		t.Error("unsafe class name leaked into styles")
	}
}

func TestExportHTML(t *testing.T) {
	res, err := NewService(0).Export(context.Background(), testPage(), FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Fund-the-grants-program.html" {
		t.Errorf("unexpected filename %q", res.Filename)
	}
	if !strings.HasPrefix(res.MimeType, "text/html") {
		t.Errorf("unexpected mime type %q", res.MimeType)
	}
	if !strings.Contains(string(res.Data), "<del class=\"diff-deleted\">cat</del>") {
		t.Error("export body missing diff")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := NewService(time.Second).Export(context.Background(), testPage(), Format("odt"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
