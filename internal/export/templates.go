package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate *template.Template

func init() {
	content, err := templateFS.ReadFile("templates/diff.html")
	if err != nil {
		pageTemplate = template.Must(template.New("diff").Parse(fallbackTemplate))
		return
	}
	pageTemplate = template.Must(template.New("diff").Parse(string(content)))
}

type templateData struct {
	Page
	Styles template.CSS
}

// RenderPageHTML renders the export page. Class names that are not plain
// CSS identifiers are left unstyled.
func RenderPageHTML(page Page) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, templateData{Page: page, Styles: diffStyles(page.Classes)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func diffStyles(c Classes) template.CSS {
	var b strings.Builder
	rule := func(class, decl string) {
		if isIdent(class) {
			fmt.Fprintf(&b, ".%s { %s }\n", class, decl)
		}
	}
	rule(c.Inserted, "background: #e6ffec; color: #1a7f37; text-decoration: none;")
	rule(c.Deleted, "background: #ffebe9; color: #cf222e; text-decoration: line-through;")
	rule(c.Modified, "outline: 1px dashed #9a6700;")
	return template.CSS(b.String())
}

func isIdent(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>{{.Styles}}</style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.FromLabel}} &rarr; {{.ToLabel}}</p>
  <div>{{.DiffHTML}}</div>
</body>
</html>`
