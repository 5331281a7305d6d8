package report

import (
	"bytes"
	"html"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts Markdown to an HTML fragment. GFM tables are
// enabled since every report section is tabular.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", eris.Wrap(err, "report: render html")
	}
	return buf.String(), nil
}

// HTMLPage wraps the rendered Markdown in a standalone document.
func HTMLPage(title, markdown string) (string, error) {
	body, err := RenderHTML(markdown)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title>\n<style>\n")
	buf.WriteString("body{font-family:sans-serif;max-width:1100px;margin:2em auto}\n")
	buf.WriteString("table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}\n")
	buf.WriteString("</style>\n</head>\n<body>\n")
	buf.WriteString(body)
	buf.WriteString("</body>\n</html>\n")
	return buf.String(), nil
}
