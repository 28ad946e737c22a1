// Package report writes descriptive statistics as markdown and renders it to HTML.
package report

import (
	"fmt"
	"math"
	"strings"

	"emcon/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// HTMLRenderer converts markdown into a standalone HTML page
type HTMLRenderer struct {
	Title string
}

var _ ports.ReportRenderer = HTMLRenderer{}

// RenderHTML implements ports.ReportRenderer
func (r HTMLRenderer) RenderHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: r.Title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

// Document accumulates a markdown report
type Document struct {
	b strings.Builder
}

// Heading writes a heading of the given level
func (d *Document) Heading(level int, text string) {
	fmt.Fprintf(&d.b, "%s %s\n\n", strings.Repeat("#", level), text)
}

// Paragraph writes a block of text
func (d *Document) Paragraph(text string) {
	fmt.Fprintf(&d.b, "%s\n\n", text)
}

// Table writes a pipe table. Numeric cells should already be formatted.
func (d *Document) Table(header []string, rows [][]string) {
	d.b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	d.b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		d.b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	d.b.WriteString("\n")
}

// Bytes returns the markdown source
func (d *Document) Bytes() []byte { return []byte(d.b.String()) }

// Number formats a statistic for a table cell; undefined values print as "NA"
func Number(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return fmt.Sprintf("%.*f", decimals, v)
}
