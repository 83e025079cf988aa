package report

import (
	"context"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderHTML converts a markdown report into a complete HTML page
func RenderHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

// HTML builds the latest report and renders it as a full page
func (g *Generator) HTML(ctx context.Context) ([]byte, error) {
	r, err := g.Build(ctx)
	if err != nil {
		return nil, err
	}
	return RenderHTML([]byte(r.Markdown()), "Recalibration Audit Report"), nil
}
