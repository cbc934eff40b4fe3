package eval

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderReport formats a report as a markdown document
func RenderReport(r *Report) string {
	var b strings.Builder

	title := "Verifier evaluation"
	if r.Task != "" {
		title += ": " + r.Task
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	m := r.Metrics
	b.WriteString("## Confusion matrix\n\n")
	b.WriteString("| | Predicted PASS | Predicted FAIL |\n")
	b.WriteString("|---|---|---|\n")
	fmt.Fprintf(&b, "| Labelled correct | %d | %d |\n", m.TruePositive, m.FalseNegative)
	fmt.Fprintf(&b, "| Labelled wrong | %d | %d |\n\n", m.FalsePositive, m.TrueNegative)

	b.WriteString("## Metrics\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| Examples | %d |\n", m.Total)
	fmt.Fprintf(&b, "| Precision | %.4f |\n", m.Precision())
	fmt.Fprintf(&b, "| Recall | %.4f |\n", m.Recall())
	fmt.Fprintf(&b, "| F1 | %.4f |\n", m.F1())
	fmt.Fprintf(&b, "| Accuracy | %.4f |\n\n", m.Accuracy())

	b.WriteString("## Decision paths\n\n")
	fmt.Fprintf(&b, "- Rule passes: %d\n", r.RulePasses)
	fmt.Fprintf(&b, "- Judge calls: %d\n", r.JudgeCalls)
	fmt.Fprintf(&b, "- Cache hits: %d\n\n", r.CacheHits)

	s := r.Scores
	b.WriteString("## Scores\n\n")
	fmt.Fprintf(&b, "Mean %.4f, median %.4f, p90 %.4f, range [%.4f, %.4f]\n", s.Mean, s.Median, s.P90, s.Min, s.Max)

	return b.String()
}

// RenderHTML converts the markdown report into a standalone HTML page
func RenderHTML(r *Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Verifier evaluation",
	})
	return markdown.ToHTML([]byte(RenderReport(r)), p, renderer)
}
