package routes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Linkify,
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithUnsafe(),
	),
)

// Markdown renders routes as a reference page titled title.
func Markdown(title string, routes []Route) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	if len(routes) == 0 {
		b.WriteString("No routes found.\n")
		return b.String()
	}

	b.WriteString("| Method | Endpoint | Handler |\n")
	b.WriteString("|---|---|---|\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "| %s | `%s` | `%s` |\n", strings.ToUpper(r.Method), r.Endpoint, r.Name)
	}

	for _, r := range routes {
		fmt.Fprintf(&b, "\n## %s %s\n\n", strings.ToUpper(r.Method), r.Endpoint)
		if r.Description != "" {
			b.WriteString(r.Description)
			b.WriteString("\n\n")
		}
		if len(r.Params) > 0 {
			quoted := make([]string, len(r.Params))
			for i, p := range r.Params {
				quoted[i] = "`" + p + "`"
			}
			fmt.Fprintf(&b, "**Parameters:** %s\n\n", strings.Join(quoted, ", "))
		}
		b.WriteString("```ts\n")
		b.WriteString(r.Code)
		b.WriteString("\n```\n")
	}
	return b.String()
}

// HTML renders routes as an HTML fragment.
func HTML(title string, routes []Route) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(title, routes)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
