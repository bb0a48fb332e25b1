// Package render formats agent replies, which are markdown, for display in
// a terminal.
//
//	r := render.New(render.Options{Color: !color.NoColor})
//	fmt.Println(r.Render(reply))
//
// Supported: headings, paragraphs, emphasis, strikethrough, inline and
// fenced code, ordered and unordered lists, block quotes, links, bare URLs
// and thematic breaks. Anything else is rendered as its plain text.
package render
