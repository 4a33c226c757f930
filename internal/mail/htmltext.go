package mail

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Noscript: true,
	atom.Template: true,
}

// HTMLToText extracts the visible text of an HTML body with whitespace
// collapsed to single spaces. Plain text input passes through unchanged
// apart from whitespace.
func HTMLToText(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is kept.
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skippedElements[atom.Lookup(name)] {
				skipDepth++
			}
			b.WriteString(" ")
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skippedElements[atom.Lookup(name)] && skipDepth > 0 {
				skipDepth--
			}
			b.WriteString(" ")
		case html.SelfClosingTagToken:
			b.WriteString(" ")
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}
