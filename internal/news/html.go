package news

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Br: true, atom.Div: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// textChunks tokenizes HTML and returns the plain text of each block,
// with whitespace collapsed. Script and style bodies are dropped.
func textChunks(s string) []string {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		chunks []string
		cur    strings.Builder
		skip   int
	)
	flush := func() {
		if t := strings.Join(strings.Fields(cur.String()), " "); t != "" {
			chunks = append(chunks, t)
		}
		cur.Reset()
	}
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return chunks
		case html.TextToken:
			if skip == 0 {
				cur.Write(z.Text())
				cur.WriteByte(' ')
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case a == atom.Script || a == atom.Style:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case blockTags[a]:
				flush()
			default:
				cur.WriteByte(' ')
			}
		}
	}
}

// StripHTML removes HTML tags, decodes entities and normalizes whitespace.
func StripHTML(s string) string {
	return strings.Join(textChunks(s), " ")
}

// ExtractSymbolContent extracts paragraphs mentioning the symbol from HTML content.
// Falls back to full stripped HTML if no paragraphs mention the symbol.
func ExtractSymbolContent(rawHTML, symbol string) string {
	chunks := textChunks(rawHTML)
	var matched []string
	upper := strings.ToUpper(symbol)
	for _, chunk := range chunks {
		if strings.Contains(strings.ToUpper(chunk), upper) {
			matched = append(matched, chunk)
		}
	}
	if len(matched) > 0 {
		return strings.Join(matched, " ")
	}
	return strings.Join(chunks, " ")
}
