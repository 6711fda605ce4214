package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// CleanedPage holds cleaned HTML content and page metadata.
type CleanedPage struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

// CleanHTML strips scripts, styles, and other noise from raw HTML while
// preserving semantic structure and the attributes useful for element
// targeting (ids, classes, hrefs, form fields, data-* attributes).
func CleanHTML(rawHTML string, maxLength int) (*CleanedPage, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &htmlCleaner{limit: maxLength}
	c.node(doc, 0)

	return &CleanedPage{
		HTML:        c.b.String(),
		Title:       documentTitle(doc),
		Description: metaDescription(doc),
		Truncated:   c.truncated,
	}, nil
}

// htmlCleaner walks an HTML tree and rebuilds it without noise elements.
// length tracks emitted characters against limit; once the limit is hit
// the walk stops and truncated is set.
type htmlCleaner struct {
	b         strings.Builder
	length    int
	limit     int
	truncated bool
}

func (c *htmlCleaner) node(n *html.Node, depth int) {
	if c.length >= c.limit {
		c.truncated = true
		return
	}

	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		c.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] {
			return
		}
		c.element(n, tag, depth)
	default:
		c.children(n, depth)
	}
}

func (c *htmlCleaner) text(raw string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}

	if c.length+len(text) > c.limit {
		text = text[:c.limit-c.length] + "..."
		c.b.WriteString(text)
		c.length = c.limit
		c.truncated = true
		return
	}

	c.b.WriteString(text)
	c.length += len(text)
}

func (c *htmlCleaner) element(n *html.Node, tag string, depth int) {
	// Indent block elements for readability
	if depth > 0 && blockElements[tag] {
		c.b.WriteString("\n")
		c.b.WriteString(strings.Repeat("  ", depth))
	}

	c.b.WriteString("<")
	c.b.WriteString(tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&c.b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	c.b.WriteString(">")
	c.length += len(tag) + 2

	c.children(n, depth+1)

	if voidElements[tag] {
		return
	}
	if blockElements[tag] {
		c.b.WriteString("\n")
		c.b.WriteString(strings.Repeat("  ", depth))
	}
	c.b.WriteString("</")
	c.b.WriteString(tag)
	c.b.WriteString(">")
	c.length += len(tag) + 3
}

func (c *htmlCleaner) children(n *html.Node, depth int) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.truncated {
			return
		}
		c.node(child, depth)
	}
}

// MarkdownFromHTML renders raw HTML as Markdown: the document title
// becomes a top-level heading, h1-h6 map to heading levels, links become
// [text](href), and list items become bullets. Scripts, styles, and
// similar noise are dropped.
func MarkdownFromHTML(rawHTML string, maxLength int) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	r := &markdownRenderer{}
	if title := documentTitle(doc); title != "" {
		r.b.WriteString("# ")
		r.b.WriteString(title)
		r.b.WriteString("\n\n")
	}
	r.walk(doc)

	out := tidyMarkdown(r.b.String())
	if maxLength > 0 && len(out) > maxLength {
		total := len(out)
		out = out[:maxLength] + fmt.Sprintf("\n\n[Content truncated: %d of %d characters shown]", maxLength, total)
	}
	return out, nil
}

type markdownRenderer struct {
	b strings.Builder
}

func (r *markdownRenderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if text := collapseSpace(n.Data); text != "" {
			r.b.WriteString(text)
			r.b.WriteString(" ")
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] || tag == "head" {
			return
		}
		switch {
		case tag == "a":
			r.link(n)
			return
		case headingLevel(tag) > 0:
			r.b.WriteString("\n\n")
			r.b.WriteString(strings.Repeat("#", headingLevel(tag)))
			r.b.WriteString(" ")
			r.b.WriteString(nodeText(n))
			r.b.WriteString("\n\n")
			return
		case tag == "li":
			r.b.WriteString("\n- ")
			r.walkChildren(n)
			r.b.WriteString("\n")
			return
		case tag == "br":
			r.b.WriteString("\n")
			return
		case tag == "img":
			if alt := attrValue(n, "alt"); alt != "" {
				fmt.Fprintf(&r.b, "![%s](%s) ", alt, attrValue(n, "src"))
			}
			return
		case blockElements[tag]:
			r.b.WriteString("\n\n")
			r.walkChildren(n)
			r.b.WriteString("\n\n")
			return
		}
	}
	r.walkChildren(n)
}

func (r *markdownRenderer) walkChildren(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		r.walk(child)
	}
}

func (r *markdownRenderer) link(n *html.Node) {
	href := attrValue(n, "href")
	label := nodeText(n)
	if label == "" {
		label = href
	}
	switch {
	case href == "" && label == "":
	case href == "":
		r.b.WriteString(label)
		r.b.WriteString(" ")
	default:
		fmt.Fprintf(&r.b, "[%s](%s) ", label, href)
	}
}

// nodeText returns the space-collapsed text of a node's descendants,
// skipping noise elements.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidyMarkdown collapses blank-line runs and trims line edges left over
// from block separators.
func tidyMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = collapseSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// documentTitle extracts the page title from the document.
func documentTitle(doc *html.Node) string {
	n := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "title"
	})
	if n == nil || n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(n.FirstChild.Data)
}

// metaDescription extracts the meta description from the document.
func metaDescription(doc *html.Node) string {
	n := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "meta" &&
			attrValue(n, "name") == "description" && attrValue(n, "content") != ""
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attrValue(n, "content"))
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// skippedElements are removed entirely from cleaned output.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"embed":    true,
	"object":   true,
	"svg":      true,
}

// blockElements get newline separation in cleaned and rendered output.
var blockElements = map[string]bool{
	"div":        true,
	"p":          true,
	"section":    true,
	"article":    true,
	"header":     true,
	"footer":     true,
	"nav":        true,
	"main":       true,
	"aside":      true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
	"ul":         true,
	"ol":         true,
	"li":         true,
	"table":      true,
	"tr":         true,
	"td":         true,
	"th":         true,
	"form":       true,
	"fieldset":   true,
	"blockquote": true,
	"pre":        true,
}

// voidElements have no closing tag.
var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// globalAttributes are preserved on every element.
var globalAttributes = map[string]bool{
	"id":               true,
	"class":            true,
	"role":             true,
	"aria-label":       true,
	"aria-describedby": true,
}

// keepAttribute reports whether an attribute is useful for analysis or
// element targeting and should survive cleaning.
func keepAttribute(tag, name string) bool {
	name = strings.ToLower(name)

	if globalAttributes[name] || strings.HasPrefix(name, "data-") {
		return true
	}

	switch tag {
	case "a":
		return name == "href" || name == "target"
	case "img":
		return name == "src" || name == "alt"
	case "input", "textarea", "select":
		return name == "name" || name == "type" || name == "placeholder" || name == "value"
	case "button":
		return name == "type" || name == "name"
	case "form":
		return name == "action" || name == "method"
	case "table":
		return name == "summary"
	}
	return false
}
