package epub

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// renderContent parses one spine document and returns its body HTML (with
// image references rewritten into the flattened images/ layout), a plain
// text rendering, and the document's own title (from <title> or the first
// heading) for use as a fallback chapter title.
func renderContent(raw []byte, docDir string, imageNames map[string]string) (body, text, title string, err error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", "", "", fmt.Errorf("parse content document: %w", err)
	}

	rewriteImageRefs(doc, docDir, imageNames)

	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", "", "", fmt.Errorf("render content document: %w", err)
		}
	}

	return buf.String(), extractText(root), documentTitle(doc), nil
}

// rewriteImageRefs redirects <img src> (and SVG <image> href) attributes
// pointing at manifest images to their flattened images/<name> form. Other
// references, such as links to sibling chapters, are left as-is so the
// reader's filename-based chapter routes can resolve them.
func rewriteImageRefs(n *html.Node, docDir string, imageNames map[string]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "img":
			rewriteAttr(n, "src", docDir, imageNames)
		case "image":
			rewriteAttr(n, "href", docDir, imageNames)
			rewriteAttr(n, "xlink:href", docDir, imageNames)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteImageRefs(c, docDir, imageNames)
	}
}

func rewriteAttr(n *html.Node, key, docDir string, imageNames map[string]string) {
	for i, a := range n.Attr {
		if a.Key != key || a.Val == "" {
			continue
		}
		if name, ok := imageNames[resolveHref(docDir, a.Val)]; ok {
			n.Attr[i].Val = "images/" + name
		}
	}
}

// extractText flattens a node tree into readable plain text: block elements
// become paragraphs, scripts and styles are skipped.
func extractText(root *html.Node) string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "td", "blockquote", "pre", "figcaption":
				if t := collapseSpace(textContent(n)); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(blocks) == 0 {
		// Content without block structure (bare text in divs).
		if t := collapseSpace(textContent(root)); t != "" {
			blocks = append(blocks, t)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// documentTitle prefers the <title> element, then the first h1-h3 heading.
func documentTitle(doc *html.Node) string {
	if t := findElement(doc, "title"); t != nil {
		if s := textContent(t); s != "" {
			return s
		}
	}
	for _, tag := range []string{"h1", "h2", "h3"} {
		if h := findElement(doc, tag); h != nil {
			if s := textContent(h); s != "" {
				return s
			}
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// parseNavTOC reads an EPUB 3 XHTML navigation document and returns a map
// of resolved content-document paths to their TOC titles. The nav element
// tagged epub:type="toc" is preferred; lacking one, the first nav is used.
func parseNavTOC(raw []byte, navDir string) map[string]string {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil
	}

	var tocNav, firstNav *html.Node
	var findNav func(*html.Node)
	findNav = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "nav" {
			if firstNav == nil {
				firstNav = n
			}
			for _, a := range n.Attr {
				if a.Key == "epub:type" && strings.Contains(a.Val, "toc") {
					tocNav = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil && tocNav == nil; c = c.NextSibling {
			findNav(c)
		}
	}
	findNav(doc)

	nav := tocNav
	if nav == nil {
		nav = firstNav
	}
	if nav == nil {
		return nil
	}

	titles := make(map[string]string)
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" || a.Val == "" {
					continue
				}
				full := resolveHref(navDir, a.Val)
				if _, seen := titles[full]; !seen {
					if t := collapseSpace(textContent(n)); t != "" {
						titles[full] = t
					}
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(nav)
	return titles
}
