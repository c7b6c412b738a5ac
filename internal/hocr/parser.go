package hocr

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Parse turns hOCR markup into a Page tree. It is deterministic and
// side-effect-free: identical markup always yields an identical tree.
//
// A document without an ocr_page container returns nil — empty or
// garbled recognizer output is expected occasionally and is not an
// error. Unparsable numeric fields are omitted, never fatal.
func Parse(markup string, predictSizes bool) *Page {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	pageNode := findNode(doc, "div", "ocr_page")
	if pageNode == nil {
		return nil
	}

	page := &Page{PredictSizes: predictSizes}
	walkNodes(pageNode, func(n *html.Node) bool {
		if n.Data == "p" && hasClass(n, "ocr_par") {
			page.Paragraphs = append(page.Paragraphs, parseParagraph(n))
			return false
		}
		return true
	})

	return page
}

func parseParagraph(n *html.Node) Paragraph {
	par := Paragraph{
		Lang: attr(n, "lang"),
		BBox: parseBBox(parseTitle(attr(n, "title"))),
	}
	if attr(n, "dir") == "rtl" {
		par.Direction = RightToLeft
	}

	walkNodes(n, func(c *html.Node) bool {
		if c.Data == "span" && hasClass(c, "ocr_line") {
			par.Lines = append(par.Lines, parseLine(c))
			return false
		}
		return true
	})

	return par
}

func parseLine(n *html.Node) Line {
	line := Line{BBox: parseBBox(parseTitle(attr(n, "title")))}

	walkNodes(n, func(c *html.Node) bool {
		if c.Data == "span" && hasClass(c, "ocrx_word") {
			props := parseTitle(attr(c, "title"))
			line.Words = append(line.Words, Word{
				Text:       textContent(c),
				BBox:       parseBBox(props),
				Confidence: parseNumber(props, "x_wconf"),
				FontSize:   parseNumber(props, "x_fsize"),
			})
			return false
		}
		return true
	})

	return line
}

// parseTitle decodes an hOCR title attribute: a semicolon-delimited list
// of "key value" properties, e.g. "bbox 0 0 100 30; x_wconf 93".
func parseTitle(title string) map[string]string {
	props := make(map[string]string)
	for _, part := range strings.Split(title, ";") {
		part = strings.TrimSpace(part)
		if i := strings.IndexByte(part, ' '); i > 0 {
			props[part[:i]] = part[i+1:]
		}
	}
	return props
}

func parseNumber(props map[string]string, key string) *float64 {
	raw, ok := props[key]
	if !ok {
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseBBox(props map[string]string) *Rect {
	raw, ok := props["bbox"]
	if !ok {
		return nil
	}
	fields := strings.Fields(raw)
	if len(fields) != 4 {
		return nil
	}
	nums := make([]float64, 4)
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		nums[i] = n
	}
	return &Rect{X0: nums[0], Y0: nums[1], X1: nums[2], Y1: nums[3]}
}

// findNode returns the first element with the given tag and class in
// document order.
func findNode(n *html.Node, tag, class string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

// walkNodes visits element nodes under n in document order. The visitor
// returns false to skip a subtree it has consumed.
func walkNodes(n *html.Node, visit func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if !visit(c) {
				continue
			}
		}
		walkNodes(c, visit)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
